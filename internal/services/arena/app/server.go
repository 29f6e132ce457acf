package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/pennyrush/arena/internal/platform/timeouts"
	"github.com/pennyrush/arena/internal/services/arena/domain"
	"github.com/pennyrush/arena/internal/services/arena/payout"
	"github.com/pennyrush/arena/internal/services/arena/storage"
	"github.com/pennyrush/arena/internal/services/arena/storage/sqlite"
)

// Config defines the inputs for the arena transport boundary.
type Config struct {
	HTTPAddr string

	MaxPlayers     int
	LobbyCountdown time.Duration
	RoundDuration  time.Duration
	ResultsDelay   time.Duration
	CoinCount      int
	MapExtent      float64

	RewardPoolLamports uint64
	FeeReserveLamports uint64
	TreasuryRPCURL     string

	DBPath string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the arena HTTP/WebSocket process. It owns the single game
// instance and the optional round-history store.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
}

// NewServer builds a configured arena server. Payouts are disabled unless
// a treasury endpoint is set; round history is disabled unless a database
// path is set.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	var payer payout.Gateway = payout.Disabled{}
	if strings.TrimSpace(config.TreasuryRPCURL) != "" {
		treasury, err := payout.NewTreasury(payout.TreasuryConfig{
			RPCURL:          config.TreasuryRPCURL,
			PoolLamports:    config.RewardPoolLamports,
			ReserveLamports: config.FeeReserveLamports,
		})
		if err != nil {
			return nil, fmt.Errorf("init treasury gateway: %w", err)
		}
		payer = treasury
	} else {
		log.Printf("arena: treasury endpoint not configured, payouts disabled")
	}

	var sqliteStore *sqlite.Store
	var roundStore storage.RoundStore
	if strings.TrimSpace(config.DBPath) != "" {
		store, err := sqlite.Open(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open round store: %w", err)
		}
		sqliteStore = store
		roundStore = store
	} else {
		log.Printf("arena: database path not configured, round history disabled")
	}

	hub := newPeerHub()
	coordinator, err := domain.NewCoordinator(domain.Config{
		MaxPlayers:     config.MaxPlayers,
		LobbyCountdown: config.LobbyCountdown,
		RoundDuration:  config.RoundDuration,
		ResultsDelay:   config.ResultsDelay,
		CoinCount:      config.CoinCount,
		MapExtent:      config.MapExtent,
	}, hub, domain.NewRegistry(), payer, roundStore)
	if err != nil {
		if sqliteStore != nil {
			_ = sqliteStore.Close()
		}
		return nil, fmt.Errorf("init coordinator: %w", err)
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(coordinator, hub),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           sqliteStore,
	}, nil
}

// NewHandler creates arena routes around a fresh game instance with
// payouts and history disabled. Used by tests and offline paths.
func NewHandler(gameConfig domain.Config) http.Handler {
	hub := newPeerHub()
	coordinator, err := domain.NewCoordinator(gameConfig, hub, domain.NewRegistry(), nil, nil)
	if err != nil {
		// Unreachable with a non-nil hub.
		panic(err)
	}
	return newHandler(coordinator, hub)
}

func newHandler(coordinator *domain.Coordinator, hub *peerHub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, coordinator, hub)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

// Run creates and serves an arena server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init arena server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve arena: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("arena server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("arena server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close round store: %v", err)
	}
}
