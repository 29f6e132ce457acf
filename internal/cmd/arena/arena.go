// Package arena parses arena command flags and composes the game server
// entrypoint.
package arena

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/pennyrush/arena/internal/platform/cmd"
	server "github.com/pennyrush/arena/internal/services/arena/app"
)

// Config holds arena command configuration.
type Config struct {
	HTTPAddr           string        `env:"PENNYRUSH_ARENA_HTTP_ADDR"      envDefault:":8090"`
	MaxPlayers         int           `env:"PENNYRUSH_MAX_PLAYERS"          envDefault:"4"`
	LobbyCountdown     time.Duration `env:"PENNYRUSH_LOBBY_COUNTDOWN"      envDefault:"30s"`
	RoundDuration      time.Duration `env:"PENNYRUSH_ROUND_DURATION"       envDefault:"120s"`
	ResultsDelay       time.Duration `env:"PENNYRUSH_RESULTS_DELAY"        envDefault:"10s"`
	CoinCount          int           `env:"PENNYRUSH_COIN_COUNT"           envDefault:"50"`
	MapExtent          float64       `env:"PENNYRUSH_MAP_EXTENT"           envDefault:"40"`
	RewardPoolLamports uint64        `env:"PENNYRUSH_REWARD_POOL_LAMPORTS" envDefault:"100000000"`
	FeeReserveLamports uint64        `env:"PENNYRUSH_FEE_RESERVE_LAMPORTS" envDefault:"5000000"`
	TreasuryRPCURL     string        `env:"PENNYRUSH_TREASURY_RPC_URL"`
	DBPath             string        `env:"PENNYRUSH_DB_PATH"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "arena HTTP listen address")
	fs.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "lobby capacity")
	fs.DurationVar(&cfg.LobbyCountdown, "lobby-countdown", cfg.LobbyCountdown, "lobby countdown before a round starts")
	fs.DurationVar(&cfg.RoundDuration, "round-duration", cfg.RoundDuration, "round play duration")
	fs.DurationVar(&cfg.ResultsDelay, "results-delay", cfg.ResultsDelay, "delay on the results screen before the lobby reopens")
	fs.IntVar(&cfg.CoinCount, "coin-count", cfg.CoinCount, "pennies spawned per round")
	fs.Float64Var(&cfg.MapExtent, "map-extent", cfg.MapExtent, "side length of the square play area")
	fs.Uint64Var(&cfg.RewardPoolLamports, "reward-pool-lamports", cfg.RewardPoolLamports, "reward pool per round in lamports")
	fs.Uint64Var(&cfg.FeeReserveLamports, "fee-reserve-lamports", cfg.FeeReserveLamports, "fee reserve held back from the pool in lamports")
	fs.StringVar(&cfg.TreasuryRPCURL, "treasury-rpc-url", cfg.TreasuryRPCURL, "treasury JSON-RPC endpoint, empty disables payouts")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "round history SQLite path, empty disables history")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the arena app and serves the realtime game transport.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceArena, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:           cfg.HTTPAddr,
			MaxPlayers:         cfg.MaxPlayers,
			LobbyCountdown:     cfg.LobbyCountdown,
			RoundDuration:      cfg.RoundDuration,
			ResultsDelay:       cfg.ResultsDelay,
			CoinCount:          cfg.CoinCount,
			MapExtent:          cfg.MapExtent,
			RewardPoolLamports: cfg.RewardPoolLamports,
			FeeReserveLamports: cfg.FeeReserveLamports,
			TreasuryRPCURL:     cfg.TreasuryRPCURL,
			DBPath:             cfg.DBPath,
		}); err != nil {
			return fmt.Errorf("serve arena: %w", err)
		}
		return nil
	})
}
