package domain

import (
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pennyrush/arena/internal/platform/random"
	"github.com/pennyrush/arena/internal/services/arena/payout"
	"github.com/pennyrush/arena/internal/services/arena/storage"
)

// Phase is the single process-wide game phase.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseResults Phase = "results"
)

const (
	// minWalletLen rejects anything shorter than the shortest valid
	// base58-encoded Solana address.
	minWalletLen = 32

	// minPlayersToStart is the lobby size needed when the countdown
	// expires; a full lobby starts regardless.
	minPlayersToStart = 2

	spawnRadiusMin = 5.0
	spawnRadiusMax = 12.0
	eyeHeight      = 1.7
	pennyHeight    = 0.5
)

// Config sets the tunable parameters of a game session.
type Config struct {
	MaxPlayers     int
	LobbyCountdown time.Duration
	RoundDuration  time.Duration
	ResultsDelay   time.Duration
	CoinCount      int
	MapExtent      float64
}

func (c *Config) normalize() {
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = 4
	}
	if c.LobbyCountdown <= 0 {
		c.LobbyCountdown = 30 * time.Second
	}
	if c.RoundDuration <= 0 {
		c.RoundDuration = 2 * time.Minute
	}
	if c.ResultsDelay <= 0 {
		c.ResultsDelay = 10 * time.Second
	}
	if c.CoinCount <= 0 {
		c.CoinCount = 50
	}
	if c.MapExtent <= 0 {
		c.MapExtent = 40.0
	}
	// The spawn ring needs room inside the extent; below this the
	// radius band would invert.
	if c.MapExtent < 2*spawnRadiusMin {
		c.MapExtent = 2 * spawnRadiusMin
	}
}

// LobbyEntry is a waiting wallet keyed by its connection.
type LobbyEntry struct {
	Wallet   string
	JoinedAt time.Time
}

// Player is an active participant in the running round.
type Player struct {
	ID       string
	Wallet   string
	Position Vec3
	Rotation Rotation
	Score    int
}

// Penny is a collectible with a fixed spawn position. Collected flips
// exactly once and never reverses.
type Penny struct {
	ID        string
	Position  Vec3
	Collected bool
}

// Coordinator owns all session state: lobby membership, the phase state
// machine, timers, spawns, collection arbitration, scoring, ranking, and
// reset. A single mutex serializes every mutation, which is load-bearing:
// penny collection is first-writer-wins precisely because the collected
// check-and-set can never interleave. Broadcasts for a mutation are
// emitted before the mutex is released so no observer sees reordered
// outcomes.
type Coordinator struct {
	mu sync.Mutex

	cfg      Config
	sink     Sink
	registry *Registry
	payer    payout.Gateway
	store    storage.RoundStore
	rng      *rand.Rand

	phase      Phase
	lobby      map[string]LobbyEntry
	lobbyOrder []string

	players     map[string]*Player
	playerOrder []string
	spectators  map[string]struct{}

	pennies    map[string]*Penny
	pennyOrder []string

	roundID        string
	roundStart     time.Time
	roundEnds      time.Time
	collectedCount int

	// timerGen invalidates countdowns and deferred resets: every phase
	// transition bumps it, so a stale timer callback becomes a no-op
	// instead of firing a duplicate transition.
	timerGen uint64

	// tickEvery is one countdown unit. Production keeps the one-second
	// default; tests shrink it.
	tickEvery time.Duration
}

// NewCoordinator builds a session coordinator. The sink is required; a
// nil payer disables payouts and a nil store disables round history.
func NewCoordinator(cfg Config, sink Sink, registry *Registry, payer payout.Gateway, store storage.RoundStore) (*Coordinator, error) {
	if sink == nil {
		return nil, errNilSink
	}
	cfg.normalize()
	if registry == nil {
		registry = NewRegistry()
	}
	if payer == nil {
		payer = payout.Disabled{}
	}

	seed, err := random.NewSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}

	return &Coordinator{
		cfg:        cfg,
		sink:       sink,
		registry:   registry,
		payer:      payer,
		store:      store,
		rng:        rand.New(rand.NewSource(seed)),
		phase:      PhaseLobby,
		lobby:      make(map[string]LobbyEntry),
		players:    make(map[string]*Player),
		spectators: make(map[string]struct{}),
		pennies:    make(map[string]*Penny),
		tickEvery:  time.Second,
	}, nil
}

// Connect registers a session for a new connection.
func (c *Coordinator) Connect(connID string) *Session {
	return c.registry.Register(connID)
}

// Phase reports the current game phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// JoinLobby admits a wallet into the lobby. Rejections go to the
// requesting connection only; every successful join broadcasts the
// updated lobby, and a full lobby starts the game immediately.
func (c *Coordinator) JoinLobby(connID, wallet string) LobbyJoined {
	c.mu.Lock()
	defer c.mu.Unlock()

	wallet = strings.TrimSpace(wallet)

	reject := func(reason string) LobbyJoined {
		reply := LobbyJoined{Reason: reason}
		c.sink.SendTo(connID, EventLobbyJoined, reply)
		return reply
	}

	if len(wallet) < minWalletLen {
		return reject("invalid wallet address")
	}
	if c.phase != PhaseLobby {
		return reject("game already in progress")
	}
	if _, ok := c.lobby[connID]; ok {
		return reject("already in lobby")
	}
	if len(c.lobby) >= c.cfg.MaxPlayers {
		return reject("lobby is full")
	}
	for _, entry := range c.lobby {
		if entry.Wallet == wallet {
			return reject("wallet already in lobby")
		}
	}

	session := c.registry.Register(connID)
	session.Wallet = wallet
	session.Role = RoleLobby

	c.lobby[connID] = LobbyEntry{Wallet: wallet, JoinedAt: time.Now()}
	c.lobbyOrder = append(c.lobbyOrder, connID)

	snapshot := c.lobbySnapshotLocked()
	reply := LobbyJoined{Success: true, PlayerID: connID, Lobby: &snapshot}
	c.sink.SendTo(connID, EventLobbyJoined, reply)
	c.sink.Broadcast(EventLobbyUpdate, snapshot)

	switch {
	case len(c.lobby) == c.cfg.MaxPlayers:
		c.startGameLocked()
	case len(c.lobby) == 1:
		c.startLobbyCountdownLocked()
	}
	return reply
}

// JoinSpectator always succeeds and replies with a live snapshot.
// Spectators have no player record, so their movement and collection
// intents fall through as no-ops. A connection waiting in the lobby
// gives up its slot when it switches to spectating.
func (c *Coordinator) JoinSpectator(connID string) GameState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lobby[connID]; ok {
		delete(c.lobby, connID)
		c.lobbyOrder = removeID(c.lobbyOrder, connID)
		c.sink.Broadcast(EventLobbyUpdate, c.lobbySnapshotLocked())
		if len(c.lobby) == 0 {
			// Nobody left to count down for.
			c.timerGen++
		}
	}

	session := c.registry.Register(connID)
	session.Role = RoleSpectator
	c.spectators[connID] = struct{}{}

	snapshot := c.gameStateLocked()
	c.sink.SendTo(connID, EventSpectatorJoined, SpectatorJoined{GameState: snapshot})
	return snapshot
}

// UpdatePosition accepts a self-reported pose verbatim and relays it to
// every other connection. The server does not validate movement; client
// position spoofing is a known, accepted trust boundary of this game.
func (c *Coordinator) UpdatePosition(connID string, position Vec3, rotation Rotation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhasePlaying {
		return
	}
	player, ok := c.players[connID]
	if !ok {
		return
	}

	player.Position = position
	player.Rotation = rotation
	c.sink.BroadcastExcept(connID, EventPlayerMoved, PlayerMoved{
		PlayerID: connID,
		Position: position,
		Rotation: rotation,
	})
}

// CollectPenny arbitrates a collection attempt. The first attempt on an
// uncollected penny wins; everything else is a silent no-op.
func (c *Coordinator) CollectPenny(connID, pennyID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhasePlaying {
		return false
	}
	player, ok := c.players[connID]
	if !ok {
		return false
	}
	penny, ok := c.pennies[pennyID]
	if !ok || penny.Collected {
		return false
	}

	penny.Collected = true
	player.Score++
	c.collectedCount++

	c.sink.Broadcast(EventPennyCollected, PennyCollected{
		PennyID:     pennyID,
		PlayerID:    connID,
		PlayerScore: player.Score,
	})
	c.sink.Broadcast(EventScoresUpdate, ScoresUpdate{Scores: c.scoresLocked()})
	return true
}

// RemoveConnection handles a disconnect as an implicit leave for every
// role the connection held. A mid-game leaver forfeits further play; the
// round continues and their collected pennies stay collected.
func (c *Coordinator) RemoveConnection(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lobby[connID]; ok {
		delete(c.lobby, connID)
		c.lobbyOrder = removeID(c.lobbyOrder, connID)
		c.sink.Broadcast(EventLobbyUpdate, c.lobbySnapshotLocked())
		if len(c.lobby) == 0 && c.phase == PhaseLobby {
			// Nobody left to count down for.
			c.timerGen++
		}
	}

	if _, ok := c.players[connID]; ok {
		delete(c.players, connID)
		c.playerOrder = removeID(c.playerOrder, connID)
		c.sink.Broadcast(EventPlayerLeft, PlayerLeft{PlayerID: connID})
	}

	delete(c.spectators, connID)
	c.registry.Remove(connID)
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (c *Coordinator) lobbySnapshotLocked() LobbyState {
	entries := make([]LobbyEntryState, 0, len(c.lobbyOrder))
	for _, connID := range c.lobbyOrder {
		entry := c.lobby[connID]
		entries = append(entries, LobbyEntryState{
			Wallet:   entry.Wallet,
			JoinedAt: entry.JoinedAt.UnixMilli(),
		})
	}
	return LobbyState{Entries: entries, Capacity: c.cfg.MaxPlayers}
}

func (c *Coordinator) playersSnapshotLocked() []PlayerState {
	players := make([]PlayerState, 0, len(c.playerOrder))
	for _, connID := range c.playerOrder {
		p := c.players[connID]
		players = append(players, PlayerState{
			PlayerID: p.ID,
			Wallet:   p.Wallet,
			Position: p.Position,
			Rotation: p.Rotation,
			Score:    p.Score,
		})
	}
	return players
}

func (c *Coordinator) penniesSnapshotLocked() []PennyState {
	pennies := make([]PennyState, 0, len(c.pennyOrder))
	for _, pennyID := range c.pennyOrder {
		penny := c.pennies[pennyID]
		pennies = append(pennies, PennyState{
			PennyID:   penny.ID,
			Position:  penny.Position,
			Collected: penny.Collected,
		})
	}
	return pennies
}

func (c *Coordinator) scoresLocked() []ScoreEntry {
	rankings := rankPlayers(c.playersInOrderLocked())
	scores := make([]ScoreEntry, 0, len(rankings))
	for _, r := range rankings {
		scores = append(scores, ScoreEntry{PlayerID: r.PlayerID, Wallet: r.Wallet, Score: r.Score})
	}
	return scores
}

func (c *Coordinator) playersInOrderLocked() []*Player {
	players := make([]*Player, 0, len(c.playerOrder))
	for _, connID := range c.playerOrder {
		players = append(players, c.players[connID])
	}
	return players
}

func (c *Coordinator) gameStateLocked() GameState {
	state := GameState{Phase: c.phase}
	if c.phase == PhaseLobby {
		return state
	}
	state.Players = c.playersSnapshotLocked()
	state.Pennies = c.penniesSnapshotLocked()
	state.Duration = c.ticksFor(c.cfg.RoundDuration)
	if c.phase == PhasePlaying {
		remaining := int(time.Until(c.roundEnds) / c.tickEvery)
		if remaining < 0 {
			remaining = 0
		}
		state.Remaining = remaining
	}
	return state
}

// ticksFor converts a duration into countdown units. One unit is one
// second in production.
func (c *Coordinator) ticksFor(d time.Duration) int {
	return int(d / c.tickEvery)
}

var errNilSink = errors.New("sink is required")

func logf(format string, args ...any) {
	log.Printf("arena: "+format, args...)
}
