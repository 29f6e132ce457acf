package domain

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"
)

type sinkEvent struct {
	kind    string
	target  string
	event   string
	payload any
}

// recordSink captures every emission for assertions. It must not call
// back into the coordinator.
type recordSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordSink) Broadcast(event string, payload any) {
	s.record(sinkEvent{kind: "broadcast", event: event, payload: payload})
}

func (s *recordSink) BroadcastExcept(excludedConnID, event string, payload any) {
	s.record(sinkEvent{kind: "except", target: excludedConnID, event: event, payload: payload})
}

func (s *recordSink) SendTo(connID, event string, payload any) {
	s.record(sinkEvent{kind: "send", target: connID, event: event, payload: payload})
}

func (s *recordSink) record(e sinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (s *recordSink) last(event string) (sinkEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].event == event {
			return s.events[i], true
		}
	}
	return sinkEvent{}, false
}

func (s *recordSink) waitFor(t *testing.T, event string) sinkEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := s.last(event); ok {
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %s event within deadline", event)
	return sinkEvent{}
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *recordSink) {
	t.Helper()
	sink := &recordSink{}
	c, err := NewCoordinator(cfg, sink, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.tickEvery = time.Millisecond
	return c, sink
}

func testWallet(suffix string) string {
	return strings.Repeat("W", 40) + suffix
}

func TestNewCoordinatorRequiresSink(t *testing.T) {
	if _, err := NewCoordinator(Config{}, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

func TestJoinLobbyRejectsShortWallet(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 4})

	reply := c.JoinLobby("conn1", "short")
	if reply.Success {
		t.Fatal("expected rejection")
	}
	if reply.Reason != "invalid wallet address" {
		t.Fatalf("reason = %q", reply.Reason)
	}

	e, ok := sink.last(EventLobbyJoined)
	if !ok || e.kind != "send" || e.target != "conn1" {
		t.Fatalf("rejection not sent to requester: %+v", e)
	}
}

func TestJoinLobbyRejectsDuplicateWallet(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{MaxPlayers: 4})

	wallet := testWallet("a")
	if reply := c.JoinLobby("conn1", wallet); !reply.Success {
		t.Fatalf("first join rejected: %s", reply.Reason)
	}
	reply := c.JoinLobby("conn2", wallet)
	if reply.Success {
		t.Fatal("duplicate wallet admitted")
	}
	if reply.Reason != "wallet already in lobby" {
		t.Fatalf("reason = %q", reply.Reason)
	}
}

func TestJoinLobbyRejectsSameConnectionTwice(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{MaxPlayers: 3, CoinCount: 3})

	if reply := c.JoinLobby("conn1", testWallet("a")); !reply.Success {
		t.Fatalf("first join rejected: %s", reply.Reason)
	}

	// A second join from the same connection must not take another
	// slot, even with a fresh wallet.
	reply := c.JoinLobby("conn1", testWallet("b"))
	if reply.Success {
		t.Fatal("same connection admitted twice")
	}
	if reply.Reason != "already in lobby" {
		t.Fatalf("reason = %q", reply.Reason)
	}

	c.mu.Lock()
	orderLen := len(c.lobbyOrder)
	wallet := c.lobby["conn1"].Wallet
	c.mu.Unlock()
	if orderLen != 1 {
		t.Fatalf("lobbyOrder = %d entries", orderLen)
	}
	if wallet != testWallet("a") {
		t.Fatalf("wallet = %q, original entry replaced", wallet)
	}

	c.JoinLobby("conn2", testWallet("b"))
	c.JoinLobby("conn3", testWallet("c"))

	// Three entrants produce exactly three players, each listed once.
	c.mu.Lock()
	players := c.playersSnapshotLocked()
	c.mu.Unlock()
	if len(players) != 3 {
		t.Fatalf("players = %d", len(players))
	}
	seen := make(map[string]bool)
	for _, p := range players {
		if seen[p.PlayerID] {
			t.Fatalf("player %s listed twice", p.PlayerID)
		}
		seen[p.PlayerID] = true
	}
}

func TestJoinSpectatorLeavesLobby(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinSpectator("conn1")

	e, _ := sink.last(EventLobbyUpdate)
	state := e.payload.(LobbyState)
	if len(state.Entries) != 0 {
		t.Fatalf("lobby still has %d entries", len(state.Entries))
	}

	// The freed slot goes to new entrants; the spectator is never
	// promoted to a player.
	c.JoinLobby("conn2", testWallet("b"))
	c.JoinLobby("conn3", testWallet("c"))

	c.mu.Lock()
	_, isPlayer := c.players["conn1"]
	_, isSpectator := c.spectators["conn1"]
	playerCount := len(c.players)
	c.mu.Unlock()
	if isPlayer {
		t.Fatal("spectator promoted to player")
	}
	if !isSpectator {
		t.Fatal("connection not tracked as spectator")
	}
	if playerCount != 2 {
		t.Fatalf("players = %d", playerCount)
	}
}

func TestJoinLobbyRejectsWhenFull(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	// The lobby filled and the game started, so the third join fails on
	// the phase check.
	reply := c.JoinLobby("conn3", testWallet("c"))
	if reply.Success {
		t.Fatal("join admitted after game start")
	}
	if reply.Reason != "game already in progress" {
		t.Fatalf("reason = %q", reply.Reason)
	}
}

func TestJoinLobbyBroadcastsUpdates(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 4})

	reply := c.JoinLobby("conn1", testWallet("a"))
	if !reply.Success {
		t.Fatalf("join rejected: %s", reply.Reason)
	}
	if reply.PlayerID != "conn1" {
		t.Fatalf("playerID = %q", reply.PlayerID)
	}
	if reply.Lobby == nil || len(reply.Lobby.Entries) != 1 || reply.Lobby.Capacity != 4 {
		t.Fatalf("lobby snapshot = %+v", reply.Lobby)
	}

	e, ok := sink.last(EventLobbyUpdate)
	if !ok {
		t.Fatal("no lobby_update broadcast")
	}
	state := e.payload.(LobbyState)
	if len(state.Entries) != 1 || state.Entries[0].Wallet != testWallet("a") {
		t.Fatalf("lobby_update = %+v", state)
	}

	session, ok := c.registry.Lookup("conn1")
	if !ok || session.Role != RoleLobby || session.Wallet != testWallet("a") {
		t.Fatalf("session = %+v", session)
	}
}

func TestFullLobbyStartsGame(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 3, CoinCount: 5})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))
	c.JoinLobby("conn3", testWallet("c"))

	if c.Phase() != PhasePlaying {
		t.Fatalf("phase = %s", c.Phase())
	}

	e, ok := sink.last(EventGameStart)
	if !ok {
		t.Fatal("no game_start broadcast")
	}
	start := e.payload.(GameStart)
	if len(start.Players) != 3 {
		t.Fatalf("players = %d", len(start.Players))
	}
	if len(start.Pennies) != 5 {
		t.Fatalf("pennies = %d", len(start.Pennies))
	}
	for _, p := range start.Pennies {
		if p.Collected {
			t.Fatalf("penny %s spawned collected", p.PennyID)
		}
	}

	session, _ := c.registry.Lookup("conn1")
	if session.Role != RolePlayer {
		t.Fatalf("role = %s", session.Role)
	}
}

func TestSpawnPositionsStayInsideSmallMap(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{MaxPlayers: 4, MapExtent: 4})

	// Extents below the spawn ring are floored so the radius band
	// cannot invert.
	if c.cfg.MapExtent != 2*spawnRadiusMin {
		t.Fatalf("MapExtent = %f", c.cfg.MapExtent)
	}

	limit := c.cfg.MapExtent / 2
	for i := 0; i < 100; i++ {
		pos := c.spawnPositionLocked()
		radius := math.Hypot(pos.X, pos.Z)
		if radius < spawnRadiusMin-1e-9 || radius > limit+1e-9 {
			t.Fatalf("spawn radius %f outside [%f, %f]", radius, spawnRadiusMin, limit)
		}
	}
}

func TestCollectPennyFirstWriterWins(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	c.mu.Lock()
	pennyID := c.pennyOrder[0]
	c.mu.Unlock()

	if !c.CollectPenny("conn1", pennyID) {
		t.Fatal("first collection failed")
	}
	if c.CollectPenny("conn2", pennyID) {
		t.Fatal("second collection succeeded on a collected penny")
	}

	e, _ := sink.last(EventPennyCollected)
	collected := e.payload.(PennyCollected)
	if collected.PlayerID != "conn1" || collected.PlayerScore != 1 {
		t.Fatalf("penny_collected = %+v", collected)
	}

	scores := sink.waitFor(t, EventScoresUpdate).payload.(ScoresUpdate)
	if scores.Scores[0].PlayerID != "conn1" || scores.Scores[0].Score != 1 {
		t.Fatalf("scores = %+v", scores.Scores)
	}
}

func TestCollectPennyIgnoresNonPlayers(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))
	c.JoinSpectator("watcher")

	c.mu.Lock()
	pennyID := c.pennyOrder[0]
	c.mu.Unlock()

	if c.CollectPenny("watcher", pennyID) {
		t.Fatal("spectator collected a penny")
	}
	if c.CollectPenny("conn1", "penny_999") {
		t.Fatal("unknown penny collected")
	}
}

func TestUpdatePositionRelaysToOthers(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	pos := Vec3{X: 1, Y: 2, Z: 3}
	rot := Rotation{Yaw: 90, Pitch: -10}
	c.UpdatePosition("conn1", pos, rot)

	e, ok := sink.last(EventPlayerMoved)
	if !ok {
		t.Fatal("no player_moved broadcast")
	}
	if e.kind != "except" || e.target != "conn1" {
		t.Fatalf("player_moved not excluded from sender: %+v", e)
	}
	moved := e.payload.(PlayerMoved)
	if moved.Position != pos || moved.Rotation != rot {
		t.Fatalf("player_moved = %+v", moved)
	}

	c.mu.Lock()
	got := c.players["conn1"].Position
	c.mu.Unlock()
	if got != pos {
		t.Fatalf("position not applied: %+v", got)
	}
}

func TestUpdatePositionIgnoredOutsidePlaying(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 4})

	c.JoinLobby("conn1", testWallet("a"))
	c.UpdatePosition("conn1", Vec3{X: 1}, Rotation{})

	if _, ok := sink.last(EventPlayerMoved); ok {
		t.Fatal("player_moved broadcast in lobby phase")
	}
}

func TestSpectatorSnapshot(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	state := c.JoinSpectator("watcher")
	if state.Phase != PhaseLobby {
		t.Fatalf("phase = %s", state.Phase)
	}
	if len(state.Players) != 0 || len(state.Pennies) != 0 {
		t.Fatalf("lobby snapshot not empty: %+v", state)
	}

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	state = c.JoinSpectator("watcher2")
	if state.Phase != PhasePlaying {
		t.Fatalf("phase = %s", state.Phase)
	}
	if len(state.Players) != 2 || len(state.Pennies) != 3 {
		t.Fatalf("snapshot = %d players, %d pennies", len(state.Players), len(state.Pennies))
	}
	if state.Remaining <= 0 || state.Remaining > state.Duration {
		t.Fatalf("remaining = %d of %d", state.Remaining, state.Duration)
	}
}

func TestRemoveConnectionFromLobby(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 4})

	c.JoinLobby("conn1", testWallet("a"))
	c.RemoveConnection("conn1")

	e, _ := sink.last(EventLobbyUpdate)
	state := e.payload.(LobbyState)
	if len(state.Entries) != 0 {
		t.Fatalf("lobby not emptied: %+v", state.Entries)
	}
	if _, ok := c.registry.Lookup("conn1"); ok {
		t.Fatal("session survived disconnect")
	}

	// The countdown died with the last entrant.
	time.Sleep(10 * time.Millisecond)
	before := sink.count(EventLobbyTimer)
	time.Sleep(20 * time.Millisecond)
	if after := sink.count(EventLobbyTimer); after != before {
		t.Fatalf("lobby timer still ticking: %d -> %d", before, after)
	}
}

func TestRemovePlayerMidGame(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 2, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	c.mu.Lock()
	pennyID := c.pennyOrder[0]
	c.mu.Unlock()
	c.CollectPenny("conn1", pennyID)

	c.RemoveConnection("conn1")

	e, ok := sink.last(EventPlayerLeft)
	if !ok {
		t.Fatal("no player_left broadcast")
	}
	if e.payload.(PlayerLeft).PlayerID != "conn1" {
		t.Fatalf("player_left = %+v", e.payload)
	}

	// The round continues and the collected penny stays collected.
	c.mu.Lock()
	phase := c.phase
	collected := c.pennies[pennyID].Collected
	count := c.collectedCount
	c.mu.Unlock()
	if phase != PhasePlaying {
		t.Fatalf("phase = %s", phase)
	}
	if !collected || count != 1 {
		t.Fatalf("collected penny reverted: collected=%v count=%d", collected, count)
	}
}

func TestLobbyCountdownStartsGame(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{
		MaxPlayers:     4,
		LobbyCountdown: 10 * time.Millisecond,
		CoinCount:      3,
	})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	sink.waitFor(t, EventLobbyTimer)
	sink.waitFor(t, EventGameStart)
	if c.Phase() != PhasePlaying {
		t.Fatalf("phase = %s", c.Phase())
	}
}

func TestLobbyCountdownRestartsBelowMinimum(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{
		MaxPlayers:     4,
		LobbyCountdown: 10 * time.Millisecond,
	})

	c.JoinLobby("conn1", testWallet("a"))

	sink.waitFor(t, EventLobbyMessage)
	if c.Phase() != PhaseLobby {
		t.Fatalf("phase = %s", c.Phase())
	}

	// A fresh countdown is running for the lone entrant.
	before := sink.count(EventLobbyTimer)
	deadline := time.Now().Add(2 * time.Second)
	for sink.count(EventLobbyTimer) == before {
		if time.Now().After(deadline) {
			t.Fatal("countdown did not restart")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEndGameRankingsAndShares(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 4, CoinCount: 20})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))
	c.JoinLobby("conn3", testWallet("c"))
	c.JoinLobby("conn4", testWallet("d"))

	c.mu.Lock()
	c.players["conn1"].Score = 5
	c.players["conn2"].Score = 3
	c.players["conn3"].Score = 3
	c.players["conn4"].Score = 0
	c.endGameLocked()
	c.mu.Unlock()

	end := sink.waitFor(t, EventGameEnd).payload.(GameEnd)
	if len(end.Rankings) != 4 || len(end.Winners) != 3 {
		t.Fatalf("rankings=%d winners=%d", len(end.Rankings), len(end.Winners))
	}
	if end.TotalTopCoins != 11 {
		t.Fatalf("totalTopCoins = %d", end.TotalTopCoins)
	}

	// Ties break by registration order: conn2 joined before conn3.
	wantOrder := []string{"conn1", "conn2", "conn3", "conn4"}
	for i, want := range wantOrder {
		if end.Rankings[i].PlayerID != want {
			t.Fatalf("rankings[%d] = %s, want %s", i, end.Rankings[i].PlayerID, want)
		}
		if end.Rankings[i].Place != i+1 {
			t.Fatalf("rankings[%d].Place = %d", i, end.Rankings[i].Place)
		}
	}

	wantShares := []float64{5.0 / 11 * 100, 3.0 / 11 * 100, 3.0 / 11 * 100}
	for i, want := range wantShares {
		got := end.Winners[i].SharePercent
		if got < want-0.001 || got > want+0.001 {
			t.Fatalf("winners[%d].SharePercent = %f, want %f", i, got, want)
		}
	}

	// Payouts are disabled, so every reward fails but the broadcast
	// still goes out.
	rewards := sink.waitFor(t, EventRewardsDistributed).payload.(RewardsDistributed)
	if rewards.Success {
		t.Fatal("rewards succeeded with payouts disabled")
	}
	if len(rewards.Winners) != 3 {
		t.Fatalf("reward results = %d", len(rewards.Winners))
	}
}

func TestEndGameZeroScoresSplitEqually(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{MaxPlayers: 3, CoinCount: 3})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))
	c.JoinLobby("conn3", testWallet("c"))

	c.mu.Lock()
	c.endGameLocked()
	c.mu.Unlock()

	end := sink.waitFor(t, EventGameEnd).payload.(GameEnd)
	if end.TotalTopCoins != 0 {
		t.Fatalf("totalTopCoins = %d", end.TotalTopCoins)
	}
	for _, w := range end.Winners {
		want := 100.0 / 3
		if w.SharePercent < want-0.001 || w.SharePercent > want+0.001 {
			t.Fatalf("share = %f, want %f", w.SharePercent, want)
		}
	}
}

func TestRoundLifecycle(t *testing.T) {
	c, sink := newTestCoordinator(t, Config{
		MaxPlayers:     4,
		LobbyCountdown: 5 * time.Millisecond,
		RoundDuration:  15 * time.Millisecond,
		ResultsDelay:   5 * time.Millisecond,
		CoinCount:      3,
	})

	c.JoinLobby("conn1", testWallet("a"))
	c.JoinLobby("conn2", testWallet("b"))

	sink.waitFor(t, EventGameStart)
	sink.waitFor(t, EventGameTimer)
	sink.waitFor(t, EventGameEnd)
	sink.waitFor(t, EventGameReset)

	if c.Phase() != PhaseLobby {
		t.Fatalf("phase after reset = %s", c.Phase())
	}

	// The same wallets can join the next round immediately.
	if reply := c.JoinLobby("conn1", testWallet("a")); !reply.Success {
		t.Fatalf("rejoin rejected: %s", reply.Reason)
	}

	session, _ := c.registry.Lookup("conn2")
	if session.Role != RoleUnset {
		t.Fatalf("role after reset = %s", session.Role)
	}
}
