package domain

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pennyrush/arena/internal/platform/id"
	"github.com/pennyrush/arena/internal/platform/timeouts"
	"github.com/pennyrush/arena/internal/services/arena/payout"
	"github.com/pennyrush/arena/internal/services/arena/storage"
)

// startCountdownLocked runs a cancellable per-tick countdown. The caller
// must hold the mutex. Bumping timerGen cancels any previous countdown.
func (c *Coordinator) startCountdownLocked(total int, tick func(gen uint64, remaining, total int) bool, expire func(gen uint64)) {
	c.timerGen++
	gen := c.timerGen

	go func() {
		ticker := time.NewTicker(c.tickEvery)
		defer ticker.Stop()
		for remaining := total; remaining > 0; remaining-- {
			if !tick(gen, remaining, total) {
				return
			}
			<-ticker.C
		}
		expire(gen)
	}()
}

func (c *Coordinator) startLobbyCountdownLocked() {
	c.startCountdownLocked(c.ticksFor(c.cfg.LobbyCountdown), c.lobbyTick, c.lobbyExpired)
}

func (c *Coordinator) lobbyTick(gen uint64, remaining, total int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.phase != PhaseLobby {
		return false
	}
	c.sink.Broadcast(EventLobbyTimer, CountdownState{Remaining: remaining, Total: total})
	return true
}

func (c *Coordinator) lobbyExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.phase != PhaseLobby {
		return
	}
	if len(c.lobby) >= minPlayersToStart {
		c.startGameLocked()
		return
	}

	c.sink.Broadcast(EventLobbyMessage, LobbyMessage{
		Message: fmt.Sprintf("Need at least %d players to start. Restarting the countdown.", minPlayersToStart),
	})
	if len(c.lobby) > 0 {
		c.startLobbyCountdownLocked()
	}
}

// startGameLocked promotes every lobby entry into an active player,
// spawns the penny set, and begins the round timer.
func (c *Coordinator) startGameLocked() {
	c.phase = PhasePlaying

	roundID, err := id.NewID()
	if err != nil {
		roundID = fmt.Sprintf("round_%d", time.Now().UnixNano())
	}
	c.roundID = roundID
	c.roundStart = time.Now()
	c.roundEnds = c.roundStart.Add(c.cfg.RoundDuration)
	c.collectedCount = 0

	c.playerOrder = append([]string(nil), c.lobbyOrder...)
	for _, connID := range c.lobbyOrder {
		entry := c.lobby[connID]
		c.players[connID] = &Player{
			ID:       connID,
			Wallet:   entry.Wallet,
			Position: c.spawnPositionLocked(),
		}
		if session, ok := c.registry.Lookup(connID); ok {
			session.Role = RolePlayer
		}
	}
	c.lobby = make(map[string]LobbyEntry)
	c.lobbyOrder = nil

	for i := 0; i < c.cfg.CoinCount; i++ {
		pennyID := fmt.Sprintf("penny_%d", i)
		c.pennies[pennyID] = &Penny{
			ID:       pennyID,
			Position: c.pennyPositionLocked(),
		}
		c.pennyOrder = append(c.pennyOrder, pennyID)
	}

	logf("round %s started with %d players and %d pennies", c.roundID, len(c.players), len(c.pennies))
	c.sink.Broadcast(EventGameStart, GameStart{
		Players:  c.playersSnapshotLocked(),
		Pennies:  c.penniesSnapshotLocked(),
		Duration: c.ticksFor(c.cfg.RoundDuration),
	})

	c.startCountdownLocked(c.ticksFor(c.cfg.RoundDuration), c.gameTick, c.gameExpired)
}

// spawnPositionLocked picks a spawn on a ring: uniform angle, radius in a
// fixed band, eyes at a fixed height.
func (c *Coordinator) spawnPositionLocked() Vec3 {
	angle := c.rng.Float64() * 2 * math.Pi
	radiusMax := spawnRadiusMax
	if limit := c.cfg.MapExtent / 2; radiusMax > limit {
		radiusMax = limit
	}
	radius := spawnRadiusMin + c.rng.Float64()*(radiusMax-spawnRadiusMin)
	return Vec3{
		X: math.Cos(angle) * radius,
		Y: eyeHeight,
		Z: math.Sin(angle) * radius,
	}
}

// pennyPositionLocked picks a penny spot uniformly across the map extent.
func (c *Coordinator) pennyPositionLocked() Vec3 {
	return Vec3{
		X: (c.rng.Float64() - 0.5) * c.cfg.MapExtent,
		Y: pennyHeight,
		Z: (c.rng.Float64() - 0.5) * c.cfg.MapExtent,
	}
}

func (c *Coordinator) gameTick(gen uint64, remaining, total int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.phase != PhasePlaying {
		return false
	}
	c.sink.Broadcast(EventGameTimer, CountdownState{Remaining: remaining, Total: total})
	return true
}

func (c *Coordinator) gameExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.phase != PhasePlaying {
		return
	}
	c.endGameLocked()
}

// endGameLocked concludes the round: rankings, winners, the game_end
// broadcast, best-effort history, and the asynchronous payout. The
// results-to-lobby delay runs independently of payout completion.
func (c *Coordinator) endGameLocked() {
	c.phase = PhaseResults
	c.timerGen++
	gen := c.timerGen

	rankings := rankPlayers(c.playersInOrderLocked())
	winners, topScore := pickWinners(rankings)

	logf("round %s ended: %d players, %d/%d pennies collected, %d winners",
		c.roundID, len(rankings), c.collectedCount, len(c.pennies), len(winners))
	c.sink.Broadcast(EventGameEnd, GameEnd{
		Rankings:      rankings,
		Winners:       winners,
		TotalTopCoins: topScore,
	})

	record := storage.RoundRecord{
		ID:        c.roundID,
		StartedAt: c.roundStart,
		EndedAt:   time.Now(),
		Players:   len(rankings),
		Pennies:   len(c.pennies),
		Collected: c.collectedCount,
	}

	recipients := make([]payout.Winner, 0, len(winners))
	for _, w := range winners {
		recipients = append(recipients, payout.Winner{
			Address:      w.Wallet,
			Place:        w.Place,
			Score:        w.Score,
			SharePercent: w.SharePercent,
		})
	}

	go c.concludeRound(c.roundID, record, winners, recipients)

	delay := c.cfg.ResultsDelay
	time.AfterFunc(delay, func() {
		c.resetAfterResults(gen)
	})
}

// concludeRound persists the round and distributes rewards. It runs off
// the game loop; the coordinator keeps accepting lobby joins while a slow
// or failing payout grinds on.
func (c *Coordinator) concludeRound(roundID string, record storage.RoundRecord, winners []WinnerEntry, recipients []payout.Winner) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.PayoutRound)
	defer cancel()

	if c.store != nil {
		if err := c.store.AppendRound(ctx, record); err != nil {
			logf("append round %s: %v", roundID, err)
		}
	}

	if len(recipients) == 0 {
		return
	}

	ctx, span := otel.Tracer("arena").Start(ctx, "payout.distribute",
		trace.WithAttributes(
			attribute.String("round.id", roundID),
			attribute.Int("round.winners", len(recipients)),
		))
	defer span.End()

	results := c.payer.Distribute(ctx, recipients)

	success := len(results) > 0
	for _, result := range results {
		if !result.Succeeded {
			success = false
			logf("payout to %s failed: %s", result.Address, result.Error)
		}
	}
	c.sink.Broadcast(EventRewardsDistributed, RewardsDistributed{Winners: results, Success: success})

	if c.store != nil {
		records := make([]storage.PayoutRecord, 0, len(results))
		for i, result := range results {
			winner := winners[i]
			records = append(records, storage.PayoutRecord{
				RoundID:          roundID,
				Place:            winner.Place,
				Wallet:           winner.Wallet,
				Score:            winner.Score,
				ShareBasisPoints: int(math.Round(winner.SharePercent * 100)),
				Lamports:         result.AmountPaid,
				Reference:        result.Reference,
				Error:            result.Error,
			})
		}
		if err := c.store.AppendPayouts(ctx, records); err != nil {
			logf("append payouts for round %s: %v", roundID, err)
		}
	}
}

func (c *Coordinator) resetAfterResults(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.phase != PhaseResults {
		return
	}
	c.resetLocked()
}

// resetLocked clears all round state and reopens the lobby. There is no
// per-wallet cooldown: a wallet may rejoin the next round immediately.
func (c *Coordinator) resetLocked() {
	c.phase = PhaseLobby
	c.timerGen++

	c.players = make(map[string]*Player)
	c.playerOrder = nil
	c.pennies = make(map[string]*Penny)
	c.pennyOrder = nil
	c.spectators = make(map[string]struct{})
	c.lobby = make(map[string]LobbyEntry)
	c.lobbyOrder = nil
	c.roundID = ""
	c.collectedCount = 0
	c.registry.ResetRoles()

	logf("round reset, lobby reopened")
	c.sink.Broadcast(EventGameReset, GameReset{Message: "Round over. The lobby is open again."})
}
