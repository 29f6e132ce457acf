// Package storage defines the round-history persistence contract. The
// coordinator writes best-effort records at round end; a failing store is
// logged and never interrupts game flow.
package storage

import (
	"context"
	"time"
)

// RoundRecord summarizes one completed round.
type RoundRecord struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Players   int
	Pennies   int
	Collected int
}

// PayoutRecord is one winner's payout outcome for a round.
type PayoutRecord struct {
	RoundID          string
	Place            int
	Wallet           string
	Score            int
	ShareBasisPoints int
	Lamports         uint64
	Reference        string
	Error            string
}

// RoundStore persists round history.
type RoundStore interface {
	AppendRound(ctx context.Context, record RoundRecord) error
	AppendPayouts(ctx context.Context, records []PayoutRecord) error
	Close() error
}
