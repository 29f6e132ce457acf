// Package payout defines the reward distribution contract the coordinator
// depends on, plus the treasury-backed implementation that moves real
// value. The gateway is failure-tolerant by contract: one recipient's
// failure never blocks the others, and no call path surfaces a Go error
// into the game loop.
package payout

import "context"

// Winner is a reward-eligible finisher handed to the gateway.
type Winner struct {
	Address      string
	Place        int
	Score        int
	SharePercent float64
}

// Result is the per-recipient payout outcome.
type Result struct {
	Address    string `json:"address"`
	Succeeded  bool   `json:"succeeded"`
	AmountPaid uint64 `json:"amountPaid"`
	Reference  string `json:"reference,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Gateway attempts to pay each winner its share of the round pool.
// Implementations return one Result per winner, in winner order, and
// never return early on a partial failure.
type Gateway interface {
	Distribute(ctx context.Context, winners []Winner) []Result
}

// Disabled is the gateway used when no treasury endpoint is configured.
// Every winner is reported as unpaid so the round still concludes.
type Disabled struct{}

// Distribute reports every winner as skipped.
func (Disabled) Distribute(_ context.Context, winners []Winner) []Result {
	results := make([]Result, 0, len(winners))
	for _, w := range winners {
		results = append(results, Result{
			Address: w.Address,
			Error:   "payouts are not configured",
		})
	}
	return results
}
