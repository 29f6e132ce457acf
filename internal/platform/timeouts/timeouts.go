// Package timeouts defines shared timeout constants used across the
// process. Centralizing the durations keeps transport and collaborator
// boundaries from drifting apart.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// TreasuryRequest caps a single treasury JSON-RPC call.
const TreasuryRequest = 10 * time.Second

// PayoutRound bounds the whole payout distribution for one round,
// retries included.
const PayoutRound = 2 * time.Minute
