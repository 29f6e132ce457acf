package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pennyrush/arena/internal/platform/timeouts"
)

// ErrInsufficientFunds marks a pool too small to cover the fee reserve.
var ErrInsufficientFunds = errors.New("insufficient distributable funds")

// TreasuryConfig configures the treasury JSON-RPC gateway.
type TreasuryConfig struct {
	// RPCURL is the treasury endpoint that signs and submits transfers.
	RPCURL string
	// PoolLamports is the distributable reward pool per round.
	PoolLamports uint64
	// ReserveLamports is the operational reserve held back from the pool.
	ReserveLamports uint64
	// MaxAttempts caps transfer attempts per recipient. Defaults to 3.
	MaxAttempts uint
	// RetryInterval is the initial backoff interval between attempts.
	// Defaults to one second.
	RetryInterval time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Treasury pays winners by calling a treasury JSON-RPC endpoint. The
// endpoint owns keys, signing, and chain submission; this client only
// requests transfers and reports what happened.
type Treasury struct {
	url           string
	pool          uint64
	reserve       uint64
	maxAttempts   uint
	retryInterval time.Duration
	httpClient    *http.Client
	nextRequestID atomic.Int64
}

// NewTreasury builds a treasury gateway from config.
func NewTreasury(cfg TreasuryConfig) (*Treasury, error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, errors.New("treasury rpc url is required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.TreasuryRequest}
	}
	return &Treasury{
		url:           url,
		pool:          cfg.PoolLamports,
		reserve:       cfg.ReserveLamports,
		maxAttempts:   cfg.MaxAttempts,
		retryInterval: cfg.RetryInterval,
		httpClient:    httpClient,
	}, nil
}

// Distribute pays each winner its share of the pool after the reserve is
// held back. Transport failures are retried with exponential backoff;
// treasury rejections are final for that recipient. A failing recipient
// never stops the rest.
func (t *Treasury) Distribute(ctx context.Context, winners []Winner) []Result {
	results := make([]Result, 0, len(winners))

	if t.pool <= t.reserve {
		for _, w := range winners {
			results = append(results, Result{Address: w.Address, Error: ErrInsufficientFunds.Error()})
		}
		return results
	}
	distributable := t.pool - t.reserve

	for _, w := range winners {
		amount := uint64(float64(distributable) * w.SharePercent / 100.0)
		if amount == 0 {
			results = append(results, Result{Address: w.Address, Error: "computed share is zero"})
			continue
		}

		reference, err := t.transferWithRetry(ctx, w.Address, amount)
		if err != nil {
			results = append(results, Result{Address: w.Address, Error: err.Error()})
			continue
		}
		results = append(results, Result{
			Address:    w.Address,
			Succeeded:  true,
			AmountPaid: amount,
			Reference:  reference,
		})
	}
	return results
}

func (t *Treasury) transferWithRetry(ctx context.Context, recipient string, lamports uint64) (string, error) {
	operation := func() (string, error) {
		return t.transfer(ctx, recipient, lamports)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = t.retryInterval

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(t.maxAttempts),
	)
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  transferParams `json:"params"`
}

type transferParams struct {
	Recipient string `json:"recipient"`
	Lamports  uint64 `json:"lamports"`
}

type rpcResponse struct {
	Result *transferResult `json:"result"`
	Error  *rpcError       `json:"error"`
}

type transferResult struct {
	Signature string `json:"signature"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// transfer performs one treasury call. A JSON-RPC error object is a
// decision by the treasury and is returned as a permanent error; only
// transport-level failures are worth retrying.
func (t *Treasury) transfer(ctx context.Context, recipient string, lamports uint64) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextRequestID.Add(1),
		Method:  "treasury.transfer",
		Params:  transferParams{Recipient: recipient, Lamports: lamports},
	})
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("encode transfer request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build transfer request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call treasury: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("treasury status %d", resp.StatusCode)
	}

	var payload rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode treasury response: %w", err)
	}
	if payload.Error != nil {
		return "", backoff.Permanent(fmt.Errorf("treasury rejected transfer: %s (code %d)", payload.Error.Message, payload.Error.Code))
	}
	if payload.Result == nil || strings.TrimSpace(payload.Result.Signature) == "" {
		return "", backoff.Permanent(errors.New("treasury returned no signature"))
	}
	return payload.Result.Signature, nil
}
