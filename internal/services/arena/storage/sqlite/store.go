// Package sqlite provides the SQLite-backed round-history store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pennyrush/arena/internal/platform/storage/sqlitemigrate"
	"github.com/pennyrush/arena/internal/services/arena/storage"
	"github.com/pennyrush/arena/internal/services/arena/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed storage.RoundStore.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the round-history database at path and applies
// embedded migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes through a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database. Nil-safe so callers can defer it
// in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendRound records one completed round.
func (s *Store) AppendRound(ctx context.Context, record storage.RoundRecord) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO rounds (id, started_at, ended_at, players, pennies, collected)
VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		toMillis(record.StartedAt),
		toMillis(record.EndedAt),
		record.Players,
		record.Pennies,
		record.Collected,
	)
	if err != nil {
		return fmt.Errorf("insert round %s: %w", record.ID, err)
	}
	return nil
}

// AppendPayouts records the payout outcomes for a round.
func (s *Store) AppendPayouts(ctx context.Context, records []storage.PayoutRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payouts transaction: %w", err)
	}
	for _, record := range records {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO round_payouts (round_id, place, wallet, score, share_bps, lamports, reference, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.RoundID,
			record.Place,
			record.Wallet,
			record.Score,
			record.ShareBasisPoints,
			record.Lamports,
			record.Reference,
			record.Error,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert payout for %s place %d: %w", record.RoundID, record.Place, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payouts: %w", err)
	}
	return nil
}

// Rounds returns all recorded rounds, oldest first.
func (s *Store) Rounds(ctx context.Context) ([]storage.RoundRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, started_at, ended_at, players, pennies, collected
FROM rounds ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var records []storage.RoundRecord
	for rows.Next() {
		var record storage.RoundRecord
		var startedAt, endedAt int64
		if err := rows.Scan(&record.ID, &startedAt, &endedAt, &record.Players, &record.Pennies, &record.Collected); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		record.StartedAt = fromMillis(startedAt)
		record.EndedAt = fromMillis(endedAt)
		records = append(records, record)
	}
	return records, rows.Err()
}

// RoundPayouts returns the payout records for a round, by place.
func (s *Store) RoundPayouts(ctx context.Context, roundID string) ([]storage.PayoutRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT round_id, place, wallet, score, share_bps, lamports, reference, error
FROM round_payouts WHERE round_id = ? ORDER BY place`, roundID)
	if err != nil {
		return nil, fmt.Errorf("query payouts: %w", err)
	}
	defer rows.Close()

	var records []storage.PayoutRecord
	for rows.Next() {
		var record storage.PayoutRecord
		if err := rows.Scan(
			&record.RoundID,
			&record.Place,
			&record.Wallet,
			&record.Score,
			&record.ShareBasisPoints,
			&record.Lamports,
			&record.Reference,
			&record.Error,
		); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
