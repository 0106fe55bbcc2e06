package vietqr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore durably records transaction notifications that were already
// applied, so redelivered webhooks short-circuit to success.
type ProcessedStore struct {
	db rowQuerier
}

// NewProcessedStore creates a processed-events store.
func NewProcessedStore(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("vietqr: db required")
	}
	return &ProcessedStore{db: db}
}

// AlreadyProcessed checks if the provider transaction id was seen before.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, txnID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.db.QueryRow(ctx, query, provider, txnID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("vietqr: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts the transaction id, returning false if it already existed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, txnID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, provider, txnID)
	if err != nil {
		return false, fmt.Errorf("vietqr: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
