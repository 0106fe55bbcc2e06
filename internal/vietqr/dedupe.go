package vietqr

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

const dedupeProvider = "vietqr"

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, txnID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, txnID string) (bool, error)
}

// Deduper guards against duplicate webhook deliveries. Redis is a best-effort
// fast path with a TTL; the processed_events table is the durable record and
// the source of truth when Redis is unavailable.
type Deduper struct {
	rdb    redis.UniversalClient
	store  processedTracker
	ttl    time.Duration
	logger *logging.Logger
}

// NewDeduper creates a deduper. rdb may be nil, in which case only the
// durable store is consulted.
func NewDeduper(rdb redis.UniversalClient, store processedTracker, ttl time.Duration, logger *logging.Logger) *Deduper {
	if store == nil {
		panic("vietqr: processed store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{rdb: rdb, store: store, ttl: ttl, logger: logger}
}

func dedupeKey(txnID string) string {
	return fmt.Sprintf("vietqr:txn:%s", txnID)
}

// Seen reports whether the transaction id was already applied.
func (d *Deduper) Seen(ctx context.Context, txnID string) (bool, error) {
	if d.rdb != nil {
		n, err := d.rdb.Exists(ctx, dedupeKey(txnID)).Result()
		if err != nil {
			d.logger.Warn("dedupe cache lookup failed, falling back to store", "error", err, "txn_id", txnID)
		} else if n > 0 {
			return true, nil
		}
	}
	return d.store.AlreadyProcessed(ctx, dedupeProvider, txnID)
}

// Mark records the transaction id durably and primes the cache.
func (d *Deduper) Mark(ctx context.Context, txnID string) error {
	if _, err := d.store.MarkProcessed(ctx, dedupeProvider, txnID); err != nil {
		return err
	}
	if d.rdb != nil {
		if err := d.rdb.Set(ctx, dedupeKey(txnID), "1", d.ttl).Err(); err != nil {
			d.logger.Warn("dedupe cache write failed", "error", err, "txn_id", txnID)
		}
	}
	return nil
}
