package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

// Sweeper forcibly cancels reservations whose deposit stayed unpaid past the
// pending timeout. It is safe to run concurrently with itself and with webhook
// confirmations: the state machine's conditional updates guarantee each
// reservation is cancelled at most once.
type Sweeper struct {
	store  *Store
	svc    *Service
	logger *logging.Logger
}

// NewSweeper creates an expiry sweeper.
func NewSweeper(store *Store, svc *Service, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{store: store, svc: svc, logger: logger}
}

// Sweep cancels all expired unpaid reservations as of now and returns the
// number actually cancelled. Per-item failures are logged and skipped so one
// bad row never fails the whole sweep.
func (w *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-w.svc.pendingTimeout)
	expired, err := w.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	w.logger.Info("expiry sweep: processing unpaid reservations", "count", len(expired))

	cancelled := 0
	for i := range expired {
		r := &expired[i]
		if _, err := w.svc.CancelByExpiry(ctx, r.ID, now); err != nil {
			// Losing the race to a webhook confirmation or an overlapping
			// sweep is expected, not a failure.
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrAlreadyCancelled) {
				w.logger.Info("expiry sweep: reservation transitioned concurrently, skipping",
					"reservation_id", r.ID, "code", r.Code)
				continue
			}
			w.logger.Error("expiry sweep: failed to cancel reservation",
				"reservation_id", r.ID, "code", r.Code, "error", err)
			continue
		}
		cancelled++
	}

	return cancelled, nil
}

// Run invokes Sweep on the given interval until the context is cancelled.
func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.Sweep(ctx, time.Now().UTC())
			if err != nil {
				w.logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if count > 0 {
				w.logger.Info("expiry sweep completed", "cancelled", count)
			}
		}
	}
}
