package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates no payment record exists for the lookup.
var ErrNotFound = errors.New("payments: not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides read access and failure marking for payment records. The
// pending → completed transition lives in the reservation confirmation
// transaction, not here, so reservation and payment always move together.
type Store struct {
	db DB
}

// NewStore creates a payment store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const paymentColumns = `id, reservation_id, amount_cents, status, provider_ref, paid_at, created_at, updated_at`

// GetByReservation returns the payment record attached to a reservation.
func (s *Store) GetByReservation(ctx context.Context, reservationID uuid.UUID) (*Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE reservation_id = $1
		ORDER BY created_at DESC LIMIT 1`, reservationID)
	return scanPayment(row)
}

// MarkFailed flags a still-pending payment record as failed, recording the
// provider reference of the rejected transfer for reconciliation.
func (s *Store) MarkFailed(ctx context.Context, reservationID uuid.UUID, providerRef string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payments
		SET status = 'failed', provider_ref = NULLIF($2, ''), updated_at = now()
		WHERE reservation_id = $1 AND status = 'pending'`, reservationID, providerRef)
	if err != nil {
		return false, fmt.Errorf("payments: mark failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var status string
	err := row.Scan(&p.ID, &p.ReservationID, &p.AmountCents, &status, &p.ProviderRef, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: scan: %w", err)
	}
	p.Status = Status(status)
	return &p, nil
}
