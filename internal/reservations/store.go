package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const reservationColumns = `id, code, customer_id, customer_name, customer_email, room_id,
		starts_at, ends_at, amount_cents, deposit_cents, status, deposit_status,
		note, deposit_paid_at, created_at, updated_at`

// Store provides persistence for reservations and their payment records.
// All status transitions are conditional updates: the WHERE clause carries the
// expected prior state, so concurrent transitions serialize at the row and the
// loser observes zero rows affected.
type Store struct {
	db DB
}

// NewStore creates a reservation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetByID loads a reservation by its UUID.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE id = $1`, id)
	return scanReservation(row)
}

// GetByCode loads a reservation by its human-readable code.
func (s *Store) GetByCode(ctx context.Context, code string) (*Reservation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE code = $1`, code)
	return scanReservation(row)
}

// ConfirmDeposit transitions pending → confirmed and completes the pending
// payment record in a single transaction. Returns (nil, nil) when the
// reservation was not in pending state anymore, leaving classification of the
// lost race to the caller.
func (s *Store) ConfirmDeposit(ctx context.Context, id uuid.UUID, how DepositStatus, paidAt time.Time, providerRef string) (*Reservation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservations: begin confirm: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE reservations
		SET status = 'confirmed', deposit_status = $2, deposit_paid_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+reservationColumns, id, string(how), paidAt)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reservations: confirm deposit: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'completed', paid_at = $2, provider_ref = NULLIF($3, ''), updated_at = $2
		WHERE reservation_id = $1 AND status = 'pending'`, id, paidAt, providerRef); err != nil {
		return nil, fmt.Errorf("reservations: complete payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("reservations: commit confirm: %w", err)
	}
	return res, nil
}

// Cancel transitions a reservation to cancelled when its current status is one
// of the expected prior states. The note is appended with its own line.
// Returns (nil, nil) when the conditional update matched no row.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, note string, now time.Time, from ...Status) (*Reservation, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("reservations: cancel requires expected prior states")
	}
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE reservations
		SET status = 'cancelled',
		    note = CASE WHEN note = '' THEN $2 ELSE note || E'\n' || $2 END,
		    updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+reservationColumns, id, note, now, states)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reservations: cancel: %w", err)
	}
	return res, nil
}

// CancelExpired is the sweep variant of Cancel: it additionally requires the
// deposit to still be unpaid and the reservation to be older than the cutoff,
// so two overlapping sweeps (or a sweep racing a webhook) cannot both apply.
func (s *Store) CancelExpired(ctx context.Context, id uuid.UUID, note string, now, cutoff time.Time) (*Reservation, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE reservations
		SET status = 'cancelled',
		    note = CASE WHEN note = '' THEN $2 ELSE note || E'\n' || $2 END,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending' AND deposit_status = 'pending' AND created_at < $4
		RETURNING `+reservationColumns, id, note, now, cutoff)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reservations: cancel expired: %w", err)
	}
	return res, nil
}

// ListExpired returns reservations eligible for the expiry sweep as of cutoff.
func (s *Store) ListExpired(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'pending' AND deposit_status = 'pending' AND created_at < $1
		ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reservations: list expired: %w", err)
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var status, depositStatus string
	err := row.Scan(
		&r.ID, &r.Code, &r.CustomerID, &r.CustomerName, &r.CustomerEmail, &r.RoomID,
		&r.StartsAt, &r.EndsAt, &r.AmountCents, &r.DepositCents, &status, &depositStatus,
		&r.Note, &r.DepositPaidAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reservations: scan: %w", err)
	}
	r.Status = Status(status)
	r.DepositStatus = DepositStatus(depositStatus)
	return &r, nil
}
