package reservations

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the overall lifecycle of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusInUse     Status = "in_use"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// DepositStatus tracks how the deposit was settled, independent of the
// overall reservation status.
type DepositStatus string

const (
	DepositPending    DepositStatus = "pending"
	DepositPaidOnline DepositStatus = "paid_online"
	DepositPaidManual DepositStatus = "paid_manual"
)

// Reservation represents a room booking awaiting or holding a deposit.
// Invariants: status=confirmed implies deposit_status != pending;
// status=cancelled is terminal; deposit_paid_at is set exactly once.
type Reservation struct {
	ID            uuid.UUID     `json:"id"`
	Code          string        `json:"code"`
	CustomerID    uuid.UUID     `json:"customer_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	RoomID        uuid.UUID     `json:"room_id"`
	StartsAt      time.Time     `json:"starts_at"`
	EndsAt        time.Time     `json:"ends_at"`
	AmountCents   int64         `json:"amount_cents"`
	DepositCents  int64         `json:"deposit_cents"`
	Status        Status        `json:"status"`
	DepositStatus DepositStatus `json:"deposit_status"`
	Note          string        `json:"note"`
	DepositPaidAt *time.Time    `json:"deposit_paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Terminal reports whether no further transition is permitted.
func (r *Reservation) Terminal() bool {
	return r.Status == StatusCancelled
}

// DepositSettled reports whether the deposit has been paid in some form.
func (r *Reservation) DepositSettled() bool {
	return r.DepositStatus != DepositPending
}
