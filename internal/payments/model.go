package payments

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a deposit payment record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payment is the deposit payment record attached to a reservation. At most
// one pending payment exists per reservation; completion happens inside the
// reservation confirmation transaction. Status completed implies the owning
// reservation's deposit status is no longer pending.
type Payment struct {
	ID            uuid.UUID  `json:"id"`
	ReservationID uuid.UUID  `json:"reservation_id"`
	AmountCents   int64      `json:"amount_cents"`
	Status        Status     `json:"status"`
	ProviderRef   *string    `json:"provider_ref,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
