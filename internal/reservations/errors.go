package reservations

import "errors"

// Transition errors returned by the payment state machine. Callers classify
// them with errors.Is to decide between retry-safe no-ops and real anomalies.
var (
	// ErrNotFound indicates the reservation does not exist.
	ErrNotFound = errors.New("reservations: not found")

	// ErrInvalidState indicates the reservation is not in a state the
	// requested transition accepts.
	ErrInvalidState = errors.New("reservations: invalid state for transition")

	// ErrAlreadyCancelled indicates a confirmation arrived after the
	// reservation was cancelled. Money may have moved with no matching
	// system state, so callers must flag this for manual review.
	ErrAlreadyCancelled = errors.New("reservations: already cancelled")

	// ErrTooLate indicates a customer cancellation inside the minimum
	// lead-time window.
	ErrTooLate = errors.New("reservations: too late to cancel")

	// ErrNotOwner indicates the requester does not own the reservation.
	ErrNotOwner = errors.New("reservations: requester is not the owner")

	// ErrAmountMismatch indicates the observed credit is below the
	// required deposit. The transfer is flagged for manual review rather
	// than silently accepted.
	ErrAmountMismatch = errors.New("reservations: credit amount below required deposit")
)
