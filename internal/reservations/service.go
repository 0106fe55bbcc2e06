package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

var reservationsTracer = otel.Tracer("coworkhub.internal.reservations")

// Notifier is the external notification collaborator. Dispatch is at-most-once
// and best-effort: failures are logged and never affect a transition outcome.
type Notifier interface {
	NotifyConfirmed(ctx context.Context, res *Reservation) error
	NotifyCancelled(ctx context.Context, code, customerName string, id uuid.UUID) error
}

// Service is the authoritative payment state machine for reservations.
// Every transition takes the caller's clock so the decision logic stays pure
// and testable; serialization per reservation comes from the store's
// conditional updates, not from in-process locks.
type Service struct {
	store              *Store
	notifier           Notifier
	logger             *logging.Logger
	cancellationWindow time.Duration
	pendingTimeout     time.Duration
}

// NewService constructs the state machine service.
func NewService(store *Store, notifier Notifier, cancellationWindow, pendingTimeout time.Duration, logger *logging.Logger) *Service {
	if store == nil {
		panic("reservations: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:              store,
		notifier:           notifier,
		logger:             logger,
		cancellationWindow: cancellationWindow,
		pendingTimeout:     pendingTimeout,
	}
}

// Get loads a reservation by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return s.store.GetByID(ctx, id)
}

// GetByCode loads a reservation by its human-readable code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Reservation, error) {
	return s.store.GetByCode(ctx, code)
}

// ConfirmViaWebhook applies a matched bank credit to a pending reservation.
// Duplicate deliveries against an already-confirmed reservation are a no-op
// success; a credit landing on a cancelled reservation returns
// ErrAlreadyCancelled and is logged for manual reconciliation.
func (s *Service) ConfirmViaWebhook(ctx context.Context, id uuid.UUID, observedAmountCents int64, txnRef string, now time.Time) (*Reservation, error) {
	ctx, span := reservationsTracer.Start(ctx, "reservations.confirm_via_webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("coworkhub.reservation_id", id.String()),
		attribute.String("coworkhub.txn_ref", txnRef),
		attribute.Int64("coworkhub.amount_cents", observedAmountCents),
	)

	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch res.Status {
	case StatusCancelled:
		s.logger.Error("payment received for cancelled reservation, flagging for manual review",
			"reservation_id", id, "code", res.Code, "txn_ref", txnRef, "amount_cents", observedAmountCents)
		return nil, fmt.Errorf("confirm via webhook %s: %w", res.Code, ErrAlreadyCancelled)
	case StatusConfirmed, StatusInUse, StatusCompleted:
		// Banks retry deliveries; an already-settled reservation is a no-op.
		s.logger.Info("duplicate payment confirmation ignored", "reservation_id", id, "code", res.Code, "txn_ref", txnRef)
		return res, nil
	}

	if observedAmountCents < res.DepositCents {
		s.logger.Error("credit amount below required deposit, flagging for manual review",
			"reservation_id", id, "code", res.Code, "txn_ref", txnRef,
			"observed_cents", observedAmountCents, "deposit_cents", res.DepositCents)
		return nil, fmt.Errorf("confirm via webhook %s: %w", res.Code, ErrAmountMismatch)
	}

	updated, err := s.store.ConfirmDeposit(ctx, id, DepositPaidOnline, now, txnRef)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if updated == nil {
		// Lost the race: someone else transitioned the row first.
		return s.classifyLostConfirm(ctx, id, txnRef)
	}

	s.logger.Info("reservation confirmed via webhook",
		"reservation_id", id, "code", updated.Code, "txn_ref", txnRef, "amount_cents", observedAmountCents)
	s.dispatchConfirmed(updated)
	return updated, nil
}

// ConfirmManually applies an admin's manual deposit confirmation. Unlike the
// webhook path this is strict: confirming a non-pending reservation is a real
// operator error, not a retry.
func (s *Service) ConfirmManually(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*Reservation, error) {
	ctx, span := reservationsTracer.Start(ctx, "reservations.confirm_manually")
	defer span.End()
	span.SetAttributes(
		attribute.String("coworkhub.reservation_id", id.String()),
		attribute.String("coworkhub.actor_id", actorID.String()),
	)

	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusPending {
		return nil, fmt.Errorf("confirm manually %s in status %s: %w", res.Code, res.Status, ErrInvalidState)
	}

	updated, err := s.store.ConfirmDeposit(ctx, id, DepositPaidManual, now, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("confirm manually %s: state changed concurrently: %w", res.Code, ErrInvalidState)
	}

	s.logger.Info("reservation confirmed manually", "reservation_id", id, "code", updated.Code, "actor_id", actorID)
	s.dispatchConfirmed(updated)
	return updated, nil
}

// CancelByCustomer cancels a reservation on the owner's request, provided the
// start time is still outside the configured cancellation window.
func (s *Service) CancelByCustomer(ctx context.Context, id, requesterID uuid.UUID, now time.Time) (*Reservation, error) {
	ctx, span := reservationsTracer.Start(ctx, "reservations.cancel_by_customer")
	defer span.End()
	span.SetAttributes(attribute.String("coworkhub.reservation_id", id.String()))

	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.CustomerID != requesterID {
		return nil, fmt.Errorf("cancel %s by %s: %w", res.Code, requesterID, ErrNotOwner)
	}
	switch res.Status {
	case StatusPending, StatusConfirmed:
	case StatusCancelled:
		return nil, fmt.Errorf("cancel %s: %w", res.Code, ErrAlreadyCancelled)
	default:
		return nil, fmt.Errorf("cancel %s in status %s: %w", res.Code, res.Status, ErrInvalidState)
	}
	if !now.Before(res.StartsAt.Add(-s.cancellationWindow)) {
		return nil, fmt.Errorf("cancel %s at %s (starts %s): %w", res.Code, now.Format(time.RFC3339), res.StartsAt.Format(time.RFC3339), ErrTooLate)
	}

	note := fmt.Sprintf("cancelled by customer at %s", now.UTC().Format(time.RFC3339))
	updated, err := s.store.Cancel(ctx, id, note, now, StatusPending, StatusConfirmed)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if updated == nil {
		return nil, s.classifyLostCancel(ctx, id)
	}

	s.logger.Info("reservation cancelled by customer", "reservation_id", id, "code", updated.Code)
	s.dispatchCancelled(updated)
	return updated, nil
}

// CancelByExpiry cancels a reservation whose deposit stayed unpaid past the
// pending timeout. System-initiated, so no ownership check.
func (s *Service) CancelByExpiry(ctx context.Context, id uuid.UUID, now time.Time) (*Reservation, error) {
	ctx, span := reservationsTracer.Start(ctx, "reservations.cancel_by_expiry")
	defer span.End()
	span.SetAttributes(attribute.String("coworkhub.reservation_id", id.String()))

	cutoff := now.Add(-s.pendingTimeout)
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusPending || res.DepositStatus != DepositPending || !res.CreatedAt.Before(cutoff) {
		return nil, fmt.Errorf("expire %s: %w", res.Code, ErrInvalidState)
	}

	note := fmt.Sprintf("auto-cancelled at %s: deposit unpaid past timeout", now.UTC().Format(time.RFC3339))
	updated, err := s.store.CancelExpired(ctx, id, note, now, cutoff)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if updated == nil {
		// A webhook confirmation or another sweep got there first.
		return nil, fmt.Errorf("expire %s: %w", res.Code, ErrInvalidState)
	}

	s.logger.Info("reservation auto-cancelled by expiry sweep", "reservation_id", id, "code", updated.Code)
	s.dispatchCancelled(updated)
	return updated, nil
}

// CancelByAdmin is the administrative override: any non-terminal reservation
// can be cancelled, and the action is always logged with the actor.
func (s *Service) CancelByAdmin(ctx context.Context, id, actorID uuid.UUID, reason string, now time.Time) (*Reservation, error) {
	ctx, span := reservationsTracer.Start(ctx, "reservations.cancel_by_admin")
	defer span.End()
	span.SetAttributes(
		attribute.String("coworkhub.reservation_id", id.String()),
		attribute.String("coworkhub.actor_id", actorID.String()),
	)

	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusCancelled {
		return nil, fmt.Errorf("admin cancel %s: %w", res.Code, ErrAlreadyCancelled)
	}

	note := fmt.Sprintf("cancelled by admin %s at %s", actorID, now.UTC().Format(time.RFC3339))
	if reason != "" {
		note += ": " + reason
	}
	updated, err := s.store.Cancel(ctx, id, note, now, StatusPending, StatusConfirmed, StatusInUse, StatusCompleted)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if updated == nil {
		return nil, s.classifyLostCancel(ctx, id)
	}

	s.logger.Info("reservation cancelled by admin", "reservation_id", id, "code", updated.Code, "actor_id", actorID, "reason", reason)
	s.dispatchCancelled(updated)
	return updated, nil
}

// classifyLostConfirm re-reads the row after a lost conditional update and
// maps the observed state to the idempotency rules.
func (s *Service) classifyLostConfirm(ctx context.Context, id uuid.UUID, txnRef string) (*Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case StatusCancelled:
		s.logger.Error("payment confirmation lost race to cancellation, flagging for manual review",
			"reservation_id", id, "code", res.Code, "txn_ref", txnRef)
		return nil, fmt.Errorf("confirm via webhook %s: %w", res.Code, ErrAlreadyCancelled)
	case StatusConfirmed, StatusInUse, StatusCompleted:
		return res, nil
	default:
		return nil, fmt.Errorf("confirm via webhook %s in status %s: %w", res.Code, res.Status, ErrInvalidState)
	}
}

func (s *Service) classifyLostCancel(ctx context.Context, id uuid.UUID) error {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if res.Status == StatusCancelled {
		return fmt.Errorf("cancel %s: %w", res.Code, ErrAlreadyCancelled)
	}
	return fmt.Errorf("cancel %s in status %s: %w", res.Code, res.Status, ErrInvalidState)
}

// dispatchConfirmed fires the confirmation notification without blocking the
// transition. The background context keeps the send alive after the request
// that triggered it completes.
func (s *Service) dispatchConfirmed(res *Reservation) {
	if s.notifier == nil {
		return
	}
	copied := *res
	go func() {
		defer s.recoverNotify(copied.Code)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyConfirmed(ctx, &copied); err != nil {
			s.logger.Warn("confirmation notification failed", "error", err, "code", copied.Code)
		}
	}()
}

func (s *Service) dispatchCancelled(res *Reservation) {
	if s.notifier == nil {
		return
	}
	copied := *res
	go func() {
		defer s.recoverNotify(copied.Code)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyCancelled(ctx, copied.Code, copied.CustomerName, copied.ID); err != nil {
			s.logger.Warn("cancellation notification failed", "error", err, "code", copied.Code)
		}
	}()
}

func (s *Service) recoverNotify(code string) {
	if r := recover(); r != nil {
		s.logger.Error("notification dispatch panicked", "code", code, "panic", r)
	}
}
