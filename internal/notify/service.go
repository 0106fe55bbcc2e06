package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dangtnh/coworkhub-platform/internal/reservations"
	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

type reservationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*reservations.Reservation, error)
}

// Service builds and sends customer-facing reservation emails. It implements
// the state machine's Notifier contract: at-most-once, best-effort, no result
// consumed by the caller.
type Service struct {
	email        EmailSender
	reservations reservationReader
	logger       *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, resv reservationReader, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, reservations: resv, logger: logger}
}

// NotifyConfirmed emails the customer that their deposit was received and the
// reservation is confirmed.
func (s *Service) NotifyConfirmed(ctx context.Context, res *reservations.Reservation) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping confirmation")
		return nil
	}
	if res.CustomerEmail == "" {
		s.logger.Warn("notify: reservation has no customer email", "code", res.Code)
		return nil
	}

	deposit := fmt.Sprintf("%.2f", float64(res.DepositCents)/100)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour deposit of %s for reservation %s has been received.\n"+
			"Your booking on %s from %s to %s is confirmed.\n\nSee you soon!\nCoworkHub",
		res.CustomerName,
		deposit,
		res.Code,
		res.StartsAt.Format("Monday, January 2 2006"),
		res.StartsAt.Format("15:04"),
		res.EndsAt.Format("15:04"),
	)

	msg := EmailMessage{
		To:      res.CustomerEmail,
		ToName:  res.CustomerName,
		Subject: fmt.Sprintf("Reservation %s confirmed", res.Code),
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: confirmation email: %w", err)
	}
	return nil
}

// NotifyCancelled emails the customer that their reservation was cancelled.
func (s *Service) NotifyCancelled(ctx context.Context, code, customerName string, id uuid.UUID) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping cancellation alert")
		return nil
	}

	var to string
	if s.reservations != nil {
		res, err := s.reservations.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("notify: load reservation %s: %w", code, err)
		}
		to = res.CustomerEmail
	}
	if to == "" {
		s.logger.Warn("notify: no customer email for cancelled reservation", "code", code)
		return nil
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nYour reservation %s was cancelled on %s.\n"+
			"If you did not expect this, please contact support.\n\nCoworkHub",
		customerName,
		code,
		time.Now().UTC().Format("January 2, 2006 at 15:04"),
	)

	msg := EmailMessage{
		To:      to,
		ToName:  customerName,
		Subject: fmt.Sprintf("Reservation %s cancelled", code),
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: cancellation email: %w", err)
	}
	return nil
}

// Ensure the notifier contract stays satisfied.
var _ reservations.Notifier = (*Service)(nil)
