package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dangtnh/coworkhub-platform/internal/http/middleware"
	"github.com/dangtnh/coworkhub-platform/internal/observability/metrics"
	"github.com/dangtnh/coworkhub-platform/internal/payments"
	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

type paymentReader interface {
	GetByReservation(ctx context.Context, reservationID uuid.UUID) (*payments.Payment, error)
}

// Handler exposes customer and admin reservation operations plus the sweep
// trigger for the external scheduler.
type Handler struct {
	svc      *Service
	sweeper  *Sweeper
	payments paymentReader
	metrics  *metrics.ReconciliationMetrics
	logger   *logging.Logger
}

// NewHandler creates a reservations HTTP handler.
func NewHandler(svc *Service, sweeper *Sweeper, payments paymentReader, m *metrics.ReconciliationMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, sweeper: sweeper, payments: payments, metrics: m, logger: logger}
}

// CancelByCustomer handles POST /reservations/{id}/cancel. The requester
// identity comes from the authentication collaborator upstream and is carried
// in the X-Customer-ID header.
func (h *Handler) CancelByCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}
	requesterID, err := uuid.Parse(r.Header.Get("X-Customer-ID"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing customer identity")
		return
	}

	res, err := h.svc.CancelByCustomer(r.Context(), id, requesterID, time.Now().UTC())
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdminConfirm handles POST /admin/reservations/{id}/confirm — manual deposit
// confirmation by an operator.
func (h *Handler) AdminConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}
	actorID, ok := adminActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing admin identity")
		return
	}

	res, err := h.svc.ConfirmManually(r.Context(), id, actorID, time.Now().UTC())
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdminCancel handles POST /admin/reservations/{id}/cancel — administrative
// override cancellation.
func (h *Handler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}
	actorID, ok := adminActor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing admin identity")
		return
	}

	// The reason is optional, so an empty body is fine, but a body that
	// fails to parse should not turn into a reasonless cancellation.
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.CancelByAdmin(r.Context(), id, actorID, body.Reason, time.Now().UTC())
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdminGet handles GET /admin/reservations/{id} — reservation plus its
// payment record for reconciliation review.
func (h *Handler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	res, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	var payment *payments.Payment
	if h.payments != nil {
		payment, err = h.payments.GetByReservation(r.Context(), id)
		if err != nil && !errors.Is(err, payments.ErrNotFound) {
			h.logger.Error("payment lookup failed", "error", err, "reservation_id", id)
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reservation": res,
		"payment":     payment,
	})
}

// TriggerSweep handles POST /internal/sweep, invoked by the external
// scheduler. Idempotent: overlapping invocations cannot double-cancel.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.sweeper.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("sweep trigger failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	h.metrics.ObserveSweep(count)
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": count})
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "reservation not found")
	case errors.Is(err, ErrNotOwner):
		writeError(w, http.StatusForbidden, "not the reservation owner")
	case errors.Is(err, ErrTooLate):
		writeError(w, http.StatusConflict, "cancellation window has passed")
	case errors.Is(err, ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "reservation already cancelled")
	case errors.Is(err, ErrInvalidState):
		writeError(w, http.StatusConflict, "reservation state does not permit this operation")
	default:
		h.logger.Error("reservation operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func adminActor(r *http.Request) (uuid.UUID, bool) {
	claims, ok := middleware.AdminClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
