package vietqr

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dangtnh/coworkhub-platform/internal/observability/metrics"
	"github.com/dangtnh/coworkhub-platform/internal/reservations"
	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

// Response codes polled by the partner system. "00" is the only success code.
const (
	CodeSuccess             = "00"
	CodeInvalidPayload      = "01"
	CodeNoMatch             = "02"
	CodeReservationNotFound = "03"
	CodeAlreadyCancelled    = "04"
	CodeAmountMismatch      = "05"
	CodeInternalError       = "99"
)

type reservationConfirmer interface {
	GetByCode(ctx context.Context, code string) (*reservations.Reservation, error)
	ConfirmViaWebhook(ctx context.Context, id uuid.UUID, observedAmountCents int64, txnRef string, now time.Time) (*reservations.Reservation, error)
}

type paymentFlagger interface {
	MarkFailed(ctx context.Context, reservationID uuid.UUID, providerRef string) (bool, error)
}

// Handler serves the partner-facing token and transaction-sync endpoints.
type Handler struct {
	tokens       *TokenService
	matcher      *Matcher
	reservations reservationConfirmer
	payments     paymentFlagger
	dedupe       *Deduper
	metrics      *metrics.ReconciliationMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// NewHandler creates the VietQR webhook handler.
func NewHandler(tokens *TokenService, matcher *Matcher, resv reservationConfirmer, payments paymentFlagger, dedupe *Deduper, m *metrics.ReconciliationMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		tokens:       tokens,
		matcher:      matcher,
		reservations: resv,
		payments:     payments,
		dedupe:       dedupe,
		metrics:      m,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type tokenResponse struct {
	Code        string `json:"code"`
	Desc        string `json:"desc,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Data        any    `json:"data"`
}

// HandleTokenGenerate issues a bearer token against Basic-Auth partner
// credentials. Misconfiguration and bad credentials are logged distinctly but
// the caller only sees the HTTP status split the spec requires.
func (h *Handler) HandleTokenGenerate(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		h.metrics.ObserveTokenRequest("missing_auth")
		writeJSON(w, http.StatusUnauthorized, tokenResponse{Code: "401", Desc: "missing basic auth credentials"})
		return
	}

	token, err := h.tokens.Issue(username, password)
	if err != nil {
		if errors.Is(err, ErrMisconfigured) {
			h.metrics.ObserveTokenRequest("misconfigured")
			writeJSON(w, http.StatusInternalServerError, tokenResponse{Code: "500", Desc: "token service unavailable"})
			return
		}
		h.metrics.ObserveTokenRequest("denied")
		writeJSON(w, http.StatusUnauthorized, tokenResponse{Code: "401", Desc: "invalid credentials"})
		return
	}

	h.metrics.ObserveTokenRequest("issued")
	writeJSON(w, http.StatusOK, tokenResponse{
		Code:        CodeSuccess,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokens.TTL().Seconds()),
	})
}

// transactionNotification is the partner's webhook payload. Amount is in
// major currency units; internal monetary fields use minor units.
type transactionNotification struct {
	NotificationType string  `json:"notificationType"`
	TransactionID    string  `json:"transactionid"`
	Amount           float64 `json:"amount"`
	Content          string  `json:"content"`
	TransType        string  `json:"transType"`
	BankCode         string  `json:"bankCode"`
	TransactionDate  string  `json:"transactionDate,omitempty"`
}

type syncResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc,omitempty"`
	Data any    `json:"data"`
}

// HandleTransactionSync authenticates, parses, matches and applies a bank
// transaction notification.
func (h *Handler) HandleTransactionSync(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	outcome := h.handleTransactionSync(w, r)
	h.metrics.ObserveWebhook(outcome, h.now().Sub(started).Seconds())
}

func (h *Handler) handleTransactionSync(w http.ResponseWriter, r *http.Request) string {
	token, ok := bearerToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, syncResponse{Code: "401", Desc: "missing bearer token"})
		return "unauthenticated"
	}
	subject, err := h.tokens.Verify(token)
	if err != nil {
		desc := "invalid token"
		if errors.Is(err, ErrExpired) {
			desc = "token expired"
		}
		writeJSON(w, http.StatusUnauthorized, syncResponse{Code: "401", Desc: desc})
		return "unauthenticated"
	}

	var notif transactionNotification
	if err := json.NewDecoder(r.Body).Decode(&notif); err != nil {
		writeJSON(w, http.StatusBadRequest, syncResponse{Code: CodeInvalidPayload, Desc: "malformed payload"})
		return "invalid_payload"
	}
	if notif.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, syncResponse{Code: CodeInvalidPayload, Desc: "missing transaction id"})
		return "invalid_payload"
	}

	// Audit log every incoming notification before any decision.
	h.logger.Info("vietqr notification received",
		"subject", subject,
		"txn_id", notif.TransactionID,
		"type", notif.NotificationType,
		"trans_type", notif.TransType,
		"bank_code", notif.BankCode,
		"amount", notif.Amount,
	)

	ctx := r.Context()

	// Debits are not payments; acknowledge and ignore.
	if notif.TransType == "D" {
		writeJSON(w, http.StatusOK, syncResponse{Code: CodeSuccess, Desc: "debit ignored"})
		return "debit_ignored"
	}

	seen, err := h.dedupe.Seen(ctx, notif.TransactionID)
	if err != nil {
		h.logger.Error("dedupe lookup failed", "error", err, "txn_id", notif.TransactionID)
		writeJSON(w, http.StatusInternalServerError, syncResponse{Code: CodeInternalError, Desc: "server error"})
		return "error"
	}
	if seen {
		writeJSON(w, http.StatusOK, syncResponse{Code: CodeSuccess, Desc: "duplicate delivery"})
		return "duplicate"
	}

	match := h.matcher.Match(notif.Content)
	switch match.Outcome {
	case OutcomeNoMatch:
		h.logger.Warn("no reservation code in transfer description", "txn_id", notif.TransactionID, "content", notif.Content)
		writeJSON(w, http.StatusOK, syncResponse{Code: CodeNoMatch, Desc: "no reservation code found"})
		return "no_match"
	case OutcomeAmbiguous:
		h.logger.Warn("ambiguous transfer description, taking first code in scan order",
			"txn_id", notif.TransactionID, "candidates", match.Candidates)
	}

	res, err := h.reservations.GetByCode(ctx, match.Code)
	if err != nil {
		if errors.Is(err, reservations.ErrNotFound) {
			h.logger.Warn("transfer references unknown reservation", "txn_id", notif.TransactionID, "code", match.Code)
			writeJSON(w, http.StatusOK, syncResponse{Code: CodeReservationNotFound, Desc: "reservation not found"})
			return "not_found"
		}
		h.logger.Error("reservation lookup failed", "error", err, "code", match.Code)
		writeJSON(w, http.StatusInternalServerError, syncResponse{Code: CodeInternalError, Desc: "server error"})
		return "error"
	}

	amountCents := int64(math.Round(math.Abs(notif.Amount) * 100))
	_, err = h.reservations.ConfirmViaWebhook(ctx, res.ID, amountCents, notif.TransactionID, h.now())
	switch {
	case err == nil:
		if err := h.dedupe.Mark(ctx, notif.TransactionID); err != nil {
			h.logger.Error("failed to record processed transaction", "error", err, "txn_id", notif.TransactionID)
		}
		writeJSON(w, http.StatusOK, syncResponse{Code: CodeSuccess})
		return "confirmed"
	case errors.Is(err, reservations.ErrAlreadyCancelled):
		writeJSON(w, http.StatusOK, syncResponse{Code: CodeAlreadyCancelled, Desc: "reservation already cancelled, flagged for review"})
		return "already_cancelled"
	case errors.Is(err, reservations.ErrAmountMismatch):
		if h.payments != nil {
			if _, ferr := h.payments.MarkFailed(ctx, res.ID, notif.TransactionID); ferr != nil {
				h.logger.Error("failed to flag payment record", "error", ferr, "reservation_id", res.ID)
			}
		}
		writeJSON(w, http.StatusOK, syncResponse{Code: CodeAmountMismatch, Desc: "credit below required deposit, flagged for review"})
		return "amount_mismatch"
	default:
		h.logger.Error("webhook confirmation failed", "error", err, "txn_id", notif.TransactionID, "code", match.Code)
		writeJSON(w, http.StatusInternalServerError, syncResponse{Code: CodeInternalError, Desc: "server error"})
		return "error"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
