package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangtnh/coworkhub-platform/internal/reservations"
	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

func newTestRouter(t *testing.T, adminSecret, sweepSecret string) http.Handler {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := reservations.NewStore(mock)
	svc := reservations.NewService(store, nil, 24*time.Hour, 5*time.Minute, logging.Default())
	sweeper := reservations.NewSweeper(store, svc, logging.Default())
	handler := reservations.NewHandler(svc, sweeper, nil, nil, logging.Default())

	return New(&Config{
		Logger:              logging.Default(),
		ReservationsHandler: handler,
		AdminAuthSecret:     adminSecret,
		SweepSecret:         sweepSecret,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, "admin-secret", "sweep-secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSweepEndpointRequiresSecret(t *testing.T) {
	r := newTestRouter(t, "admin-secret", "sweep-secret")

	req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	req.Header.Set("X-Sweep-Secret", "wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, "admin-secret", "sweep-secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/reservations/"+uuid.NewString()+"/confirm", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesAbsentWithoutSecret(t *testing.T) {
	r := newTestRouter(t, "", "sweep-secret")

	req := httptest.NewRequest(http.MethodPost, "/admin/reservations/"+uuid.NewString()+"/confirm", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	r := newTestRouter(t, "admin-secret", "sweep-secret")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
