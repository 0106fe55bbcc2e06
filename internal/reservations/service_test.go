package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

var reservationTestColumns = []string{
	"id", "code", "customer_id", "customer_name", "customer_email", "room_id",
	"starts_at", "ends_at", "amount_cents", "deposit_cents", "status", "deposit_status",
	"note", "deposit_paid_at", "created_at", "updated_at",
}

func testReservation(now time.Time) Reservation {
	return Reservation{
		ID:            uuid.New(),
		Code:          "CWS-20250901-0042",
		CustomerID:    uuid.New(),
		CustomerName:  "Linh Tran",
		CustomerEmail: "linh@example.com",
		RoomID:        uuid.New(),
		StartsAt:      now.Add(72 * time.Hour),
		EndsAt:        now.Add(76 * time.Hour),
		AmountCents:   200000,
		DepositCents:  50000,
		Status:        StatusPending,
		DepositStatus: DepositPending,
		CreatedAt:     now.Add(-time.Minute),
		UpdatedAt:     now.Add(-time.Minute),
	}
}

func rowsFor(rs ...Reservation) *pgxmock.Rows {
	rows := pgxmock.NewRows(reservationTestColumns)
	for _, r := range rs {
		rows.AddRow(
			r.ID, r.Code, r.CustomerID, r.CustomerName, r.CustomerEmail, r.RoomID,
			r.StartsAt, r.EndsAt, r.AmountCents, r.DepositCents, string(r.Status), string(r.DepositStatus),
			r.Note, r.DepositPaidAt, r.CreatedAt, r.UpdatedAt,
		)
	}
	return rows
}

type recordingNotifier struct {
	confirmed chan string
	cancelled chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		confirmed: make(chan string, 4),
		cancelled: make(chan string, 4),
	}
}

func (n *recordingNotifier) NotifyConfirmed(_ context.Context, res *Reservation) error {
	n.confirmed <- res.Code
	return nil
}

func (n *recordingNotifier) NotifyCancelled(_ context.Context, code, _ string, _ uuid.UUID) error {
	n.cancelled <- code
	return nil
}

func waitForDispatch(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case code := <-ch:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification dispatch")
		return ""
	}
}

type serviceFixture struct {
	mock     pgxmock.PgxPoolIface
	svc      *Service
	notifier *recordingNotifier
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	notifier := newRecordingNotifier()
	svc := NewService(NewStore(mock), notifier, 24*time.Hour, 5*time.Minute, logging.Default())
	return &serviceFixture{mock: mock, svc: svc, notifier: notifier}
}

func TestConfirmViaWebhookHappyPath(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	confirmed := res
	confirmed.Status = StatusConfirmed
	confirmed.DepositStatus = DepositPaidOnline
	confirmed.DepositPaidAt = &now

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(res.ID, string(DepositPaidOnline), now).
		WillReturnRows(rowsFor(confirmed))
	f.mock.ExpectExec(`UPDATE payments`).
		WithArgs(res.ID, now, "txn-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	got, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, 50000, "txn-1", now)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, DepositPaidOnline, got.DepositStatus)

	assert.Equal(t, res.Code, waitForDispatch(t, f.notifier.confirmed))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmViaWebhookDuplicateIsNoOp(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)
	res.Status = StatusConfirmed
	res.DepositStatus = DepositPaidOnline
	res.DepositPaidAt = &now

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))

	got, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, 50000, "txn-retry", now)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	// No update and no second notification for a retried delivery.
	assert.Empty(t, f.notifier.confirmed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmViaWebhookAfterCancellation(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)
	res.Status = StatusCancelled

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))

	_, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, 50000, "txn-late", now)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmViaWebhookAmountBelowDeposit(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))

	_, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, res.DepositCents-1, "txn-short", now)
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmViaWebhookOverpaymentAccepted(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	confirmed := res
	confirmed.Status = StatusConfirmed
	confirmed.DepositStatus = DepositPaidOnline

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(res.ID, string(DepositPaidOnline), now).
		WillReturnRows(rowsFor(confirmed))
	f.mock.ExpectExec(`UPDATE payments`).
		WithArgs(res.ID, now, "txn-over").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	got, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, res.DepositCents+10000, "txn-over", now)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	waitForDispatch(t, f.notifier.confirmed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmViaWebhookLostRaceToCancellation(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	cancelled := res
	cancelled.Status = StatusCancelled

	// First read sees pending, the conditional update matches nothing, the
	// re-read explains why.
	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(res.ID, string(DepositPaidOnline), now).
		WillReturnError(pgx.ErrNoRows)
	f.mock.ExpectRollback()
	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(cancelled))

	_, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, 50000, "txn-race", now)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmViaWebhookLostRaceToOtherConfirm(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	confirmed := res
	confirmed.Status = StatusConfirmed
	confirmed.DepositStatus = DepositPaidManual

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(res.ID, string(DepositPaidOnline), now).
		WillReturnError(pgx.ErrNoRows)
	f.mock.ExpectRollback()
	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(confirmed))

	got, err := f.svc.ConfirmViaWebhook(context.Background(), res.ID, 50000, "txn-race2", now)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status, "losing to another confirmation is still a success")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmManuallyRejectsNonPending(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	for _, status := range []Status{StatusConfirmed, StatusInUse, StatusCompleted, StatusCancelled} {
		res := testReservation(now)
		res.Status = status

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))

		_, err := f.svc.ConfirmManually(context.Background(), res.ID, uuid.New(), now)
		assert.ErrorIs(t, err, ErrInvalidState, "status %s", status)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelByCustomerHappyPath(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	cancelled := res
	cancelled.Status = StatusCancelled

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))
	f.mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(res.ID, pgxmock.AnyArg(), now, []string{"pending", "confirmed"}).
		WillReturnRows(rowsFor(cancelled))

	got, err := f.svc.CancelByCustomer(context.Background(), res.ID, res.CustomerID, now)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, res.Code, waitForDispatch(t, f.notifier.cancelled))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelByCustomerWindowBoundary(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	t.Run("exactly at the boundary is too late", func(t *testing.T) {
		res := testReservation(now)
		res.StartsAt = now.Add(24 * time.Hour)

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))

		_, err := f.svc.CancelByCustomer(context.Background(), res.ID, res.CustomerID, now)
		assert.ErrorIs(t, err, ErrTooLate)
	})

	t.Run("one second earlier passes", func(t *testing.T) {
		res := testReservation(now)
		res.StartsAt = now.Add(24*time.Hour + time.Second)
		cancelled := res
		cancelled.Status = StatusCancelled

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))
		f.mock.ExpectQuery(`UPDATE reservations`).
			WithArgs(res.ID, pgxmock.AnyArg(), now, []string{"pending", "confirmed"}).
			WillReturnRows(rowsFor(cancelled))

		_, err := f.svc.CancelByCustomer(context.Background(), res.ID, res.CustomerID, now)
		assert.NoError(t, err)
		waitForDispatch(t, f.notifier.cancelled)
	})

	t.Run("one second later is too late", func(t *testing.T) {
		res := testReservation(now)
		res.StartsAt = now.Add(24*time.Hour - time.Second)

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))

		_, err := f.svc.CancelByCustomer(context.Background(), res.ID, res.CustomerID, now)
		assert.ErrorIs(t, err, ErrTooLate)
	})

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelByCustomerRejectsNonOwner(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))

	_, err := f.svc.CancelByCustomer(context.Background(), res.ID, uuid.New(), now)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelByCustomerAlreadyCancelled(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)
	res.Status = StatusCancelled

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))

	_, err := f.svc.CancelByCustomer(context.Background(), res.ID, res.CustomerID, now)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelByExpiry(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	t.Run("cancels an aged unpaid reservation", func(t *testing.T) {
		res := testReservation(now)
		res.CreatedAt = now.Add(-10 * time.Minute)
		cancelled := res
		cancelled.Status = StatusCancelled

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))
		f.mock.ExpectQuery(`UPDATE reservations`).
			WithArgs(res.ID, pgxmock.AnyArg(), now, now.Add(-5*time.Minute)).
			WillReturnRows(rowsFor(cancelled))

		got, err := f.svc.CancelByExpiry(context.Background(), res.ID, now)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		waitForDispatch(t, f.notifier.cancelled)
	})

	t.Run("refuses a reservation still inside the timeout", func(t *testing.T) {
		res := testReservation(now)
		res.CreatedAt = now.Add(-time.Minute)

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))

		_, err := f.svc.CancelByExpiry(context.Background(), res.ID, now)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("refuses once the deposit is settled", func(t *testing.T) {
		res := testReservation(now)
		res.CreatedAt = now.Add(-10 * time.Minute)
		res.DepositStatus = DepositPaidManual

		f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
			WithArgs(res.ID).WillReturnRows(rowsFor(res))

		_, err := f.svc.CancelByExpiry(context.Background(), res.ID, now)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelByAdminOverridesWindow(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	res := testReservation(now)
	// Inside the customer cancellation window; the admin override ignores it.
	res.StartsAt = now.Add(time.Hour)
	res.Status = StatusConfirmed
	res.DepositStatus = DepositPaidOnline

	cancelled := res
	cancelled.Status = StatusCancelled

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(res.ID).WillReturnRows(rowsFor(res))
	f.mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(res.ID, pgxmock.AnyArg(), now, []string{"pending", "confirmed", "in_use", "completed"}).
		WillReturnRows(rowsFor(cancelled))

	got, err := f.svc.CancelByAdmin(context.Background(), res.ID, uuid.New(), "double booking", now)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	waitForDispatch(t, f.notifier.cancelled)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNotFoundPropagates(t *testing.T) {
	f := newServiceFixture(t)
	id := uuid.New()

	f.mock.ExpectQuery(`FROM reservations WHERE id = \$1`).
		WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := f.svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}
