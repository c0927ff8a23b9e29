package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/engine/internal/clock"
)

func newTestStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewPostgresStore(db, "infra", "jobs", "job_runs", "timers", clock.NewMock(time.Unix(0, 0)))
	return store, mock, func() { db.Close() }
}

func TestScheduleTimer(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO infra.timers").WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.ScheduleTimer(context.Background(), "order.reminder", `{"orderId":"1"}`, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelTimer_OnlyWhenPending(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("UPDATE infra.timers SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := store.CancelTimer(context.Background(), "timer-1")
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrUpdateJob_UpsertsByName(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO infra.jobs").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateOrUpdateJob(context.Background(), "nightly-report", "report.generate", "0 0 * * *", "{}")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrUpdateJob_InvalidCronRejected(t *testing.T) {
	store, _, cleanup := newTestStore(t)
	defer cleanup()

	err := store.CreateOrUpdateJob(context.Background(), "bad-job", "topic", "not a cron", "{}")
	require.Error(t, err)
}

func TestTriggerJobAsync_InsertsJobRun(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT topic, payload FROM infra.jobs").
		WillReturnRows(sqlmock.NewRows([]string{"topic", "payload"}).AddRow("report.generate", "{}"))
	mock.ExpectExec("INSERT INTO infra.job_runs").WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.TriggerJobAsync(context.Background(), "nightly-report")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDueTimers_HydratesRows(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("WITH eligible AS").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("timer-1"))
	mock.ExpectQuery("SELECT id, topic, payload, due_time_utc, status FROM infra.timers").
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "payload", "due_time_utc", "status"}).
			AddRow("timer-1", "order.reminder", "{}", time.Now(), "Running"))

	timers, err := store.ClaimDueTimers(context.Background(), "owner-1", 30, 10)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	require.Equal(t, "order.reminder", timers[0].Topic)
	require.NoError(t, mock.ExpectationsWereMet())
}
