package workqueue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
)

func testConfig() Config {
	return Config{
		Table:             "outbox",
		IDColumn:          "id",
		StatusColumn:      "status",
		OwnerColumn:       "owner_token",
		LockedUntilColumn: "locked_until",
		DueTimeColumn:     "due_time_utc",
		OrderColumn:       "created_at",
		RetryCountColumn:  "retry_count",
		LastErrorColumn:   "last_error",
		ReadyStatus:       "0",
		InProgressStatus:  "1",
		DoneStatus:        "2",
		FailStatus:        "3",
	}
}

func TestEngine_Claim_RejectsBadBatchSize(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))

	_, err = eng.Claim(context.Background(), "owner-1", 30, 0)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestEngine_Claim_ReturnsClaimedIds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("id-1").AddRow("id-2")
	mock.ExpectQuery("WITH eligible AS").WillReturnRows(rows)

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))
	ids, err := eng.Claim(context.Background(), "owner-1", 30, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"id-1", "id-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Ack_NoopOnEmptyIds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))
	n, err := eng.Ack(context.Background(), "owner-1", nil, "")
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Ack_UpdatesOwnedInProgressRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))
	n, err := eng.Ack(context.Background(), "owner-1", []string{"id-1"}, "processed_at = now(), is_processed = true")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Abandon_BumpsRetryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))
	lastErr := "boom"
	n, err := eng.Abandon(context.Background(), "owner-1", []string{"id-1"}, &lastErr, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Fail_TerminatesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))
	lastErr := "no handler registered"
	n, err := eng.Fail(context.Background(), "owner-1", []string{"id-1"}, &lastErr, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ReapExpired_ReturnsOwnerlessRowsToReady(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox SET").
		WillReturnResult(sqlmock.NewResult(0, 3))

	eng := New(db, testConfig(), clock.NewMock(time.Unix(0, 0)))
	n, err := eng.ReapExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
