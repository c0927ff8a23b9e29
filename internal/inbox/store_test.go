package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
)

func TestAlreadyProcessed_RejectsBlankMessageID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db, "infra", "inbox", clock.NewMock(time.Unix(0, 0)))
	_, err = store.AlreadyProcessed(context.Background(), "  ", "source", nil)
	require.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}

func TestAlreadyProcessed_FirstSeenReturnsFalse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO infra.inbox").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Seen"))

	store := NewPostgresStore(db, "infra", "inbox", clock.NewMock(time.Unix(0, 0)))
	done, err := store.AlreadyProcessed(context.Background(), "m1", "s", nil)
	require.NoError(t, err)
	require.False(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlreadyProcessed_DoneReturnsTrue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO infra.inbox").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Done"))

	store := NewPostgresStore(db, "infra", "inbox", clock.NewMock(time.Unix(0, 0)))
	done, err := store.AlreadyProcessed(context.Background(), "m1", "s", nil)
	require.NoError(t, err)
	require.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed_SetsProcessedUtc(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE infra.inbox SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db, "infra", "inbox", clock.NewMock(time.Unix(0, 0)))
	require.NoError(t, store.MarkProcessed(context.Background(), "m1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
