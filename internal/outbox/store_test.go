package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
)

func TestPostgresStore_Enqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO infra.outbox").WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPostgresStore(db, "infra", "outbox", clock.NewMock(time.Unix(0, 0)))
	id, err := store.Enqueue(context.Background(), db, NewMessage{
		Topic:     "order.created",
		Payload:   `{"orderId":"1"}`,
		MessageID: ids.NewOutboxMessageID(),
	})
	require.NoError(t, err)
	require.False(t, id.IsEmpty())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Claim_EmptyWhenNothingEligible(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("WITH eligible AS").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPostgresStore(db, "infra", "outbox", clock.NewMock(time.Unix(0, 0)))
	msgs, err := store.Claim(context.Background(), ids.NewOwnerToken(), 30, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE infra.outbox SET").WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db, "infra", "outbox", clock.NewMock(time.Unix(0, 0)))
	n, err := store.Ack(context.Background(), ids.NewOwnerToken(), []ids.OutboxWorkItemID{ids.NewOutboxWorkItemID()})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Cleanup_TreatsMissingTableAsWarning(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM infra.outbox").WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation \"infra.outbox\" does not exist"})

	store := NewPostgresStore(db, "infra", "outbox", clock.NewMock(time.Unix(0, 0)))
	_, err = store.Cleanup(context.Background(), 7*24*time.Hour)
	require.ErrorIs(t, err, apperr.ErrMissingProcedure)
	require.NoError(t, mock.ExpectationsWereMet())
}
