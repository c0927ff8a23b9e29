package lease

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaybase/engine/internal/clock"
)

func TestFactory_Acquire_GrantsFreeResource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO infra.lease").
		WillReturnRows(sqlmock.NewRows([]string{"fencing_token"}).AddRow(int64(1)))

	f := NewFactory(db, "infra", clock.NewMock(time.Unix(0, 0)), zerolog.Nop(), 0.6, 2000, false)
	res, err := f.Acquire(context.Background(), "resA", 30*time.Second, nil)
	require.NoError(t, err)
	require.True(t, res.Acquired)
	require.Equal(t, int64(1), res.Lease.FencingToken())
	res.Lease.stopAutoRenew()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactory_Acquire_DeniedWhenHeldByAnotherOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO infra.lease").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT now\\(\\)").WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Unix(100, 0)))

	f := NewFactory(db, "infra", clock.NewMock(time.Unix(0, 0)), zerolog.Nop(), 0.6, 2000, false)
	res, err := f.Acquire(context.Background(), "resA", 30*time.Second, nil)
	require.NoError(t, err)
	require.False(t, res.Acquired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactory_Renew_MarksLeaseLostWhenNoRowsMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO infra.lease").
		WillReturnRows(sqlmock.NewRows([]string{"fencing_token"}).AddRow(int64(1)))
	mock.ExpectQuery("UPDATE infra.lease SET lease_until_utc").WillReturnError(sql.ErrNoRows)

	f := NewFactory(db, "infra", clock.NewMock(time.Unix(0, 0)), zerolog.Nop(), 0.6, 2000, false)
	res, err := f.Acquire(context.Background(), "resA", 30*time.Second, nil)
	require.NoError(t, err)
	defer res.Lease.stopAutoRenew()

	err = f.Renew(context.Background(), res.Lease, 30*time.Second)
	require.Error(t, err)

	select {
	case <-res.Lease.Lost():
	default:
		t.Fatal("expected lease to be marked lost")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFactory_Release_ClearsOwnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO infra.lease").
		WillReturnRows(sqlmock.NewRows([]string{"fencing_token"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE infra.lease SET owner_token").WillReturnResult(sqlmock.NewResult(0, 1))

	f := NewFactory(db, "infra", clock.NewMock(time.Unix(0, 0)), zerolog.Nop(), 0.6, 2000, false)
	res, err := f.Acquire(context.Background(), "resA", 30*time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, f.Release(context.Background(), res.Lease))
	require.NoError(t, mock.ExpectationsWereMet())
}
