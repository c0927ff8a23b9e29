package pg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"

	"github.com/relaybase/engine/internal/apperr"
)

// undefinedTable is the Postgres SQLSTATE for "relation does not exist",
// raised when a cleanup procedure's backing table is absent because the
// schema deployer hasn't run or was configured off (spec §4.8, §7).
const undefinedTable = "42P01"

// ClassifyCleanupError maps a missing-table error to apperr.ErrMissingProcedure
// so cleanup loops can log and continue instead of terminating; any other
// error is wrapped with a stack trace for the caller to retry.
func ClassifyCleanupError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return apperr.ErrMissingProcedure
	}
	return pkgerrors.WithStack(err)
}
