package lease

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
)

// Factory acquires/renews/releases fencing leases against a Postgres
// table `<schema>.lease(resource_name, owner_token, lease_until_utc,
// fencing_token)` and drives each Lease's background auto-renew task
// (spec §4.2).
type Factory struct {
	db     *sql.DB
	schema string
	clk    clock.Clock
	log    zerolog.Logger

	renewPercent  float64
	gateTimeoutMS int
	useGate       bool
}

// NewFactory builds a Factory. renewPercent (default 0.6) controls when
// the background task schedules the next renewal relative to the lease
// duration.
func NewFactory(db *sql.DB, schema string, clk clock.Clock, log zerolog.Logger, renewPercent float64, gateTimeoutMS int, useGate bool) *Factory {
	if renewPercent <= 0 {
		renewPercent = 0.6
	}
	return &Factory{
		db:            db,
		schema:        schema,
		clk:           clk,
		log:           log,
		renewPercent:  renewPercent,
		gateTimeoutMS: gateTimeoutMS,
		useGate:       useGate,
	}
}

func (f *Factory) table() string { return fmt.Sprintf("%s.lease", f.schema) }

// Acquire implements spec §4.2's acquire semantics and starts the
// background auto-renew task on success.
func (f *Factory) Acquire(ctx context.Context, resource string, duration time.Duration, owner *ids.OwnerToken) (*AcquireResult, error) {
	tok := ids.NewOwnerToken()
	if owner != nil {
		tok = *owner
	}
	now := f.clk.Now()
	until := now.Add(duration)

	query := fmt.Sprintf(`
INSERT INTO %s AS t (resource_name, owner_token, lease_until_utc, fencing_token)
VALUES ($1, $2, $3, 1)
ON CONFLICT (resource_name) DO UPDATE SET
	owner_token = EXCLUDED.owner_token,
	lease_until_utc = EXCLUDED.lease_until_utc,
	fencing_token = t.fencing_token + 1
WHERE t.lease_until_utc IS NULL OR t.lease_until_utc <= $4 OR t.owner_token = $2
RETURNING fencing_token`, f.table())

	var fencingToken int64
	err := f.db.QueryRowContext(ctx, query, resource, tok.String(), until, now).Scan(&fencingToken)
	switch {
	case err == sql.ErrNoRows:
		observed := f.observedNow(ctx)
		return &AcquireResult{Acquired: false, ObservedAt: observed}, nil
	case err != nil:
		return nil, pkgerrors.Wrap(err, "lease: acquire")
	}

	l := newLease(resource, tok, fencingToken)
	f.startAutoRenew(l, duration)
	return &AcquireResult{Lease: l, Acquired: true, ObservedAt: now}, nil
}

func (f *Factory) observedNow(ctx context.Context) time.Time {
	var now time.Time
	if err := f.db.QueryRowContext(ctx, "SELECT now()").Scan(&now); err != nil {
		return f.clk.Now()
	}
	return now
}

// Renew extends the lease if still owned and unexpired, bumping the
// fencing token. On definitive failure it marks the handle lost.
func (f *Factory) Renew(ctx context.Context, l *Lease, duration time.Duration) error {
	now := f.clk.Now()
	until := now.Add(duration)

	query := fmt.Sprintf(`
UPDATE %s SET lease_until_utc = $2, fencing_token = fencing_token + 1
WHERE resource_name = $1 AND owner_token = $3 AND lease_until_utc > $4
RETURNING fencing_token`, f.table())

	var fencingToken int64
	err := f.db.QueryRowContext(ctx, query, l.Resource(), until, l.Owner().String(), now).Scan(&fencingToken)
	switch {
	case err == sql.ErrNoRows:
		l.markLost()
		return apperr.ErrLeaseLost
	case err != nil:
		return pkgerrors.Wrap(err, "lease: renew")
	}
	l.setFencingToken(fencingToken)
	return nil
}

// Release clears ownership if the caller still holds the lease; safe and
// idempotent (spec §4.2).
func (f *Factory) Release(ctx context.Context, l *Lease) error {
	l.stopAutoRenew()

	query := fmt.Sprintf(`
UPDATE %s SET owner_token = NULL, lease_until_utc = NULL
WHERE resource_name = $1 AND owner_token = $2`, f.table())

	_, err := f.db.ExecContext(ctx, query, l.Resource(), l.Owner().String())
	if err != nil {
		return pkgerrors.Wrap(err, "lease: release")
	}
	return nil
}
