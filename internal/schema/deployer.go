// Package schema deploys the engine's tables idempotently into a
// configured Postgres schema via embedded goose migrations (spec §6:
// "idempotent deploy of tables, types, procedures per configured
// schema... no hardcoded schema").
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Deployer runs the embedded migration set against a schema-scoped
// connection. Migration files use unqualified table names; the target
// schema is selected via the connection's search_path rather than
// baked into the SQL, so one migration set serves every configured
// schema (spec §6).
type Deployer struct {
	log zerolog.Logger
}

// New builds a Deployer.
func New(log zerolog.Logger) *Deployer {
	return &Deployer{log: log}
}

// Deploy opens a dedicated connection to dsn with search_path pinned to
// schema, creates the schema if absent, and applies any pending
// migrations. It is idempotent: re-running against an up-to-date schema
// is a no-op.
func (d *Deployer) Deploy(ctx context.Context, dsn, schema string) error {
	scopedDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		return fmt.Errorf("schema: build scoped dsn: %w", err)
	}

	db, err := sql.Open("pgx", scopedDSN)
	if err != nil {
		return fmt.Errorf("schema: open: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("schema: create schema %q: %w", schema, err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(fmt.Sprintf("%s.goose_db_version", schema))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("schema: set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("schema: apply migrations: %w", err)
	}

	d.log.Info().Str("schema", schema).Msg("schema deployment complete")
	return nil
}

// withSearchPath appends (or overrides) the connection's search_path
// option so an unqualified-table-name migration set lands in schema.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("options", fmt.Sprintf("-csearch_path=%s,public", schema))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SchemaFromDSN is a small helper for callers that need to echo the
// effective search_path for logging without reparsing the DSN.
func SchemaFromDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	opts := u.Query().Get("options")
	const marker = "-csearch_path="
	idx := strings.Index(opts, marker)
	if idx < 0 {
		return ""
	}
	rest := opts[idx+len(marker):]
	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		return rest[:comma]
	}
	return rest
}
