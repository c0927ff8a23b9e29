package schema

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestDeploy_Integration exercises a real migration run; skipped unless
// RELAYBASE_TEST_POSTGRES_DSN is set, matching internal/pg's integration
// test gating.
func TestDeploy_Integration(t *testing.T) {
	dsn := os.Getenv("RELAYBASE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RELAYBASE_TEST_POSTGRES_DSN not set")
	}

	d := New(zerolog.Nop())
	err := d.Deploy(context.Background(), dsn, "relaybase_schema_test")
	require.NoError(t, err)

	// Re-running must be a no-op.
	err = d.Deploy(context.Background(), dsn, "relaybase_schema_test")
	require.NoError(t, err)
}
