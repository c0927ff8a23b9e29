package config

import (
	"os"
	"testing"
	"time"
)

func unsetConfigEnv() {
	_ = os.Unsetenv("RELAYBASE_POSTGRES_DSN")
	_ = os.Unsetenv("RELAYBASE_SCHEMA_NAME")
	_ = os.Unsetenv("RELAYBASE_TENANTS_JSON")
	_ = os.Unsetenv("RELAYBASE_DISPATCHER_MAX_ATTEMPTS")
	_ = os.Unsetenv("RELAYBASE_DISPATCHER_POLL_INTERVAL")
	_ = os.Unsetenv("RELAYBASE_OUTBOX_CLEANUP_INTERVAL")
}

func TestConfigLoad_Defaults(t *testing.T) {
	unsetConfigEnv()
	_ = os.Setenv("RELAYBASE_POSTGRES_DSN", "postgres://localhost/relaybase")
	defer unsetConfigEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.SchemaName != "infra" {
		t.Fatalf("unexpected default schema name: %s", cfg.SchemaName)
	}
	if cfg.OutboxTableName != "outbox" || cfg.InboxTableName != "inbox" {
		t.Fatalf("unexpected default table names: %+v", cfg)
	}
	if cfg.DispatcherMaxAttempts != 5 {
		t.Fatalf("unexpected default max attempts: %d", cfg.DispatcherMaxAttempts)
	}
	if cfg.DispatcherPollInterval != 2*time.Second {
		t.Fatalf("unexpected default poll interval: %s", cfg.DispatcherPollInterval)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	unsetConfigEnv()
	_ = os.Setenv("RELAYBASE_POSTGRES_DSN", "postgres://localhost/relaybase")
	_ = os.Setenv("RELAYBASE_DISPATCHER_MAX_ATTEMPTS", "9")
	defer unsetConfigEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.DispatcherMaxAttempts != 9 {
		t.Fatalf("max attempts override failed, got %d", cfg.DispatcherMaxAttempts)
	}
}

func TestConfigLoad_MissingConnectionString(t *testing.T) {
	unsetConfigEnv()
	defer unsetConfigEnv()

	if _, err := New(); err == nil {
		t.Fatal("expected error when neither postgres_dsn nor tenants are set")
	}
}

func TestConfigLoad_TenantsJSON(t *testing.T) {
	unsetConfigEnv()
	_ = os.Setenv("RELAYBASE_TENANTS_JSON", `[{"identifier":"acme","connectionString":"postgres://acme/db","schemaName":"infra"}]`)
	defer unsetConfigEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if len(cfg.Tenants) != 1 || cfg.Tenants[0].Identifier != "acme" {
		t.Fatalf("unexpected tenants: %+v", cfg.Tenants)
	}
}
