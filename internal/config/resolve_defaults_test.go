package config

import (
	"errors"
	"testing"
	"time"

	"github.com/relaybase/engine/internal/apperr"
)

func baseConfig() Config {
	return Config{
		PostgresDSN:              "postgres://localhost/relaybase",
		SchemaName:               "infra",
		OutboxEnableAutoCleanup:  true,
		OutboxCleanupInterval:    time.Hour,
		InboxEnableAutoCleanup:   true,
		InboxCleanupInterval:     time.Hour,
		DispatcherMaxAttempts:    5,
	}
}

func TestResolveDefaults_TenantsJSON(t *testing.T) {
	cfg := baseConfig()
	cfg.PostgresDSN = ""
	cfg.TenantsJSON = `[{"identifier":"a","connectionString":"postgres://a/db","schemaName":"infra"}]`

	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	if len(cfg.Tenants) != 1 || cfg.Tenants[0].Identifier != "a" {
		t.Fatalf("unexpected tenants: %+v", cfg.Tenants)
	}
}

func TestResolveDefaults_InvalidTenantsJSON(t *testing.T) {
	cfg := baseConfig()
	cfg.TenantsJSON = `not json`

	if err := cfg.ResolveDefaults(); !errors.Is(err, apperr.ErrOptionsValidation) {
		t.Fatalf("expected ErrOptionsValidation, got %v", err)
	}
}

func TestValidate_BlankConnectionString(t *testing.T) {
	cfg := baseConfig()
	cfg.PostgresDSN = ""

	if err := cfg.Validate(); !errors.Is(err, apperr.ErrOptionsValidation) {
		t.Fatalf("expected ErrOptionsValidation, got %v", err)
	}
}

func TestValidate_BlankSchemaName(t *testing.T) {
	cfg := baseConfig()
	cfg.SchemaName = "  "

	if err := cfg.Validate(); !errors.Is(err, apperr.ErrOptionsValidation) {
		t.Fatalf("expected ErrOptionsValidation, got %v", err)
	}
}

func TestValidate_NonPositiveCleanupIntervalWhenEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.OutboxCleanupInterval = 0

	if err := cfg.Validate(); !errors.Is(err, apperr.ErrOptionsValidation) {
		t.Fatalf("expected ErrOptionsValidation, got %v", err)
	}
}

func TestValidate_CleanupIntervalIgnoredWhenDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.OutboxEnableAutoCleanup = false
	cfg.OutboxCleanupInterval = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("cleanup interval should be ignored when disabled: %v", err)
	}
}

func TestValidate_MaxAttemptsMustBePositive(t *testing.T) {
	cfg := baseConfig()
	cfg.DispatcherMaxAttempts = 0

	if err := cfg.Validate(); !errors.Is(err, apperr.ErrOptionsValidation) {
		t.Fatalf("expected ErrOptionsValidation, got %v", err)
	}
}

func TestValidate_TenantMissingConnectionString(t *testing.T) {
	cfg := baseConfig()
	cfg.PostgresDSN = ""
	cfg.Tenants = []TenantConfig{{Identifier: "a", SchemaName: "infra"}}

	if err := cfg.Validate(); !errors.Is(err, apperr.ErrOptionsValidation) {
		t.Fatalf("expected ErrOptionsValidation, got %v", err)
	}
}
