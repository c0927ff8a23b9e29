package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/relaybase/engine/internal/apperr"
)

// TenantConfig describes one tenant's storage connection, used by the
// configured provider (§4.7) to build a static per-tenant store list.
type TenantConfig struct {
	Identifier       string `json:"identifier"`
	ConnectionString string `json:"connectionString"`
	SchemaName       string `json:"schemaName"`
}

// Config holds the engine's configuration.
// Environment variables are automatically parsed from the RELAYBASE_ prefix.
type Config struct {
	// Single-tenant connection, used when Tenants is empty.
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SchemaName  string `envconfig:"SCHEMA_NAME" default:"infra"`

	// TenantsJSON is a JSON-encoded []TenantConfig for multi-tenant
	// deployments; parsed into Tenants by ResolveDefaults.
	TenantsJSON string `envconfig:"TENANTS_JSON" default:""`
	Tenants     []TenantConfig

	// Outbox options.
	OutboxTableName          string        `envconfig:"OUTBOX_TABLE_NAME" default:"outbox"`
	OutboxEnableSchemaDeploy bool          `envconfig:"OUTBOX_ENABLE_SCHEMA_DEPLOYMENT" default:"true"`
	OutboxEnableAutoCleanup  bool          `envconfig:"OUTBOX_ENABLE_AUTOMATIC_CLEANUP" default:"true"`
	OutboxCleanupInterval    time.Duration `envconfig:"OUTBOX_CLEANUP_INTERVAL" default:"1h"`
	OutboxRetentionPeriod    time.Duration `envconfig:"OUTBOX_RETENTION_PERIOD" default:"168h"`

	// Inbox options (same shape, different table default).
	InboxTableName          string        `envconfig:"INBOX_TABLE_NAME" default:"inbox"`
	InboxEnableSchemaDeploy bool          `envconfig:"INBOX_ENABLE_SCHEMA_DEPLOYMENT" default:"true"`
	InboxEnableAutoCleanup  bool          `envconfig:"INBOX_ENABLE_AUTOMATIC_CLEANUP" default:"true"`
	InboxCleanupInterval    time.Duration `envconfig:"INBOX_CLEANUP_INTERVAL" default:"1h"`
	InboxRetentionPeriod    time.Duration `envconfig:"INBOX_RETENTION_PERIOD" default:"168h"`

	// Scheduler table names.
	JobsTableName    string `envconfig:"JOBS_TABLE_NAME" default:"jobs"`
	JobRunsTableName string `envconfig:"JOB_RUNS_TABLE_NAME" default:"job_runs"`
	TimersTableName  string `envconfig:"TIMERS_TABLE_NAME" default:"timers"`

	// Lease factory options.
	LeaseRenewPercent  float64 `envconfig:"LEASE_RENEW_PERCENT" default:"0.6"`
	LeaseGateTimeoutMS int     `envconfig:"LEASE_GATE_TIMEOUT_MS" default:"2000"`
	LeaseUseGate       bool    `envconfig:"LEASE_USE_GATE" default:"false"`

	// Dispatcher options.
	DispatcherMaxAttempts   int           `envconfig:"DISPATCHER_MAX_ATTEMPTS" default:"5"`
	DispatcherLeaseDuration time.Duration `envconfig:"DISPATCHER_LEASE_DURATION" default:"30s"`
	DispatcherBatchSize     int           `envconfig:"DISPATCHER_BATCH_SIZE" default:"100"`
	DispatcherPollInterval  time.Duration `envconfig:"DISPATCHER_POLL_INTERVAL" default:"2s"`

	// Dynamic provider refresh cadence.
	DiscoveryRefreshInterval time.Duration `envconfig:"DISCOVERY_REFRESH_INTERVAL" default:"5m"`
}

// ResolveDefaults parses TenantsJSON (if set) into Tenants and validates
// the result.
func (c *Config) ResolveDefaults() error {
	if c.TenantsJSON != "" {
		var tenants []TenantConfig
		if err := json.Unmarshal([]byte(c.TenantsJSON), &tenants); err != nil {
			return fmt.Errorf("%w: tenants_json: %v", apperr.ErrOptionsValidation, err)
		}
		c.Tenants = tenants
	}
	return c.Validate()
}

// Validate rejects blank connection strings, blank schema names, and
// non-positive cleanup intervals when cleanup is enabled.
func (c *Config) Validate() error {
	if len(c.Tenants) == 0 && strings.TrimSpace(c.PostgresDSN) == "" {
		return fmt.Errorf("%w: connection_string is blank", apperr.ErrOptionsValidation)
	}
	for _, t := range c.Tenants {
		if strings.TrimSpace(t.ConnectionString) == "" {
			return fmt.Errorf("%w: tenant %q has a blank connection_string", apperr.ErrOptionsValidation, t.Identifier)
		}
		if strings.TrimSpace(t.SchemaName) == "" {
			return fmt.Errorf("%w: tenant %q has a blank schema_name", apperr.ErrOptionsValidation, t.Identifier)
		}
	}
	if strings.TrimSpace(c.SchemaName) == "" {
		return fmt.Errorf("%w: schema_name is blank", apperr.ErrOptionsValidation)
	}
	if c.OutboxEnableAutoCleanup && c.OutboxCleanupInterval <= 0 {
		return fmt.Errorf("%w: outbox cleanup_interval must be positive when cleanup is enabled", apperr.ErrOptionsValidation)
	}
	if c.InboxEnableAutoCleanup && c.InboxCleanupInterval <= 0 {
		return fmt.Errorf("%w: inbox cleanup_interval must be positive when cleanup is enabled", apperr.ErrOptionsValidation)
	}
	if c.DispatcherMaxAttempts < 1 {
		return fmt.Errorf("%w: dispatcher max_attempts must be >= 1", apperr.ErrOptionsValidation)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with RELAYBASE_.
// Example: RELAYBASE_POSTGRES_DSN, RELAYBASE_DISPATCHER_MAX_ATTEMPTS.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("RELAYBASE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("schema", cfg.SchemaName).
		Int("tenants", len(cfg.Tenants)).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Int("dispatcher_max_attempts", cfg.DispatcherMaxAttempts).
		Dur("dispatcher_poll_interval", cfg.DispatcherPollInterval).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	return &Config{
		PostgresDSN:              "postgres://test/test",
		SchemaName:               "infra",
		OutboxTableName:          "outbox",
		OutboxEnableSchemaDeploy: true,
		OutboxEnableAutoCleanup:  true,
		OutboxCleanupInterval:    time.Hour,
		OutboxRetentionPeriod:    7 * 24 * time.Hour,
		InboxTableName:           "inbox",
		InboxEnableSchemaDeploy:  true,
		InboxEnableAutoCleanup:   true,
		InboxCleanupInterval:     time.Hour,
		InboxRetentionPeriod:     7 * 24 * time.Hour,
		JobsTableName:            "jobs",
		JobRunsTableName:         "job_runs",
		TimersTableName:          "timers",
		LeaseRenewPercent:        0.6,
		LeaseGateTimeoutMS:       2000,
		DispatcherMaxAttempts:    5,
		DispatcherLeaseDuration:  30 * time.Second,
		DispatcherBatchSize:      100,
		DispatcherPollInterval:   2 * time.Second,
		DiscoveryRefreshInterval: 5 * time.Minute,
	}
}
