// Package config loads agentkit's YAML configuration file, applying
// environment-variable overrides and defaults the same way the
// teacher's internal/config package does.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for agentkitd.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Workdir    WorkdirConfig    `yaml:"workdir"`
	Session    SessionConfig    `yaml:"session"`
	Agent      AgentConfig      `yaml:"agent"`
	Policy     PolicyConfig     `yaml:"policy"`
	Usage      UsageConfig      `yaml:"usage"`
	Cron       CronConfig       `yaml:"cron"`
	Logging    LoggingConfig    `yaml:"logging"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig configures the HTTP/WebSocket transport stub.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the Postgres-backed Store.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// WorkdirConfig configures the WorkDir Manager.
type WorkdirConfig struct {
	Root            string `yaml:"root"`
	ArchiveLaneSize int    `yaml:"archive_lane_size"`
}

// SessionConfig configures session defaults and limits.
type SessionConfig struct {
	DefaultMaxRetries   int           `yaml:"default_max_retries"`
	DefaultRetryDelay   time.Duration `yaml:"default_retry_delay"`
	DefaultTimeout      time.Duration `yaml:"default_timeout"`
	MaxConcurrentTurns  int           `yaml:"max_concurrent_turns"`
	MetricsSnapshotTick time.Duration `yaml:"metrics_snapshot_tick"`
}

// AgentConfig configures the agent CLI subprocess invocation.
type AgentConfig struct {
	BinaryPath    string        `yaml:"binary_path"`
	ConnectBackoff time.Duration `yaml:"connect_backoff"`
	MaxConnectBackoff time.Duration `yaml:"max_connect_backoff"`
	InterruptGrace time.Duration `yaml:"interrupt_grace"`
	ScannerBufferBytes int       `yaml:"scanner_buffer_bytes"`
}

// PolicyConfig configures the Policy Engine.
type PolicyConfig struct {
	DefaultPermissionMode string   `yaml:"default_permission_mode"`
	GlobalDenyCommands    []string `yaml:"global_deny_commands"`
}

// UsageConfig configures the Cost & Metrics Accountant.
type UsageConfig struct {
	RateTableVersion string             `yaml:"rate_table_version"`
	Rates            map[string]CostRate `yaml:"rates"`
	NearBudgetRatio  float64            `yaml:"near_budget_ratio"`
}

// CostRate is the per-million-token rate for one model.
type CostRate struct {
	InputPerMTok      float64 `yaml:"input_per_mtok"`
	OutputPerMTok     float64 `yaml:"output_per_mtok"`
	CacheReadPerMTok  float64 `yaml:"cache_read_per_mtok"`
	CacheWritePerMTok float64 `yaml:"cache_write_per_mtok"`
}

// CronConfig configures the Task Scheduler. There is no execution-level
// retry/backoff setting: spec.md §4.10 has a failed firing wait for its
// next normal cron occurrence rather than re-fire early.
type CronConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// LoggingConfig configures the slog-based structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" | "text"
	Output string `yaml:"output"` // "stdout" | "stderr" | "file:<path>"
}

// ArchiveConfig configures workdir archival.
type ArchiveConfig struct {
	Compression string `yaml:"compression"` // "GZIP" | "ZIP" | "TAR"
}

// Load reads path, expands ${ENV} references, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Workdir.Root == "" {
		cfg.Workdir.Root = "/var/lib/agentkit/workdirs"
	}
	if cfg.Workdir.ArchiveLaneSize == 0 {
		cfg.Workdir.ArchiveLaneSize = 4
	}

	if cfg.Session.DefaultMaxRetries == 0 {
		cfg.Session.DefaultMaxRetries = 3
	}
	if cfg.Session.DefaultRetryDelay == 0 {
		cfg.Session.DefaultRetryDelay = 500 * time.Millisecond
	}
	if cfg.Session.DefaultTimeout == 0 {
		cfg.Session.DefaultTimeout = 10 * time.Minute
	}
	if cfg.Session.MaxConcurrentTurns == 0 {
		cfg.Session.MaxConcurrentTurns = 64
	}
	if cfg.Session.MetricsSnapshotTick == 0 {
		cfg.Session.MetricsSnapshotTick = 30 * time.Second
	}

	if cfg.Agent.BinaryPath == "" {
		cfg.Agent.BinaryPath = "claude"
	}
	if cfg.Agent.ConnectBackoff == 0 {
		cfg.Agent.ConnectBackoff = 200 * time.Millisecond
	}
	if cfg.Agent.MaxConnectBackoff == 0 {
		cfg.Agent.MaxConnectBackoff = 10 * time.Second
	}
	if cfg.Agent.InterruptGrace == 0 {
		cfg.Agent.InterruptGrace = 5 * time.Second
	}
	if cfg.Agent.ScannerBufferBytes == 0 {
		cfg.Agent.ScannerBufferBytes = 1 << 20
	}

	if cfg.Policy.DefaultPermissionMode == "" {
		cfg.Policy.DefaultPermissionMode = "DEFAULT"
	}

	if cfg.Usage.RateTableVersion == "" {
		cfg.Usage.RateTableVersion = "v1"
	}
	if cfg.Usage.NearBudgetRatio == 0 {
		cfg.Usage.NearBudgetRatio = 0.8
	}

	if cfg.Cron.TickInterval == 0 {
		cfg.Cron.TickInterval = 1 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Archive.Compression == "" {
		cfg.Archive.Compression = "GZIP"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AGENTKIT_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTKIT_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTKIT_METRICS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTKIT_WORKDIR_ROOT")); v != "" {
		cfg.Workdir.Root = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTKIT_AGENT_BINARY")); v != "" {
		cfg.Agent.BinaryPath = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTKIT_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// ValidationError aggregates every problem found while validating a
// Config, matching the teacher's ConfigValidationError shape.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string
	if cfg.Database.URL == "" {
		issues = append(issues, "database.url must be set")
	}
	switch cfg.Archive.Compression {
	case "GZIP", "ZIP", "TAR":
	default:
		issues = append(issues, fmt.Sprintf("archive.compression %q is not one of GZIP, ZIP, TAR", cfg.Archive.Compression))
	}
	switch cfg.Policy.DefaultPermissionMode {
	case "DEFAULT", "ACCEPT_EDITS", "BYPASS":
	default:
		issues = append(issues, fmt.Sprintf("policy.default_permission_mode %q is not one of DEFAULT, ACCEPT_EDITS, BYPASS", cfg.Policy.DefaultPermissionMode))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
