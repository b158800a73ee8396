package config

import (
	"time"

	"github.com/dappbridge/walletd/internal/auth/jwt"
	"github.com/dappbridge/walletd/pkg/trace"
)

type (
	// WalletdConfig is the top-level daemon configuration.
	WalletdConfig struct {
		Logger   LoggerConfig   `yaml:"logger"`
		Tracing  trace.Config   `yaml:"tracing"`
		Admin    AdminConfig    `yaml:"admin"`
		Relay    RelayConfig    `yaml:"relay"`
		Wallet   WalletConfig   `yaml:"wallet"`
		Pairing  PairingConfig  `yaml:"pairing"`
		Queue    QueueConfig    `yaml:"queue"`
		Snapshot SnapshotConfig `yaml:"snapshot"`
		Metrics  MetricsConfig  `yaml:"metrics"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// AdminConfig configures the wallet-UI facing HTTP surface.
	AdminConfig struct {
		Addr string     `yaml:"addr"`
		JWT  jwt.Config `yaml:"jwt"`
	}

	// RelayConfig configures the websocket bridge client.
	RelayConfig struct {
		URL              string        `yaml:"url"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		PingTimeout      time.Duration `yaml:"ping_timeout"`
	}

	// WalletConfig describes the accounts the wallet holds and the
	// protocol versions it speaks.
	WalletConfig struct {
		Accounts          []string `yaml:"accounts"`
		SupportedVersions []string `yaml:"supported_versions"`
	}

	// PairingConfig controls session proposal handling.
	PairingConfig struct {
		ProposalTTL time.Duration `yaml:"proposal_ttl"`
	}

	// QueueConfig controls the pending request queue.
	QueueConfig struct {
		RequestTTL      time.Duration `yaml:"request_ttl"`       // default expiry for requests without one
		ReplayCacheSize int           `yaml:"replay_cache_size"` // resolved responses kept per session for replay
		SweepInterval   time.Duration `yaml:"sweep_interval"`    // how often to sweep for expired requests
	}

	// SnapshotConfig selects the connected-session snapshot store.
	SnapshotConfig struct {
		Type     string                 `yaml:"type"` // "memory", "disk", "redis" or "db"
		Disk     SnapshotDiskConfig     `yaml:"disk"`
		Redis    SnapshotRedisConfig    `yaml:"redis"`
		Database SnapshotDatabaseConfig `yaml:"database"`
	}

	// SnapshotDiskConfig represents the disk snapshot configuration
	SnapshotDiskConfig struct {
		Path string `yaml:"path"`
	}

	// SnapshotRedisConfig represents the Redis snapshot configuration
	SnapshotRedisConfig struct {
		Addr     string        `yaml:"addr"`
		Username string        `yaml:"username"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		TTL      time.Duration `yaml:"ttl"`
	}

	// SnapshotDatabaseConfig represents the database snapshot configuration
	SnapshotDatabaseConfig struct {
		Type string `yaml:"type"` // "sqlite", "mysql" or "postgres"
		DSN  string `yaml:"dsn"`
	}

	// MetricsConfig configures the prometheus registry.
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// SetDefaults fills zero values with sane defaults.
func (c *WalletdConfig) SetDefaults() {
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8980"
	}
	if c.Relay.HandshakeTimeout <= 0 {
		c.Relay.HandshakeTimeout = 10 * time.Second
	}
	if c.Relay.WriteTimeout <= 0 {
		c.Relay.WriteTimeout = 10 * time.Second
	}
	if c.Relay.PingTimeout <= 0 {
		c.Relay.PingTimeout = 5 * time.Second
	}
	if len(c.Wallet.SupportedVersions) == 0 {
		c.Wallet.SupportedVersions = []string{"1"}
	}
	if c.Pairing.ProposalTTL <= 0 {
		c.Pairing.ProposalTTL = 5 * time.Minute
	}
	if c.Queue.RequestTTL <= 0 {
		c.Queue.RequestTTL = 10 * time.Minute
	}
	if c.Queue.ReplayCacheSize <= 0 {
		c.Queue.ReplayCacheSize = 64
	}
	if c.Queue.SweepInterval <= 0 {
		c.Queue.SweepInterval = 30 * time.Second
	}
	if c.Snapshot.Type == "" {
		c.Snapshot.Type = "memory"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "walletd"
	}
}
