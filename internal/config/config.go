// Package config provides configuration loading and management for the sync daemon.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables read by the daemon
const EnvPrefix = "SKYLARK"

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Accounts lists the mail accounts the daemon synchronizes
	Accounts []AccountConfig `yaml:"accounts"`

	// Sync holds the orchestration tuning knobs
	Sync SyncSettings `yaml:"sync,omitempty"`

	// Network configures the reachability probe
	Network NetworkConfig `yaml:"network,omitempty"`

	// DataDir is the base directory for file-based status persistence.
	// Ignored when a database is configured.
	DataDir string `yaml:"dataDir,omitempty"`

	// Database optionally switches status persistence to Postgres
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Telemetry configures OTLP metric export
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig configures metric export. Metrics are off unless
// explicitly enabled.
type TelemetryConfig struct {
	// Enabled turns OTLP metric export on
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the OTLP HTTP endpoint (host:port)
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure allows plain HTTP to the endpoint
	Insecure bool `yaml:"insecure,omitempty"`
}

// AccountConfig identifies one configured mail account
type AccountConfig struct {
	// ID is the account identifier, typically the primary address
	ID string `yaml:"id"`

	// DisplayName is an optional human-readable label
	DisplayName string `yaml:"displayName,omitempty"`
}

// SyncSettings defines the orchestration tuning knobs. Durations are
// YAML strings (e.g. "60s", "10m"); zero values fall back to defaults.
type SyncSettings struct {
	// FolderConcurrency bounds concurrent per-folder sync tasks
	FolderConcurrency int `yaml:"folderConcurrency,omitempty"`

	// MaxAttempts caps sync attempts per account before the account is
	// forced to Synced
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// PrefetchCount is how many recent inbox message bodies the initial
	// sync prefetches for offline availability
	PrefetchCount int `yaml:"prefetchCount,omitempty"`

	// InitialTimeout is the umbrella timeout for the initial full sync
	InitialTimeout string `yaml:"initialTimeout,omitempty"`

	// BackgroundFolderTimeout is the per-folder timeout on the
	// incremental background path
	BackgroundFolderTimeout string `yaml:"backgroundFolderTimeout,omitempty"`

	// ManualTimeout is the umbrella timeout for a manual sync
	ManualTimeout string `yaml:"manualTimeout,omitempty"`

	// ManualFolderTimeout is the per-folder timeout on the manual path
	ManualFolderTimeout string `yaml:"manualFolderTimeout,omitempty"`

	// ManualForcedFolderTimeout is the per-folder timeout for folders
	// the manual path fully resyncs (a full refetch can take minutes)
	ManualForcedFolderTimeout string `yaml:"manualForcedFolderTimeout,omitempty"`

	// ContactsTimeout is the contacts domain sync timeout
	ContactsTimeout string `yaml:"contactsTimeout,omitempty"`

	// DomainTimeout is the notes/calendar/tasks domain sync timeout
	DomainTimeout string `yaml:"domainTimeout,omitempty"`
}

// Tuning is SyncSettings with durations parsed and defaults applied
type Tuning struct {
	FolderConcurrency         int
	MaxAttempts               int
	PrefetchCount             int
	InitialTimeout            time.Duration
	BackgroundFolderTimeout   time.Duration
	ManualTimeout             time.Duration
	ManualFolderTimeout       time.Duration
	ManualForcedFolderTimeout time.Duration
	ContactsTimeout           time.Duration
	DomainTimeout             time.Duration
}

// DefaultTuning returns the built-in orchestration defaults
func DefaultTuning() Tuning {
	return Tuning{
		FolderConcurrency:         2,
		MaxAttempts:               3,
		PrefetchCount:             7,
		InitialTimeout:            600 * time.Second,
		BackgroundFolderTimeout:   60 * time.Second,
		ManualTimeout:             300 * time.Second,
		ManualFolderTimeout:       30 * time.Second,
		ManualForcedFolderTimeout: 180 * time.Second,
		ContactsTimeout:           120 * time.Second,
		DomainTimeout:             60 * time.Second,
	}
}

// Resolve parses the configured durations and applies defaults for
// anything left unset
func (s *SyncSettings) Resolve() (Tuning, error) {
	t := DefaultTuning()

	if s.FolderConcurrency > 0 {
		t.FolderConcurrency = s.FolderConcurrency
	}
	if s.MaxAttempts > 0 {
		t.MaxAttempts = s.MaxAttempts
	}
	if s.PrefetchCount > 0 {
		t.PrefetchCount = s.PrefetchCount
	}

	for _, field := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"initialTimeout", s.InitialTimeout, &t.InitialTimeout},
		{"backgroundFolderTimeout", s.BackgroundFolderTimeout, &t.BackgroundFolderTimeout},
		{"manualTimeout", s.ManualTimeout, &t.ManualTimeout},
		{"manualFolderTimeout", s.ManualFolderTimeout, &t.ManualFolderTimeout},
		{"manualForcedFolderTimeout", s.ManualForcedFolderTimeout, &t.ManualForcedFolderTimeout},
		{"contactsTimeout", s.ContactsTimeout, &t.ContactsTimeout},
		{"domainTimeout", s.DomainTimeout, &t.DomainTimeout},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return Tuning{}, fmt.Errorf("sync.%s must be a valid duration (e.g. '30s', '10m'): %w", field.name, err)
		}
		if d <= 0 {
			return Tuning{}, fmt.Errorf("sync.%s must be positive", field.name)
		}
		*field.dst = d
	}

	return t, nil
}

// NetworkConfig configures the reachability probe
type NetworkConfig struct {
	// ProbeURL is the endpoint the network gate checks for actual
	// internet reachability. Defaults to a generate-204 style endpoint.
	ProbeURL string `yaml:"probeURL,omitempty"`

	// ProbeTimeout bounds a single probe request
	ProbeTimeout string `yaml:"probeTimeout,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from SKYLARK_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable",
		EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper
// password handling. The password is URL-escaped to handle special
// characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetDataDir returns the data directory, using "./data" if not specified
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return "./data"
	}
	return c.DataDir
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	accountIDs := make(map[string]bool)
	for i, account := range c.Accounts {
		if account.ID == "" {
			return fmt.Errorf("account[%d]: id is required", i)
		}

		if accountIDs[account.ID] {
			return fmt.Errorf("account[%d]: duplicate account id '%s'", i, account.ID)
		}
		accountIDs[account.ID] = true
	}

	if _, err := c.Sync.Resolve(); err != nil {
		return err
	}

	if err := validateNetworkConfig(&c.Network); err != nil {
		return err
	}

	if c.Database != nil {
		if err := validateDatabaseConfig(c.Database); err != nil {
			return err
		}
	}

	return nil
}

// validateNetworkConfig validates the reachability probe settings
func validateNetworkConfig(n *NetworkConfig) error {
	if n.ProbeURL != "" {
		u, err := url.Parse(n.ProbeURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("network.probeURL must be an absolute URL: %s", n.ProbeURL)
		}
	}
	if n.ProbeTimeout != "" {
		if _, err := time.ParseDuration(n.ProbeTimeout); err != nil {
			return fmt.Errorf("network.probeTimeout must be a valid duration (e.g. '3s'): %w", err)
		}
	}
	return nil
}

// validateDatabaseConfig validates database connection settings
func validateDatabaseConfig(d *DatabaseConfig) error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	return nil
}
