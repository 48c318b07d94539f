package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/codec"
	"github.com/unkn0wn-root/cascheck/endpoint"
)

// SettleConfig holds the default wait between a write and its replica read
type SettleConfig struct {
	Mode      string        `yaml:"mode"` // fixed | poll | none
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	PollEvery time.Duration `yaml:"poll_every"`
}

// ScenarioConfig selects and tunes the catalogue
type ScenarioConfig struct {
	Only            []string      `yaml:"only"`
	Skip            []string      `yaml:"skip"`
	Namespace       string        `yaml:"namespace"` // "" => cascheck:<run id>
	KeepKeys        bool          `yaml:"keep_keys"`
	PayloadCodec    string        `yaml:"payload_codec"`
	MaxPayloadBytes int           `yaml:"max_payload_bytes"`
	PubSubTimeout   time.Duration `yaml:"pubsub_timeout"`
	Contention      int           `yaml:"contention"`
	Seed            int64         `yaml:"seed"` // 0 => time based
}

// TransactionConfig holds optimistic transaction settings
type TransactionConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// ReportConfig selects where scenario results are recorded
type ReportConfig struct {
	Store  string        `yaml:"store"` // ristretto | bigcache | redis | bolt | none
	Codec  string        `yaml:"codec"` // msgpack | cbor | json
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"` // redis store key prefix
	Path   string        `yaml:"path"`   // bolt store file
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`  // json | console
	Backend string `yaml:"backend"` // zap | logrus | slog
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Config represents the complete configuration for a cascheck run
type Config struct {
	Primary     endpoint.Endpoint `yaml:"primary"`
	Replica     endpoint.Endpoint `yaml:"replica"`
	Settle      SettleConfig      `yaml:"settle"`
	Scenarios   ScenarioConfig    `yaml:"scenarios"`
	Transaction TransactionConfig `yaml:"transaction"`
	Report      ReportConfig      `yaml:"report"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default returns a configuration with every default applied and no hosts.
// Managed deployments only accept TLS, so it is on unless turned off.
func Default() *Config {
	cfg := &Config{}
	cfg.Primary.TLS.Enabled = true
	cfg.Replica.TLS.Enabled = true
	setDefaults(cfg)
	return cfg
}

// Load reads path (optional, "" skips the file), applies defaults and
// CASCHECK_* environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Primary.TLS.Enabled = true
	cfg.Replica.TLS.Enabled = true

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	cfg.Primary.Role = cascheck.RolePrimary
	cfg.Replica.Role = cascheck.RoleReplica
	if cfg.Primary.Port == 0 {
		cfg.Primary.Port = endpoint.DefaultPort
	}
	if cfg.Replica.Port == 0 {
		cfg.Replica.Port = endpoint.DefaultPort
	}

	if cfg.Settle.Mode == "" {
		cfg.Settle.Mode = "fixed"
	}
	if cfg.Settle.Interval == 0 {
		cfg.Settle.Interval = cascheck.DefaultSettleInterval
	}
	if cfg.Settle.Timeout == 0 {
		cfg.Settle.Timeout = cascheck.DefaultSettleTimeout
	}
	if cfg.Settle.PollEvery == 0 {
		cfg.Settle.PollEvery = cascheck.DefaultPollEvery
	}

	if cfg.Scenarios.PayloadCodec == "" {
		cfg.Scenarios.PayloadCodec = "json"
	}
	if cfg.Scenarios.MaxPayloadBytes == 0 {
		cfg.Scenarios.MaxPayloadBytes = 8 << 20 // 8MB
	}
	if cfg.Scenarios.PubSubTimeout == 0 {
		cfg.Scenarios.PubSubTimeout = 5 * time.Second
	}
	if cfg.Scenarios.Contention == 0 {
		cfg.Scenarios.Contention = 8
	}

	if cfg.Transaction.MaxAttempts == 0 {
		cfg.Transaction.MaxAttempts = 32
	}

	if cfg.Report.Store == "" {
		cfg.Report.Store = "ristretto"
	}
	if cfg.Report.Codec == "" {
		cfg.Report.Codec = "msgpack"
	}
	if cfg.Report.TTL == 0 {
		cfg.Report.TTL = 7 * 24 * time.Hour
	}
	if cfg.Report.Prefix == "" {
		cfg.Report.Prefix = "cascheck"
	}
	if cfg.Report.Path == "" {
		cfg.Report.Path = "cascheck-results.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Backend == "" {
		cfg.Logging.Backend = "zap"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config.
// Connection settings apply to both endpoints unless a role-specific variable
// is set.
func applyEnvironmentOverrides(cfg *Config) error {
	if host := os.Getenv("CASCHECK_PRIMARY_HOST"); host != "" {
		cfg.Primary.Host = host
	}
	if host := os.Getenv("CASCHECK_REPLICA_HOST"); host != "" {
		cfg.Replica.Host = host
	}
	if port := os.Getenv("CASCHECK_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("CASCHECK_PORT: %w", err)
		}
		cfg.Primary.Port, cfg.Replica.Port = p, p
	}
	if user := os.Getenv("CASCHECK_USERNAME"); user != "" {
		cfg.Primary.Username, cfg.Replica.Username = user, user
	}
	if password := os.Getenv("CASCHECK_PASSWORD"); password != "" {
		cfg.Primary.Password, cfg.Replica.Password = password, password
	}
	if v := os.Getenv("CASCHECK_TLS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CASCHECK_TLS: %w", err)
		}
		cfg.Primary.TLS.Enabled, cfg.Replica.TLS.Enabled = on, on
	}
	if level := os.Getenv("CASCHECK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if mode := os.Getenv("CASCHECK_SETTLE"); mode != "" {
		cfg.Settle.Mode = mode
	}
	if v := os.Getenv("CASCHECK_SETTLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CASCHECK_SETTLE_INTERVAL: %w", err)
		}
		cfg.Settle.Interval = d
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Primary.Validate(); err != nil {
		return err
	}
	if err := c.Replica.Validate(); err != nil {
		return err
	}
	if _, err := cascheck.ParseSettleMode(c.Settle.Mode); err != nil {
		return fmt.Errorf("settle.mode: %w", err)
	}
	if c.Settle.Interval < 0 || c.Settle.Timeout < 0 || c.Settle.PollEvery < 0 {
		return fmt.Errorf("settle durations must not be negative")
	}
	if _, err := codec.ForDocument(c.Scenarios.PayloadCodec, 0); err != nil {
		return fmt.Errorf("scenarios.payload_codec: %w", err)
	}
	if c.Scenarios.Contention < 1 {
		return fmt.Errorf("scenarios.contention must be at least 1")
	}
	if c.Transaction.MaxAttempts < 1 {
		return fmt.Errorf("transaction.max_attempts must be at least 1")
	}
	switch c.Report.Store {
	case "ristretto", "bigcache", "redis", "bolt", "none":
	default:
		return fmt.Errorf("report.store must be one of ristretto, bigcache, redis, bolt, none")
	}
	switch c.Report.Codec {
	case "msgpack", "cbor", "json":
	default:
		return fmt.Errorf("report.codec must be one of msgpack, cbor, json")
	}
	switch strings.ToLower(c.Logging.Backend) {
	case "zap", "logrus", "slog":
	default:
		return fmt.Errorf("logging.backend must be one of zap, logrus, slog")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// SettlePolicy converts the settle section for the verifier.
func (c *Config) SettlePolicy() cascheck.Settle {
	mode, _ := cascheck.ParseSettleMode(c.Settle.Mode) // checked by Validate
	return cascheck.Settle{
		Mode:      mode,
		Interval:  c.Settle.Interval,
		Timeout:   c.Settle.Timeout,
		PollEvery: c.Settle.PollEvery,
	}
}

// Durable reports whether results outlive the process, so a later
// "report" command can read them back.
func (c *Config) Durable() bool {
	return c.Report.Store == "redis" || c.Report.Store == "bolt"
}
