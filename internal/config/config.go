package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Rules  RulesConfig  `yaml:"rules" mapstructure:"rules"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	LeaseTTLSecs  int    `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
	MaxConns      int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns      int32  `yaml:"min_conns" mapstructure:"min_conns"`
	LockTimeoutMs int    `yaml:"lock_timeout_ms" mapstructure:"lock_timeout_ms"`
}

// EngineConfig configures an assignment run.
type EngineConfig struct {
	BatchSize               int      `yaml:"batch_size" mapstructure:"batch_size"`
	Workers                 int      `yaml:"workers" mapstructure:"workers"`
	CommitsPerSecond        float64  `yaml:"commits_per_second" mapstructure:"commits_per_second"`
	ExcludeRevenueTypes     []string `yaml:"exclude_revenue_types" mapstructure:"exclude_revenue_types"`
	SponsorshipRevenueTypes []string `yaml:"sponsorship_revenue_types" mapstructure:"sponsorship_revenue_types"`
	BroadReachShare         float64  `yaml:"broad_reach_share" mapstructure:"broad_reach_share"`
	Tolerance               string   `yaml:"tolerance" mapstructure:"tolerance"`
}

// ToleranceAmount parses the reconciliation tolerance.
func (e EngineConfig) ToleranceAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(e.Tolerance))
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "config: engine.tolerance %q", e.Tolerance)
	}
	return d, nil
}

// RulesConfig configures the business rule set. When Path is set the rule
// file replaces the canonical rules and the thresholds below are ignored.
type RulesConfig struct {
	Path                       string   `yaml:"path" mapstructure:"path"`
	DirectResponsePatterns     []string `yaml:"direct_response_patterns" mapstructure:"direct_response_patterns"`
	PaidProgrammingRevenueType string   `yaml:"paid_programming_revenue_type" mapstructure:"paid_programming_revenue_type"`
	NonprofitMinHours          float64  `yaml:"nonprofit_min_hours" mapstructure:"nonprofit_min_hours"`
	ExtendedMinHours           float64  `yaml:"extended_min_hours" mapstructure:"extended_min_hours"`
	MediaSectors               []string `yaml:"media_sectors" mapstructure:"media_sectors"`
	NonprofitSectors           []string `yaml:"nonprofit_sectors" mapstructure:"nonprofit_sectors"`
	GovernmentSectors          []string `yaml:"government_sectors" mapstructure:"government_sectors"`
}

// RetryConfig configures retries of store writes that hit a busy store.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the read-only report API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPOTGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "spotgrid.db")
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("store.lease_ttl_secs", 3600)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.lock_timeout_ms", 5000)
	v.SetDefault("engine.batch_size", 500)
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.commits_per_second", 20.0)
	v.SetDefault("engine.exclude_revenue_types", []string{"Trade"})
	v.SetDefault("engine.sponsorship_revenue_types", []string{"Sponsorship", "Roadblock"})
	v.SetDefault("engine.broad_reach_share", 0.75)
	v.SetDefault("engine.tolerance", "1.00")
	v.SetDefault("rules.direct_response_patterns", []string{"worldlink", "direct response", "drtv", "mercury media"})
	v.SetDefault("rules.paid_programming_revenue_type", "Paid Programming")
	v.SetDefault("rules.nonprofit_min_hours", 5.0)
	v.SetDefault("rules.extended_min_hours", 12.0)
	v.SetDefault("rules.media_sectors", []string{"MEDIA"})
	v.SetDefault("rules.nonprofit_sectors", []string{"NPO"})
	v.SetDefault("rules.government_sectors", []string{"GOV"})
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	switch mode {
	case "assign", "reconcile":
		if c.Engine.BatchSize < 1 {
			errs = append(errs, "engine.batch_size must be >= 1")
		}
		if c.Engine.Workers < 1 || c.Engine.Workers > 64 {
			errs = append(errs, "engine.workers must be between 1 and 64")
		}
		if c.Engine.CommitsPerSecond < 0 {
			errs = append(errs, "engine.commits_per_second must be >= 0")
		}
		if c.Engine.BroadReachShare <= 0 || c.Engine.BroadReachShare > 1 {
			errs = append(errs, "engine.broad_reach_share must be in (0, 1]")
		}
		if tol, err := c.Engine.ToleranceAmount(); err != nil {
			errs = append(errs, "engine.tolerance must be a decimal amount")
		} else if tol.IsNegative() {
			errs = append(errs, "engine.tolerance must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate", "grid", "collisions", "runs", "rules":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
