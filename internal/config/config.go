// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/bulkgen/internal/job"
)

// EnvPrefix is prepended to every environment override, e.g. BULKGEN_SERVER_PORT.
const EnvPrefix = "BULKGEN"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Job       JobConfig       `mapstructure:"job"`
	Synth     SynthConfig     `mapstructure:"synth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Export    ExportConfig    `mapstructure:"export"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the log bridge tee.
type LoggingConfig struct {
	Development   bool     `mapstructure:"development"`
	Level         string   `mapstructure:"level"`
	BridgeLevel   string   `mapstructure:"bridge_level"`
	BridgeExclude []string `mapstructure:"bridge_exclude"`
}

// BridgeConfig sizes the dashboard log buffer.
type BridgeConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// JobConfig holds the defaults applied to start requests and the supervisor
// tuning knobs.
type JobConfig struct {
	Region          string        `mapstructure:"region"`
	NamePrefix      string        `mapstructure:"name_prefix"`
	PasswordPrefix  string        `mapstructure:"password_prefix"`
	AccountCount    int64         `mapstructure:"account_count"`
	ThreadCount     int           `mapstructure:"thread_count"`
	AutoActivation  bool          `mapstructure:"auto_activation"`
	RarityThreshold int           `mapstructure:"rarity_threshold"`
	GhostRegion     string        `mapstructure:"ghost_region"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxFailures     int           `mapstructure:"max_failures"`
}

// Defaults converts the configured defaults into a job.Config.
func (j JobConfig) Defaults() job.Config {
	return job.Config{
		Region:          j.Region,
		NamePrefix:      j.NamePrefix,
		PasswordPrefix:  j.PasswordPrefix,
		AccountCount:    j.AccountCount,
		ThreadCount:     j.ThreadCount,
		AutoActivation:  j.AutoActivation,
		RarityThreshold: j.RarityThreshold,
	}
}

// SynthConfig tunes the simulated synthesizer.
type SynthConfig struct {
	Seed                  uint64        `mapstructure:"seed"`
	Latency               time.Duration `mapstructure:"latency"`
	CoupleRate            float64       `mapstructure:"couple_rate"`
	ActivationFailureRate float64       `mapstructure:"activation_failure_rate"`
	ErrorRate             float64       `mapstructure:"error_rate"`
	Diagnostics           bool          `mapstructure:"diagnostics"`
}

// RateLimitConfig paces synthesis attempts per region. RPS <= 0 disables pacing.
type RateLimitConfig struct {
	RPS       float64            `mapstructure:"rps"`
	Burst     int                `mapstructure:"burst"`
	PerRegion map[string]float64 `mapstructure:"per_region"`
}

// AccountsConfig selects where generated records are kept.
type AccountsConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// ExportConfig selects the blob backend for category exports.
type ExportConfig struct {
	Backend      string `mapstructure:"backend"`
	Bucket       string `mapstructure:"bucket"`
	CacheControl string `mapstructure:"cache_control"`
	BaseDir      string `mapstructure:"base_dir"`
	Prefix       string `mapstructure:"prefix"`
	FilePrefix   string `mapstructure:"file_prefix"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// DBConfig controls access to the run history database. An empty DSN
// disables run history.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	RunTopic     string `mapstructure:"run_topic"`
	AccountTopic string `mapstructure:"account_topic"`
}

// TelemetryConfig controls OpenTelemetry tracing. ProjectID enables export to
// Google Cloud Trace.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Backend names accepted by AccountsConfig and ExportConfig.
const (
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendLocal      = "local"
	BackendGCS        = "gcs"
)

// Load builds a Config from .env files, an optional config file, and the
// environment, in increasing order of precedence.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv loads the given files, or .env when none are named. Missing
// files are ignored; variables already set win.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := job.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.bridge_level", "info")
	v.SetDefault("logging.bridge_exclude", []string{"api", "progress", "worker", "job"})
	v.SetDefault("bridge.capacity", 10000)
	v.SetDefault("job.region", def.Region)
	v.SetDefault("job.name_prefix", def.NamePrefix)
	v.SetDefault("job.password_prefix", def.PasswordPrefix)
	v.SetDefault("job.account_count", def.AccountCount)
	v.SetDefault("job.thread_count", def.ThreadCount)
	v.SetDefault("job.auto_activation", def.AutoActivation)
	v.SetDefault("job.rarity_threshold", def.RarityThreshold)
	v.SetDefault("job.ghost_region", job.DefaultGhostRegion)
	v.SetDefault("job.poll_interval", "1s")
	v.SetDefault("job.max_failures", 5)
	v.SetDefault("synth.seed", 0)
	v.SetDefault("synth.latency", "50ms")
	v.SetDefault("synth.couple_rate", 0.05)
	v.SetDefault("synth.activation_failure_rate", 0.1)
	v.SetDefault("synth.error_rate", 0.0)
	v.SetDefault("synth.diagnostics", false)
	v.SetDefault("ratelimit.rps", 0.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("accounts.backend", BackendMemory)
	v.SetDefault("accounts.dir", "generated_accounts")
	v.SetDefault("export.backend", BackendMemory)
	v.SetDefault("export.base_dir", "exports")
	v.SetDefault("export.prefix", "exports")
	v.SetDefault("export.file_prefix", "knx")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("db.table", "job_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("pubsub.run_topic", "bulkgen-runs")
	v.SetDefault("pubsub.account_topic", "bulkgen-accounts")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "bulkgen")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Bridge.Capacity <= 0 {
		return fmt.Errorf("bridge.capacity must be > 0")
	}
	if c.Job.PollInterval <= 0 {
		return fmt.Errorf("job.poll_interval must be > 0")
	}
	if c.Job.MaxFailures <= 0 {
		return fmt.Errorf("job.max_failures must be > 0")
	}
	if err := c.Job.Defaults().Normalize(c.Job.GhostRegion).Validate(); err != nil {
		return fmt.Errorf("job defaults: %w", err)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be > 0 when ratelimit.rps is set")
	}
	for _, rate := range []float64{c.Synth.CoupleRate, c.Synth.ActivationFailureRate, c.Synth.ErrorRate} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("synth rates must be within [0, 1]")
		}
	}
	switch c.Accounts.Backend {
	case BackendMemory:
	case BackendFilesystem:
		if c.Accounts.Dir == "" {
			return fmt.Errorf("accounts.dir must be set for the filesystem backend")
		}
	default:
		return fmt.Errorf("accounts.backend %q is not supported", c.Accounts.Backend)
	}
	switch c.Export.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Export.BaseDir == "" {
			return fmt.Errorf("export.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Export.Bucket == "" {
			return fmt.Errorf("export.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("export.backend %q is not supported", c.Export.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.RunTopic == "" && c.PubSub.AccountTopic == "" {
		return fmt.Errorf("pubsub.run_topic or pubsub.account_topic must be set when pubsub.project_id is set")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
		}
	}
	return nil
}
