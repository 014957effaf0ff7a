// Package config loads and validates reverse411 configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/encoding/htmlindex"
)

// EnvPrefix namespaces environment overrides, e.g. REVERSE411_WRITER_BATCH_SIZE.
const EnvPrefix = "REVERSE411"

// Archive providers.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Lookup   LookupConfig   `mapstructure:"lookup"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Writer   WriterConfig   `mapstructure:"writer"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Progress ProgressConfig `mapstructure:"progress"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// LookupConfig describes the remote reverse lookup service.
type LookupConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Mode         string `mapstructure:"mode"`
	Encoding     string `mapstructure:"encoding"`
	NoMatchValue string `mapstructure:"no_match_value"`
}

// DispatchConfig governs wave pacing and the in-flight ceiling.
type DispatchConfig struct {
	WaveSize        int `mapstructure:"wave_size"`
	WaveIntervalMs  int `mapstructure:"wave_interval_ms"`
	SubmitSpacingMs int `mapstructure:"submit_spacing_ms"`
	MaxInFlight     int `mapstructure:"max_in_flight"`
}

// WaveInterval returns the delay between wave starts.
func (d DispatchConfig) WaveInterval() time.Duration {
	return time.Duration(d.WaveIntervalMs) * time.Millisecond
}

// SubmitSpacing returns the delay between submissions within a wave.
func (d DispatchConfig) SubmitSpacing() time.Duration {
	return time.Duration(d.SubmitSpacingMs) * time.Millisecond
}

// WriterConfig controls write batching.
type WriterConfig struct {
	BatchSize  int `mapstructure:"batch_size"`
	PauseMs    int `mapstructure:"pause_ms"`
	IdleWaitMs int `mapstructure:"idle_wait_ms"`
}

// Pause returns the yield after each batch write.
func (w WriterConfig) Pause() time.Duration {
	return time.Duration(w.PauseMs) * time.Millisecond
}

// IdleWait returns the writer's re-check interval.
func (w WriterConfig) IdleWait() time.Duration {
	return time.Duration(w.IdleWaitMs) * time.Millisecond
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// Timeout returns the per-request deadline.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the optional progress API. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ArchiveConfig selects where fetched pages are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// MaxBatchWait returns the partial-batch flush delay.
func (p ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(p.MaxBatchWaitMs) * time.Millisecond
}

// DBConfig controls access to the run ledger. An empty DSN disables it.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	RunTable     string `mapstructure:"run_table"`
	OutcomeTable string `mapstructure:"outcome_table"`
	MaxConns     int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for batch-saved notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether both project and topic are set.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("lookup.base_url", "http://411.ca")
	v.SetDefault("lookup.mode", "reverse")
	v.SetDefault("lookup.encoding", "utf-8")
	v.SetDefault("lookup.no_match_value", "")
	v.SetDefault("dispatch.wave_size", 10)
	v.SetDefault("dispatch.wave_interval_ms", 10000)
	v.SetDefault("dispatch.submit_spacing_ms", 20)
	v.SetDefault("dispatch.max_in_flight", 200)
	v.SetDefault("writer.batch_size", 20)
	v.SetDefault("writer.pause_ms", 3000)
	v.SetDefault("writer.idle_wait_ms", 250)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "reverse411/1.0")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.run_table", "run_ledger")
	v.SetDefault("db.outcome_table", "row_outcomes")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Lookup.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("lookup.base_url must be an absolute URL")
	}
	if strings.TrimSpace(c.Lookup.Mode) == "" {
		return fmt.Errorf("lookup.mode must be set")
	}
	if _, err := htmlindex.Get(c.Lookup.Encoding); err != nil {
		return fmt.Errorf("lookup.encoding %q is not a known encoding", c.Lookup.Encoding)
	}
	if c.Dispatch.WaveSize <= 0 {
		return fmt.Errorf("dispatch.wave_size must be > 0")
	}
	if c.Dispatch.WaveIntervalMs < 0 {
		return fmt.Errorf("dispatch.wave_interval_ms must be >= 0")
	}
	if c.Dispatch.SubmitSpacingMs < 0 {
		return fmt.Errorf("dispatch.submit_spacing_ms must be >= 0")
	}
	if c.Dispatch.MaxInFlight <= 0 {
		return fmt.Errorf("dispatch.max_in_flight must be > 0")
	}
	if c.Writer.BatchSize <= 0 {
		return fmt.Errorf("writer.batch_size must be > 0")
	}
	if c.Writer.PauseMs < 0 {
		return fmt.Errorf("writer.pause_ms must be >= 0")
	}
	if c.Writer.IdleWaitMs <= 0 {
		return fmt.Errorf("writer.idle_wait_ms must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Archive.Provider {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			return fmt.Errorf("archive.base_dir must be set for the local provider")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("archive.provider %q must be one of none, memory, local, gcs", c.Archive.Provider)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}
