package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
lookup:
  base_url: https://lookup.example.com
  mode: reverse
  encoding: windows-1252
  no_match_value: N/A
dispatch:
  wave_size: 5
  wave_interval_ms: 2000
  submit_spacing_ms: 50
  max_in_flight: 32
writer:
  batch_size: 7
  pause_ms: 100
  idle_wait_ms: 40
http:
  timeout_seconds: 30
  user_agent: test-agent
archive:
  provider: local
  base_dir: /tmp/pages
db:
  dsn: postgres://localhost/reverse411
  run_table: runs
pubsub:
  project_id: proj
  topic_name: batches
logging:
  development: false
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://lookup.example.com", cfg.Lookup.BaseURL)
	require.Equal(t, "windows-1252", cfg.Lookup.Encoding)
	require.Equal(t, "N/A", cfg.Lookup.NoMatchValue)
	require.Equal(t, 5, cfg.Dispatch.WaveSize)
	require.Equal(t, 2*time.Second, cfg.Dispatch.WaveInterval())
	require.Equal(t, 50*time.Millisecond, cfg.Dispatch.SubmitSpacing())
	require.Equal(t, 32, cfg.Dispatch.MaxInFlight)
	require.Equal(t, 7, cfg.Writer.BatchSize)
	require.Equal(t, 100*time.Millisecond, cfg.Writer.Pause())
	require.Equal(t, 40*time.Millisecond, cfg.Writer.IdleWait())
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout())
	require.Equal(t, ArchiveLocal, cfg.Archive.Provider)
	require.Equal(t, "runs", cfg.DB.RunTable)
	require.Equal(t, "row_outcomes", cfg.DB.OutcomeTable)
	require.True(t, cfg.PubSub.Enabled())
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://411.ca", cfg.Lookup.BaseURL)
	require.Equal(t, "reverse", cfg.Lookup.Mode)
	require.Equal(t, "utf-8", cfg.Lookup.Encoding)
	require.Empty(t, cfg.Lookup.NoMatchValue)
	require.Equal(t, 10, cfg.Dispatch.WaveSize)
	require.Equal(t, 10*time.Second, cfg.Dispatch.WaveInterval())
	require.Equal(t, 20*time.Millisecond, cfg.Dispatch.SubmitSpacing())
	require.Equal(t, 200, cfg.Dispatch.MaxInFlight)
	require.Equal(t, 20, cfg.Writer.BatchSize)
	require.Equal(t, 3*time.Second, cfg.Writer.Pause())
	require.Equal(t, 250*time.Millisecond, cfg.Writer.IdleWait())
	require.Equal(t, ArchiveNone, cfg.Archive.Provider)
	require.Empty(t, cfg.Server.Addr)
	require.Empty(t, cfg.DB.DSN)
	require.False(t, cfg.PubSub.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REVERSE411_WRITER_BATCH_SIZE", "3")
	t.Setenv("REVERSE411_LOOKUP_NO_MATCH_VALUE", "none")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Writer.BatchSize)
	require.Equal(t, "none", cfg.Lookup.NoMatchValue)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Lookup.BaseURL = "411.ca" }, "lookup.base_url"},
		{"unknown encoding", func(c *Config) { c.Lookup.Encoding = "klingon" }, "lookup.encoding"},
		{"zero wave size", func(c *Config) { c.Dispatch.WaveSize = 0 }, "dispatch.wave_size"},
		{"negative interval", func(c *Config) { c.Dispatch.WaveIntervalMs = -1 }, "dispatch.wave_interval_ms"},
		{"zero in flight", func(c *Config) { c.Dispatch.MaxInFlight = 0 }, "dispatch.max_in_flight"},
		{"zero batch", func(c *Config) { c.Writer.BatchSize = 0 }, "writer.batch_size"},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"unknown archive", func(c *Config) { c.Archive.Provider = "s3" }, "archive.provider"},
		{"gcs without bucket", func(c *Config) { c.Archive.Provider = ArchiveGCS }, "archive.gcs_bucket"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "proj" }, "pubsub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
