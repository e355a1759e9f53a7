package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ja7ad/ecotrace/pkg/profiler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ecotrace.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ListerProcfs, cfg.Lister)
	assert.Equal(t, []profiler.Resource{profiler.CPU, profiler.RAM}, cfg.Resources())
	assert.Equal(t, time.Second, cfg.Interval())
	assert.Equal(t, 5*time.Second, cfg.Duration())
	assert.Equal(t, 5*time.Second, cfg.TimeoutBuffer())
	assert.Equal(t, time.Second, cfg.Grace())
	assert.Equal(t, 10, cfg.Sampling.ProcessLimit)
	assert.Equal(t, runtime.NumCPU(), cfg.Sampling.Workers)
	assert.Equal(t, runtime.NumCPU(), cfg.Profiler.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.CyclePause())
	assert.Equal(t, 5*time.Second, cfg.EmptyRetry())
	assert.Equal(t, 15*time.Minute, cfg.PollInterval())
	assert.Equal(t, "FR", cfg.Grid.Zone)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.True(t, cfg.Sampling.Enabled)
	assert.True(t, cfg.Grid.Enabled)
}

func TestLoadConfig_File(t *testing.T) {
	p := writeConfig(t, `
lister: ps
output_dir: /tmp/eco
database:
  path: /tmp/eco/carbon.db
profiler:
  path: /opt/ecofloc/ecofloc
  timeout_buffer_sec: 2
sampling:
  resources: [cpu, storage, network]
  interval_ms: 500
  duration_sec: 3
  process_limit: 4
  workers: 2
  enabled: false
grid:
  enabled: false
log:
  level: debug
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, ListerPS, cfg.Lister)
	assert.Equal(t, "/opt/ecofloc/ecofloc", cfg.Profiler.Path)
	assert.Equal(t, []profiler.Resource{profiler.CPU, profiler.Storage, profiler.Network}, cfg.Resources())
	assert.Equal(t, 500*time.Millisecond, cfg.Interval())
	assert.Equal(t, 2*time.Second, cfg.TimeoutBuffer())
	assert.Equal(t, 4, cfg.Sampling.ProcessLimit)
	assert.Equal(t, 2, cfg.Sampling.Workers)
	assert.False(t, cfg.Sampling.Enabled)
	assert.False(t, cfg.Grid.Enabled)
	// untouched keys keep defaults
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 1000, cfg.Profiler.GraceMs)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ECO_RESOURCES", "gpu, ram")
	t.Setenv("ECO_INTERVAL_MS", "250")
	t.Setenv("ECO_DURATION_S", "7")
	t.Setenv("ECO_MAX_PIDS", "3")
	t.Setenv("ECO_WORKERS", "6")
	t.Setenv("ECO_OUTPUT_DIR", "/var/lib/eco")
	t.Setenv("ECO_DB_PATH", "/var/lib/eco/db.sqlite")
	t.Setenv("ECO_TOOL", "/usr/local/bin/ecofloc")
	t.Setenv("ECO_ZONE", "DE")
	t.Setenv("ECO_ADDR", "127.0.0.1:9000")
	t.Setenv("ELECTRICITYMAPS_TOKEN", "secret")

	cfg, err := LoadConfig(writeConfig(t, "sampling:\n  interval_ms: 900\n"))
	require.NoError(t, err)

	assert.Equal(t, []profiler.Resource{profiler.GPU, profiler.RAM}, cfg.Resources())
	assert.Equal(t, 250*time.Millisecond, cfg.Interval())
	assert.Equal(t, 7*time.Second, cfg.Duration())
	assert.Equal(t, 3, cfg.Sampling.ProcessLimit)
	assert.Equal(t, 6, cfg.Sampling.Workers)
	assert.Equal(t, "/var/lib/eco", cfg.OutputDir)
	assert.Equal(t, "/var/lib/eco/db.sqlite", cfg.Database.Path)
	assert.Equal(t, "/usr/local/bin/ecofloc", cfg.Profiler.Path)
	assert.Equal(t, "DE", cfg.Grid.Zone)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Grid.Token)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "sampling: [oops"))
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("ECO_MAX_PIDS", "ten")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "ECO_MAX_PIDS")
	})

	t.Run("all problems reported", func(t *testing.T) {
		cfg := Default()
		cfg.Lister = "wmi"
		cfg.Sampling.Resources = []string{"fan"}
		cfg.Sampling.IntervalMs = -1
		cfg.Sampling.ProcessLimit = -1
		cfg.Log.Level = "loud"
		err := cfg.validate()
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 5)
	})
}

func TestApplyEnv_Lookup(t *testing.T) {
	env := map[string]string{"ECO_RESOURCES": " , nic,", "ECO_ZONE": "  "}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, []string{"nic"}, cfg.Sampling.Resources)
	assert.Equal(t, "FR", cfg.Grid.Zone)
}
