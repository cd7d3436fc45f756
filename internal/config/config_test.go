package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Serve.Addr)
	assert.Equal(t, 10*time.Second, cfg.Serve.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "proftimers", cfg.Tracing.Service)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Warnings.Rate)
	assert.Equal(t, 5, cfg.Warnings.Burst)
	assert.Empty(t, cfg.WarningLimits())
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(newViper(t, `
log:
  level: debug
  json: true
serve:
  addr: ":9090"
  shutdown_timeout: 3s
store:
  type: sqlite
  path: /tmp/timers.db
warnings:
  rate: 0
  limits:
    - timer: dbRead
      ms: 500
    - timer: cacheRead
      ms: 0.5
timers:
  custom: [dbRead, cacheRead]
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 3*time.Second, cfg.Serve.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Store.ToStore().Type)
	assert.Equal(t, "/tmp/timers.db", cfg.Store.ToStore().Path)
	assert.Equal(t, []string{"dbRead", "cacheRead"}, cfg.Timers.Custom)

	assert.Equal(t, map[string]time.Duration{
		"dbRead":    500 * time.Millisecond,
		"cacheRead": 500 * time.Microsecond,
	}, cfg.WarningLimits())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PROFTIMERS_SERVE_ADDR", ":7070")

	v := newViper(t, "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Serve.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"negative rate", "warnings: {rate: -1}", ErrInvalidRate},
		{"zero limit", "warnings: {limits: [{timer: dbRead, ms: 0}]}", ErrInvalidLimit},
		{"unnamed limit", "warnings: {limits: [{ms: 10}]}", ErrInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := Load(newViper(t, "store: {type: mongodb}"))
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	l, err := LogConfig{Level: "warn"}.NewLogger("proftimers")
	require.NoError(t, err)
	assert.NotNil(t, l)

	dir := t.TempDir()
	l, err = LogConfig{Level: "info", Dir: dir}.NewLogger("proftimers")
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.Close())
	assert.FileExists(t, filepath.Join(dir, "proftimers.log"))
}

func TestTracingConfig_ToTracing(t *testing.T) {
	tc := TracingConfig{Enabled: true, Endpoint: "otel:4318", Service: "svc", SampleRatio: 0.25}.ToTracing("1.2.3")
	assert.Equal(t, 0.25, tc.SampleRatio)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "otel:4318", tc.OTLPEndpoint)
	assert.Equal(t, "svc", tc.ServiceName)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
}
