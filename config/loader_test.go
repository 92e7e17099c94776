package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Runner.MaxSteps)
	assert.Equal(t, "memory", cfg.Checkpoint.Backend)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  max_steps: 50
  node_timeout: 30s
checkpoint:
  backend: redis
  max_per_run: 5
redis:
  addr: redis.internal:6379
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Runner.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.Runner.NodeTimeout)
	assert.Equal(t, "redis", cfg.Checkpoint.Backend)
	assert.Equal(t, 5, cfg.Checkpoint.MaxPerRun)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner:\n  max_steps: 50\n"), 0o600))

	t.Setenv("AGENTGRAPH_RUNNER_MAX_STEPS", "7")
	t.Setenv("AGENTGRAPH_RUNNER_NODE_TIMEOUT", "5s")
	t.Setenv("AGENTGRAPH_CHECKPOINT_BACKEND", "sql")
	t.Setenv("AGENTGRAPH_RUNNER_DELETE_ON_COMPLETE", "true")
	t.Setenv("AGENTGRAPH_LOG_OUTPUT_PATHS", "stdout, /var/log/agentgraph.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Runner.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.Runner.NodeTimeout)
	assert.Equal(t, "sql", cfg.Checkpoint.Backend)
	assert.True(t, cfg.Runner.DeleteOnComplete)
	assert.Equal(t, []string{"stdout", "/var/log/agentgraph.log"}, cfg.Log.OutputPaths)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Runner.MaxSteps)
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_RUNNER_MAX_STEPS", "3")
	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Runner.MaxSteps)
}

func TestLoad_ValidatorRejects(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			cfg.Checkpoint.Backend = "carrier-pigeon"
			return cfg.Validate()
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint backend")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "non-positive max steps",
			mutate:  func(c *Config) { c.Runner.MaxSteps = 0 },
			wantErr: "max_steps",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Checkpoint.Backend = "tape" },
			wantErr: "checkpoint backend",
		},
		{
			name: "redis backend without addr",
			mutate: func(c *Config) {
				c.Checkpoint.Backend = "redis"
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
		{
			name: "mongo backend without uri",
			mutate: func(c *Config) {
				c.Checkpoint.Backend = "mongo"
				c.Mongo.URI = ""
			},
			wantErr: "mongo.uri",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "log level",
		},
		{
			name: "telemetry without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.OTLPEndpoint = ""
			},
			wantErr: "otlp_endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		cfg    DatabaseConfig
		expect string
	}{
		{
			name: "postgres",
			cfg: DatabaseConfig{
				Driver: "postgres", Host: "db", Port: 5432,
				User: "app", Password: "secret", Name: "graphs", SSLMode: "disable",
			},
			expect: "host=db port=5432 user=app password=secret dbname=graphs sslmode=disable",
		},
		{
			name: "mysql",
			cfg: DatabaseConfig{
				Driver: "mysql", Host: "db", Port: 3306,
				User: "app", Password: "secret", Name: "graphs",
			},
			expect: "app:secret@tcp(db:3306)/graphs?parseTime=true",
		},
		{
			name:   "sqlite",
			cfg:    DatabaseConfig{Driver: "sqlite", Name: "graphs.db"},
			expect: "graphs.db",
		},
		{
			name:   "unknown driver",
			cfg:    DatabaseConfig{Driver: "oracle"},
			expect: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.cfg.DSN())
		})
	}
}

func TestBuildLogger(t *testing.T) {
	logger, err := DefaultLogConfig().BuildLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = LogConfig{Level: "shout", Format: "json", OutputPaths: []string{"stdout"}}.BuildLogger()
	require.Error(t, err)
}
