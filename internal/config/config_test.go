package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Europe/Berlin\nlog_level: LOUD\nlookahead_days: -2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultLookaheadDays, cfg.LookaheadDays)
	assert.Equal(t, DefaultGenerateCron, cfg.GenerateCron)
	assert.NotNil(t, cfg.Imports)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	owner := int64(3)

	cfg := DefaultConfig()
	cfg.Imports = []ImportConfig{{URL: "https://example.com/team.ics", ID: "team", Owner: &owner}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://calrecur@localhost/calrecur")
	t.Setenv("CALRECUR_TIMEZONE", "Asia/Seoul")
	t.Setenv("CALRECUR_LOG_LEVEL", "debug")
	t.Setenv("CALRECUR_LOOKAHEAD_DAYS", "14")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "postgres://calrecur@localhost/calrecur", cfg.DatabaseURL)
	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 14, cfg.LookaheadDays)
	assert.Equal(t, DefaultListen, cfg.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad cron", mutate: func(c *Config) { c.GenerateCron = "every day" }, wantErr: true},
		{name: "basic auth without user", mutate: func(c *Config) { c.BasicAuth = &BasicAuthConfig{Password: "x"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
