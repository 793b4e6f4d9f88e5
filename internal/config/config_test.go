package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "development"},
		Logger:   LoggerConfig{Level: "info"},
		Data:     DataConfig{BasePath: "/var/lib/takeout"},
		ExifTool: ExifToolConfig{Path: "exiftool"},
		Pipeline: PipelineConfig{SidecarPolicy: SidecarPolicyReport},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown environment", func(c *Config) { c.App.Environment = "test" }},
		{"unknown log level", func(c *Config) { c.Logger.Level = "trace" }},
		{"unknown sidecar policy", func(c *Config) { c.Pipeline.SidecarPolicy = "ignore" }},
		{"empty exiftool", func(c *Config) { c.ExifTool.Path = "" }},
		{"empty data path", func(c *Config) { c.Data.BasePath = "" }},
		{"inbox without settle delay", func(c *Config) { c.Inbox.Path = "/inbox" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, rest, err := Load("run", []string{"takeout.zip"})
	require.NoError(t, err)

	assert.Equal(t, []string{"takeout.zip"}, rest)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, SidecarPolicyReport, cfg.Pipeline.SidecarPolicy)
	assert.Equal(t, "exiftool", cfg.ExifTool.Path)
	assert.Equal(t, filepath.Join(home, ".takeout-fixer"), cfg.Data.BasePath)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Equal(t, 2*time.Second, cfg.Inbox.SettleDelay)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Pipeline.AutoSkip)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	envFile := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte("# comment\nLOG_LEVEL=\"debug\"\nSIDECAR_POLICY=fatal\nSERVER_PORT=9000\n"), 0o600))
	t.Setenv("SERVER_PORT", "9100")
	// Keep the file from leaking into later tests.
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SIDECAR_POLICY", "")

	cfg, _, err := Load("server", []string{"-env-file", envFile, "-sidecar-policy", "report", "-yes"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level, ".env fills unset values")
	assert.Equal(t, "9100", cfg.Server.Port, "environment beats .env")
	assert.Equal(t, SidecarPolicyReport, cfg.Pipeline.SidecarPolicy, "flag beats everything")
	assert.True(t, cfg.Pipeline.AutoSkip)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := Load("server", []string{"-read-timeout", "soon"})
	assert.ErrorContains(t, err, "server_read_timeout")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/exports", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "exports"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("rel/dir", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOT_A_PAIR\n"), 0o600))

	assert.ErrorContains(t, loadEnvFile(path), "line 1")
}
