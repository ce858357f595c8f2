package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.Pixiv.UserAgent)
	assert.Equal(t, "https://www.pixiv.net", cfg.Pixiv.BaseURL)
	assert.Equal(t, "https://www.pixiv.net/", cfg.Pixiv.Referer)
	assert.Equal(t, 30*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 4, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 48, cfg.Download.PageSize)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, "json", cfg.State.Backend)
	assert.True(t, cfg.Output.CreateAuthorFolders)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIXIVCRAWL_COOKIE", "PHPSESSID=123_abc")
	t.Setenv("PIXIVCRAWL_AUTHOR_ID", "11")
	t.Setenv("PIXIVCRAWL_PROXY", "127.0.0.1")
	t.Setenv("PIXIVCRAWL_TIMEOUT", "45s")
	t.Setenv("PIXIVCRAWL_CONCURRENT_DOWNLOADS", "6")
	t.Setenv("PIXIVCRAWL_METADATA_ONLY", "true")
	t.Setenv("PIXIVCRAWL_STATE_BACKEND", "bolt")
	t.Setenv("PIXIVCRAWL_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "PHPSESSID=123_abc", cfg.Pixiv.Cookie)
	assert.Equal(t, "11", cfg.Pixiv.AuthorID)
	assert.Equal(t, "127.0.0.1", cfg.Network.Proxy)
	assert.Equal(t, 45*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 6, cfg.Download.ConcurrentDownloads)
	assert.True(t, cfg.Download.MetadataOnly)
	assert.Equal(t, "bolt", cfg.State.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("PIXIVCRAWL_CONCURRENT_DOWNLOADS", "many")
	t.Setenv("PIXIVCRAWL_TIMEOUT", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PIXIVCRAWL_CONCURRENT_DOWNLOADS")
	assert.Contains(t, err.Error(), "PIXIVCRAWL_TIMEOUT")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pixiv:
  cookie: "PHPSESSID=file_cookie; p_ab_id=1"
  author_id: "2188232"
network:
  proxy: "socks5://127.0.0.1:1080"
  timeout: 1m
download:
  concurrent_downloads: 2
  page_size: 24
  run_timeout: 1h
retry:
  max_attempts: 5
  base_delay: 2s
state:
  backend: bolt
  directory: /tmp/pixivcrawl-state
logging:
  level: warn
  file: /tmp/pixivcrawl.log
  compress: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "PHPSESSID=file_cookie; p_ab_id=1", cfg.Pixiv.Cookie)
	assert.Equal(t, "2188232", cfg.Pixiv.AuthorID)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Network.Proxy)
	assert.Equal(t, time.Minute, cfg.Network.Timeout)
	assert.Equal(t, 2, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 24, cfg.Download.PageSize)
	assert.Equal(t, time.Hour, cfg.Download.RunTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, "bolt", cfg.State.Backend)
	assert.True(t, cfg.Logging.Compress)

	// untouched sections keep their defaults
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, "./downloads", cfg.Output.BaseDirectory)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("download: [unclosed"), 0644))
	assert.Error(t, cfg.LoadFromFile(bad))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"too many workers", func(c *Config) { c.Download.ConcurrentDownloads = 9 }, "should not exceed 8"},
		{"zero workers", func(c *Config) { c.Download.ConcurrentDownloads = 0 }, "must be positive"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max attempts"},
		{"bad backend", func(c *Config) { c.State.Backend = "redis" }, "unknown state backend"},
		{"bad proxy", func(c *Config) { c.Network.Proxy = "ftp://host" }, "unsupported scheme"},
		{"bad author", func(c *Config) { c.Pixiv.AuthorID = "abc" }, "must be numeric"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "invalid log level"},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, "metrics address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Download.ConcurrentDownloads = 0
	cfg.Output.BaseDirectory = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent downloads must be positive")
	assert.Contains(t, err.Error(), "output directory is required")
}

func TestValidateCredentials(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cookie is required")
	assert.Contains(t, err.Error(), "author ID is required")

	cfg.Pixiv.Cookie = ";;"
	cfg.Pixiv.AuthorID = "123"
	assert.ErrorContains(t, cfg.ValidateCredentials(), "no name=value pairs")

	cfg.Pixiv.Cookie = "PHPSESSID=1_x"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"author":        "99",
		"output":        "/tmp/out",
		"concurrent":    8,
		"proxy":         "10.0.0.1:8080",
		"timeout":       10 * time.Second,
		"max-retries":   4,
		"metadata-only": true,
		"metrics-addr":  ":9000",
		"log-level":     "error",
	})

	assert.Equal(t, "99", cfg.Pixiv.AuthorID)
	assert.Equal(t, "/tmp/out", cfg.Output.BaseDirectory)
	assert.Equal(t, 8, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, "10.0.0.1:8080", cfg.Network.Proxy)
	assert.Equal(t, 10*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Download.MetadataOnly)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9000", cfg.Metrics.Address)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download:\n  concurrent_downloads: 2\noutput:\n  base_directory: /from/file\n"), 0644))

	t.Setenv("HOME", dir)
	t.Setenv("PIXIVCRAWL_CONCURRENT_DOWNLOADS", "3")

	cfg, err := Load(path, map[string]interface{}{"output": "/from/flag"})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Download.ConcurrentDownloads, "env overrides file")
	assert.Equal(t, "/from/flag", cfg.Output.BaseDirectory, "flag overrides file")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Pixiv.AuthorID = "555"
	cfg.Retry.MaxDelay = 45 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "555", loaded.Pixiv.AuthorID)
	assert.Equal(t, 45*time.Second, loaded.Retry.MaxDelay)
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pixiv.Cookie = "PHPSESSID=12345678_secretsecret"

	red := cfg.Redacted()
	assert.Equal(t, "PHPS...cret", red.Pixiv.Cookie)
	assert.Equal(t, "PHPSESSID=12345678_secretsecret", cfg.Pixiv.Cookie, "original untouched")
}
