package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MaxConcurrentDownloads bounds the worker pool so the crawl stays polite.
	MaxConcurrentDownloads = 8

	// DefaultProxyPort is used when a proxy is configured without a port.
	DefaultProxyPort = 7890

	envPrefix = "PIXIVCRAWL_"
)

var authorIDPattern = regexp.MustCompile(`^[0-9]+$`)

// Config holds all configuration options for the crawler
type Config struct {
	Pixiv     PixivConfig     `yaml:"pixiv" json:"pixiv"`
	Network   NetworkConfig   `yaml:"network" json:"network"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	State     StateConfig     `yaml:"state" json:"state"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PixivConfig holds the session credential and the crawl target
type PixivConfig struct {
	Cookie    string `yaml:"cookie" json:"cookie"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	AuthorID  string `yaml:"author_id" json:"author_id"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	Referer   string `yaml:"referer" json:"referer"`
}

// NetworkConfig holds transport settings
type NetworkConfig struct {
	// Proxy accepts host, host:port or a URL with http, https or socks5 scheme
	Proxy   string        `yaml:"proxy" json:"proxy"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig paces metadata API calls
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory       string `yaml:"base_directory" json:"base_directory"`
	CreateAuthorFolders bool   `yaml:"create_author_folders" json:"create_author_folders"`
	WriteMetadata       bool   `yaml:"write_metadata" json:"write_metadata"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	QueueSize           int           `yaml:"queue_size" json:"queue_size"`
	PageSize            int           `yaml:"page_size" json:"page_size"`
	MetadataOnly        bool          `yaml:"metadata_only" json:"metadata_only"`
	RunTimeout          time.Duration `yaml:"run_timeout" json:"run_timeout"`
}

// RetryConfig controls the bounded retry of Transient failures
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// StateConfig selects where crawl state is persisted
type StateConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	Directory string `yaml:"directory" json:"directory"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	Console    bool   `yaml:"console" json:"console"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pixiv: PixivConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			BaseURL:   "https://www.pixiv.net",
			Referer:   "https://www.pixiv.net/",
		},
		Network: NetworkConfig{
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Output: OutputConfig{
			BaseDirectory:       "./downloads",
			CreateAuthorFolders: true,
			WriteMetadata:       true,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			QueueSize:           8,
			PageSize:            48,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		State: StateConfig{
			Backend: "json",
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	setString("COOKIE", &c.Pixiv.Cookie)
	setString("USER_AGENT", &c.Pixiv.UserAgent)
	setString("AUTHOR_ID", &c.Pixiv.AuthorID)
	setString("BASE_URL", &c.Pixiv.BaseURL)
	setString("PROXY", &c.Network.Proxy)
	setDuration("TIMEOUT", &c.Network.Timeout)
	setInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setString("OUTPUT_DIR", &c.Output.BaseDirectory)
	setInt("CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	setBool("METADATA_ONLY", &c.Download.MetadataOnly)
	setDuration("RUN_TIMEOUT", &c.Download.RunTimeout)
	setInt("MAX_RETRIES", &c.Retry.MaxAttempts)
	setString("STATE_BACKEND", &c.State.Backend)
	setString("STATE_DIR", &c.State.Directory)
	setString("METRICS_ADDR", &c.Metrics.Address)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in the standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".pixivcrawl.yaml",
		".pixivcrawl.yml",
		filepath.Join(home, ".config", "pixivcrawl", "config.yaml"),
		filepath.Join(home, ".config", "pixivcrawl", "config.yml"),
		filepath.Join(home, ".pixivcrawl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultConfigPath is where `config init` writes a new file
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "pixivcrawl", "config.yaml")
}

// Validate checks if the configuration is valid. Credentials are checked
// separately by ValidateCredentials because they may come from the
// credential store after loading.
func (c *Config) Validate() error {
	var errs []error

	if c.Pixiv.BaseURL == "" {
		errs = append(errs, errors.New("pixiv base URL is required"))
	}
	if c.Pixiv.AuthorID != "" && !authorIDPattern.MatchString(c.Pixiv.AuthorID) {
		errs = append(errs, fmt.Errorf("author ID must be numeric, got %q", c.Pixiv.AuthorID))
	}

	if c.Network.Timeout <= 0 {
		errs = append(errs, errors.New("network timeout must be positive"))
	}
	if c.Network.Proxy != "" {
		if _, err := ProxyURL(c.Network.Proxy); err != nil {
			errs = append(errs, err)
		}
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.BurstSize < 0 {
		errs = append(errs, errors.New("burst size cannot be negative"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > MaxConcurrentDownloads {
		errs = append(errs, fmt.Errorf("concurrent downloads should not exceed %d", MaxConcurrentDownloads))
	}
	if c.Download.QueueSize < 0 {
		errs = append(errs, errors.New("queue size cannot be negative"))
	}
	if c.Download.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Download.RunTimeout < 0 {
		errs = append(errs, errors.New("run timeout cannot be negative"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("retry base delay cannot be negative"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	switch strings.ToLower(c.State.Backend) {
	case "json", "bolt":
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q (want json or bolt)", c.State.Backend))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics address is required when metrics are enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "off": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks the cookie and crawl target needed for a crawl
func (c *Config) ValidateCredentials() error {
	var errs []error
	if strings.TrimSpace(c.Pixiv.Cookie) == "" {
		errs = append(errs, errors.New("pixiv cookie is required"))
	} else if len(ParseCookie(c.Pixiv.Cookie)) == 0 {
		errs = append(errs, errors.New("pixiv cookie has no name=value pairs"))
	}
	if c.Pixiv.AuthorID == "" {
		errs = append(errs, errors.New("author ID is required"))
	} else if !authorIDPattern.MatchString(c.Pixiv.AuthorID) {
		errs = append(errs, fmt.Errorf("author ID must be numeric, got %q", c.Pixiv.AuthorID))
	}
	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["cookie"].(string); ok && v != "" {
		c.Pixiv.Cookie = v
	}
	if v, ok := flags["author"].(string); ok && v != "" {
		c.Pixiv.AuthorID = v
	}
	if v, ok := flags["proxy"].(string); ok && v != "" {
		c.Network.Proxy = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.Network.Timeout = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.Download.PageSize = v
	}
	if v, ok := flags["metadata-only"].(bool); ok {
		c.Download.MetadataOnly = v
	}
	if v, ok := flags["run-timeout"].(time.Duration); ok {
		c.Download.RunTimeout = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v >= 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["state-backend"].(string); ok && v != "" {
		c.State.Backend = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pixivcrawl.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Redacted returns a copy safe to print, with the cookie masked
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Pixiv.Cookie = MaskSecret(c.Pixiv.Cookie)
	return &cp
}

// MaskSecret masks all but the first 4 and last 4 characters of a string
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
