// Package config loads tool configuration from defaults, a YAML file,
// environment variables and command-line flags, in that order of precedence
// (later sources win).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the downloader.
type Config struct {
	Portal    PortalConfig    `yaml:"portal" json:"portal"`
	Solver    SolverConfig    `yaml:"solver" json:"solver"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Accounts  AccountsConfig  `yaml:"accounts" json:"accounts"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"schedule"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PortalConfig holds portal connection settings.
type PortalConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SolverConfig holds CAPTCHA solving settings. OCREndpoint points at a
// ddddocr-compatible HTTP sidecar; when empty, login escalates straight to
// the human relay.
type SolverConfig struct {
	OCREndpoint     string        `yaml:"ocr_endpoint" json:"ocr_endpoint"`
	OCRTimeout      time.Duration `yaml:"ocr_timeout" json:"ocr_timeout"`
	MaxLoginRetries int           `yaml:"max_login_retries" json:"max_login_retries"`
}

// OutputConfig holds report output settings.
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// AccountsConfig locates the account roster file.
type AccountsConfig struct {
	RosterFile string `yaml:"roster_file" json:"roster_file"`
}

// RateLimitConfig paces portal requests between tasks.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LedgerConfig controls the task outcome ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// ScheduleConfig holds the cron expression for unattended runs.
type ScheduleConfig struct {
	Cron string `yaml:"cron" json:"cron"`
}

// LoggingConfig mirrors logger.Config so the config file stays one document.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:        "https://investorservice.cfmmc.com",
			UserAgent:      "Mozilla/5.0 (Windows NT 6.1; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/72.0.3626.121 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		Solver: SolverConfig{
			OCRTimeout:      15 * time.Second,
			MaxLoginRetries: 3,
		},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
		},
		Accounts: AccountsConfig{
			RosterFile: "accounts.yaml",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    "cfmmcdl.db",
		},
		Schedule: ScheduleConfig{
			Cron: "0 18 * * 1-5",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFile merges a YAML config file into c. An empty path searches the
// standard locations and is not an error when nothing is found.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
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

func findConfigFile() string {
	locations := []string{
		".cfmmcdl.yaml",
		".cfmmcdl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "cfmmcdl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".cfmmcdl.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv merges CFMMCDL_* environment variables into c.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("CFMMCDL_BASE_URL"); v != "" {
		c.Portal.BaseURL = v
	}
	if v := os.Getenv("CFMMCDL_USER_AGENT"); v != "" {
		c.Portal.UserAgent = v
	}
	if v := os.Getenv("CFMMCDL_OCR_ENDPOINT"); v != "" {
		c.Solver.OCREndpoint = v
	}
	if v := os.Getenv("CFMMCDL_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("CFMMCDL_ROSTER_FILE"); v != "" {
		c.Accounts.RosterFile = v
	}
	if v := os.Getenv("CFMMCDL_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("CFMMCDL_MAX_LOGIN_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Solver.MaxLoginRetries = n
		}
	}
	if v := os.Getenv("CFMMCDL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// MergeFlags merges resolved command-line flag values into c. Only keys
// present in the map are applied.
func (c *Config) MergeFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["roster"].(string); ok && v != "" {
		c.Accounts.RosterFile = v
	}
	if v, ok := flags["ocr-endpoint"].(string); ok && v != "" {
		c.Solver.OCREndpoint = v
	}
	if v, ok := flags["max-login-retries"].(int); ok && v > 0 {
		c.Solver.MaxLoginRetries = v
	}
	if v, ok := flags["requests-per-minute"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Portal.BaseURL == "" {
		errs = append(errs, errors.New("portal base URL is required"))
	}
	if !strings.HasPrefix(c.Portal.BaseURL, "http://") && !strings.HasPrefix(c.Portal.BaseURL, "https://") {
		errs = append(errs, errors.New("portal base URL must be http(s)"))
	}
	if c.Portal.RequestTimeout <= 0 {
		errs = append(errs, errors.New("portal request timeout must be positive"))
	}
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Accounts.RosterFile == "" {
		errs = append(errs, errors.New("account roster file is required"))
	}
	if c.Solver.MaxLoginRetries <= 0 {
		errs = append(errs, errors.New("max login retries must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, errors.New("invalid log level"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Load assembles configuration from all sources.
// Precedence: flags > environment (incl. .env) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".cfmmcdl.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, err
	}
	cfg.LoadFromEnv()
	cfg.MergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating directories as
// needed. Used by `cfmmcdl config init`.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
