package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Platform    PlatformConfig  `toml:"platform"`
	Auth        AuthConfig      `toml:"auth"`
	Refresh     RefreshConfig   `toml:"refresh"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// PlatformConfig describes the remote ad platform console and API endpoints.
type PlatformConfig struct {
	ConsoleURL   string `toml:"console_url" validate:"required,url"`  // Admin console base URL
	LoginURL     string `toml:"login_url" validate:"required,url"`    // Interactive login page
	APIURL       string `toml:"api_url" validate:"required,url"`      // Metrics API base URL
	IdentityPath string `toml:"identity_path" validate:"required"`    // Identity probe path on the console
	SearchPath   string `toml:"search_path" validate:"required"`      // Account-search page path on the console
	CookieDomain string `toml:"cookie_domain" validate:"required"`    // Domain cookies must match for API calls
	UserAgent    string `toml:"user_agent"`                           // User agent for outbound requests
	PageSize     int    `toml:"page_size" validate:"min=1,max=500"`   // Metrics API page size
	MaxPages     int    `toml:"max_pages" validate:"min=1,max=1000"`  // Bound on metrics pagination
	Category     string `toml:"category"`                             // Account-category filter in the console search
}

// AuthConfig bounds the interactive login and impersonation flows.
type AuthConfig struct {
	LoginPollInterval    time.Duration `toml:"login_poll_interval"`    // Interval between identity probes during login
	LoginPollAttempts    int           `toml:"login_poll_attempts"`    // Attempts before the login times out
	ImpersonationTimeout time.Duration `toml:"impersonation_timeout"`  // Wait bound for the impersonated session
	Headless             bool          `toml:"headless"`               // Run the browser headless (tests only; login needs a visible window)
}

// RefreshConfig drives the periodic metrics sweep.
type RefreshConfig struct {
	Schedule     string        `toml:"schedule"`      // Cron expression for the sweep
	FetchTimeout time.Duration `toml:"fetch_timeout"` // Per-account metrics fetch timeout
}

type WebSocketConfig struct {
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // Per-event-type minimum broadcast interval
}

// NewDefaultConfig returns a config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8571,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/adwatch",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Platform: PlatformConfig{
			ConsoleURL:   "https://console.adplatform.example",
			LoginURL:     "https://console.adplatform.example/login",
			APIURL:       "https://api.adplatform.example",
			IdentityPath: "/api/identity/me",
			SearchPath:   "/accounts/search",
			CookieDomain: "api.adplatform.example",
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			PageSize:     50,
			MaxPages:     20,
			Category:     "advertiser",
		},
		Auth: AuthConfig{
			LoginPollInterval:    10 * time.Second,
			LoginPollAttempts:    30,
			ImpersonationTimeout: 15 * time.Second,
		},
		Refresh: RefreshConfig{
			Schedule:     "*/1 * * * *",
			FetchTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ThrottleIntervals: map[string]string{
				"auth_progress":   "250ms",
				"metrics_updated": "1s",
			},
		},
	}
}

// LoadFromFiles loads configuration from one or more TOML files, later files
// overriding earlier ones, then applies environment overrides and validates.
// With no paths the defaults are returned (still env-overridden, validated).
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints and the refresh cron expression.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Refresh.Schedule != "" {
		if _, err := cron.ParseStandard(c.Refresh.Schedule); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", c.Refresh.Schedule, err)
		}
	}

	if c.Auth.LoginPollAttempts <= 0 {
		return fmt.Errorf("auth.login_poll_attempts must be positive")
	}
	if c.Auth.LoginPollInterval <= 0 {
		return fmt.Errorf("auth.login_poll_interval must be positive")
	}
	if c.Auth.ImpersonationTimeout <= 0 {
		return fmt.Errorf("auth.impersonation_timeout must be positive")
	}

	return nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ADWATCH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("ADWATCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ADWATCH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("ADWATCH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("ADWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ADWATCH_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		config.Logging.Output = parts
	}

	if consoleURL := os.Getenv("ADWATCH_CONSOLE_URL"); consoleURL != "" {
		config.Platform.ConsoleURL = consoleURL
	}
	if apiURL := os.Getenv("ADWATCH_API_URL"); apiURL != "" {
		config.Platform.APIURL = apiURL
	}
	if cookieDomain := os.Getenv("ADWATCH_COOKIE_DOMAIN"); cookieDomain != "" {
		config.Platform.CookieDomain = cookieDomain
	}

	if schedule := os.Getenv("ADWATCH_REFRESH_SCHEDULE"); schedule != "" {
		config.Refresh.Schedule = schedule
	}
}

// IsDevelopment returns true when running in a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
