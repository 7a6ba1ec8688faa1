package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	OCR       OCRConfig       `yaml:"ocr"`
	Portal    PortalConfig    `yaml:"portal"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	Mode            string  `yaml:"mode"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// SchedulerConfig controls the polling state machine.
type SchedulerConfig struct {
	FailureThreshold int  `yaml:"failure_threshold"`
	RunOnStart       bool `yaml:"run_on_start"`
}

// EngineConfig bounds every step of a check cycle.
type EngineConfig struct {
	BookingEnabled        bool          `yaml:"booking_enabled"`
	SessionTimeoutSeconds int           `yaml:"session_timeout_seconds"`
	ScanTimeoutSeconds    int           `yaml:"scan_timeout_seconds"`
	CaptchaTimeoutSeconds int           `yaml:"captcha_timeout_seconds"`
	BookingTimeoutSeconds int           `yaml:"booking_timeout_seconds"`
	CloseTimeoutSeconds   int           `yaml:"close_timeout_seconds"`
	SessionTimeout        time.Duration `yaml:"-"`
	ScanTimeout           time.Duration `yaml:"-"`
	CaptchaTimeout        time.Duration `yaml:"-"`
	BookingTimeout        time.Duration `yaml:"-"`
	CloseTimeout          time.Duration `yaml:"-"`
}

// CaptchaConfig tunes the tile resolver.
type CaptchaConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	Workers       int     `yaml:"workers"`
	Enhanced      bool    `yaml:"enhanced"`
}

// OCRConfig points at the text recognition service.
type OCRConfig struct {
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
}

// PortalConfig points at the browser automation sidecar that drives the portal.
// TimeoutSeconds optionally caps a single request; zero leaves requests bounded
// only by the engine step timeouts.
type PortalConfig struct {
	URL            string            `yaml:"url"`
	HTTPProxy      string            `yaml:"http_proxy"`
	Headers        map[string]string `yaml:"headers"`
	RequestsPerSec float64           `yaml:"requests_per_sec"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	cfg.setDefaults()
	return &cfg, nil
}

// applyEnv overrides deployment-specific values from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("VISAD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VISAD_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("VISAD_PORTAL_URL"); v != "" {
		cfg.Portal.URL = v
	}
	if v := os.Getenv("VISAD_OCR_URL"); v != "" {
		cfg.OCR.URL = v
	}
	if v := os.Getenv("VISAD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8001
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 2
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Scheduler.FailureThreshold <= 0 {
		cfg.Scheduler.FailureThreshold = 5
	}

	cfg.Engine.SessionTimeout = seconds(cfg.Engine.SessionTimeoutSeconds, 60)
	cfg.Engine.ScanTimeout = seconds(cfg.Engine.ScanTimeoutSeconds, 60)
	cfg.Engine.CaptchaTimeout = seconds(cfg.Engine.CaptchaTimeoutSeconds, 45)
	cfg.Engine.BookingTimeout = seconds(cfg.Engine.BookingTimeoutSeconds, 90)
	cfg.Engine.CloseTimeout = seconds(cfg.Engine.CloseTimeoutSeconds, 15)

	if cfg.Captcha.MinConfidence <= 0 {
		cfg.Captcha.MinConfidence = 0.6
	}
	if cfg.Captcha.Workers <= 0 {
		cfg.Captcha.Workers = 4
	}

	cfg.OCR.Timeout = seconds(cfg.OCR.TimeoutSeconds, 10)
	// Each engine step bounds portal calls with its own context. The client
	// timeout is only a backstop and never undercuts the longest step.
	cfg.Portal.Timeout = 0
	if cfg.Portal.TimeoutSeconds > 0 {
		cfg.Portal.Timeout = max(seconds(cfg.Portal.TimeoutSeconds, 0), cfg.Engine.longestStep())
	}
	if cfg.Portal.RequestsPerSec <= 0 {
		cfg.Portal.RequestsPerSec = 2
	}
}

func (e EngineConfig) longestStep() time.Duration {
	return max(e.SessionTimeout, e.ScanTimeout, e.CaptchaTimeout, e.BookingTimeout, e.CloseTimeout)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
