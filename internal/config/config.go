package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DataDir         string `env:"DATA_DIR" envDefault:"data"`
	DBPath          string `env:"DB_PATH"`
	DefaultRegion   string `env:"DEFAULT_REGION" envDefault:"US"`
	HostDisplayName string `env:"HOST_DISPLAY_NAME" envDefault:"The host"`
	BotName         string `env:"BOT_NAME" envDefault:"Max"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	HTTPAddr   string `env:"HTTP_ADDR" envDefault:":8080"`
	APIToken   string `env:"API_TOKEN"`
	CLIEnabled bool   `env:"CLI_ENABLED" envDefault:"true"`

	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"claude-haiku-4-5"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"10s"`

	Expiry ExpiryConfig
	Social SocialConfig

	Browser BrowserConfig

	LocationDropDelay time.Duration `env:"LOCATION_DROP_DELAY" envDefault:"5m"`
}

// ExpiryConfig controls the invite and plus-one windows.
type ExpiryConfig struct {
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	InviteWarningAfter  time.Duration `env:"INVITE_WARNING_AFTER" envDefault:"45m"`
	InviteExpireAfter   time.Duration `env:"INVITE_EXPIRE_AFTER" envDefault:"60m"`
	PlusOneWarningAfter time.Duration `env:"PLUS_ONE_WARNING_AFTER" envDefault:"45m"`
	PlusOneExpireAfter  time.Duration `env:"PLUS_ONE_EXPIRE_AFTER" envDefault:"60m"`
	// Guests whose anchor timestamp predates PolicySince are left alone.
	PolicySince time.Time `env:"EXPIRY_POLICY_SINCE"`
}

// SocialConfig controls the social-graph worker.
type SocialConfig struct {
	Enabled        bool          `env:"SOCIAL_ENABLED" envDefault:"true"`
	QueueSize      int           `env:"SOCIAL_QUEUE_SIZE" envDefault:"64"`
	IdleTimeout    time.Duration `env:"SOCIAL_IDLE_TIMEOUT" envDefault:"60s"`
	RescanCooldown time.Duration `env:"SOCIAL_RESCAN_COOLDOWN" envDefault:"30m"`
	ScrapeDelay    time.Duration `env:"SOCIAL_SCRAPE_DELAY" envDefault:"5s"`
	ScrapeJitter   time.Duration `env:"SOCIAL_SCRAPE_JITTER" envDefault:"5s"`
}

// BrowserConfig controls the automation browser session.
type BrowserConfig struct {
	ProfileDir string        `env:"BROWSER_PROFILE_DIR"`
	Headless   bool          `env:"BROWSER_HEADLESS" envDefault:"true"`
	NavDelay   time.Duration `env:"BROWSER_NAV_DELAY" envDefault:"3s"`
	NavJitter  time.Duration `env:"BROWSER_NAV_JITTER" envDefault:"2s"`
	Timeout    time.Duration `env:"BROWSER_TIMEOUT" envDefault:"45s"`
}

// LoadConfig loads configuration from an optional .env file and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "doorman.db")
	}
	if cfg.Browser.ProfileDir == "" {
		cfg.Browser.ProfileDir = filepath.Join(cfg.DataDir, "instagram-profile")
	}
	if cfg.Expiry.InviteWarningAfter >= cfg.Expiry.InviteExpireAfter {
		return nil, fmt.Errorf("INVITE_WARNING_AFTER must be shorter than INVITE_EXPIRE_AFTER")
	}
	if cfg.Expiry.PlusOneWarningAfter >= cfg.Expiry.PlusOneExpireAfter {
		return nil, fmt.Errorf("PLUS_ONE_WARNING_AFTER must be shorter than PLUS_ONE_EXPIRE_AFTER")
	}
	if cfg.Social.QueueSize <= 0 {
		cfg.Social.QueueSize = 64
	}
	return cfg, nil
}
