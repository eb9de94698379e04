package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"StockScreener/internal/model"
	"StockScreener/internal/strategy"
)

// Job is a scheduled screen run.
type Job struct {
	Name   string            `yaml:"name"`
	Cron   string            `yaml:"cron"`
	Screen string            `yaml:"screen"`
	Cap    float64           `yaml:"cap"`
	Params map[string]string `yaml:"params"`
}

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Upstream struct {
		// Source is "moneycontrol", "nse" or "mock".
		Source            string        `yaml:"source"`
		MoneyControlURL   string        `yaml:"moneycontrol_url"`
		NSEChartURL       string        `yaml:"nse_chart_url"`
		NSELandingURL     string        `yaml:"nse_landing_url"`
		FetchTimeout      time.Duration `yaml:"fetch_timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
		UserAgent         string        `yaml:"user_agent"`
	} `yaml:"upstream"`
	Session struct {
		TTL            time.Duration `yaml:"ttl"`
		MaxRetries     int           `yaml:"max_retries"`
		RetryBackoff   time.Duration `yaml:"retry_backoff"`
		FailureCeiling int           `yaml:"failure_ceiling"`
		StateFile      string        `yaml:"state_file"`
	} `yaml:"session"`
	Scan struct {
		Concurrency int `yaml:"concurrency"`
		// Lookback is the minimum number of candles fetched per symbol.
		Lookback int `yaml:"lookback"`
	} `yaml:"scan"`
	Universe struct {
		MetadataFile string `yaml:"metadata_file"`
		SQLitePath   string `yaml:"sqlite_path"`
	} `yaml:"universe"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		APIURL   string `yaml:"api_url"`
	} `yaml:"telegram"`
	Schedule struct {
		Calendar string `yaml:"calendar"`
		Jobs     []Job  `yaml:"jobs"`
	} `yaml:"schedule"`
	Log struct {
		Level      string `yaml:"level"`
		JSON       bool   `yaml:"json"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SCREENER_ADDR":      &c.Server.Addr,
		"UPSTREAM_SOURCE":    &c.Upstream.Source,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
		"UNIVERSE_FILE":      &c.Universe.MetadataFile,
		"SQLITE_PATH":        &c.Universe.SQLitePath,
		"SESSION_STATE_FILE": &c.Session.StateFile,
		"LOG_FILE":           &c.Log.File,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SESSION_TTL":   &c.Session.TTL,
		"FETCH_TIMEOUT": &c.Upstream.FetchTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("SCAN_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCAN_CONCURRENCY: %w", err)
		}
		c.Scan.Concurrency = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Upstream.Source == "" {
		c.Upstream.Source = "moneycontrol"
	}
	if c.Upstream.FetchTimeout == 0 {
		c.Upstream.FetchTimeout = 10 * time.Second
	}
	if c.Upstream.RequestsPerSecond == 0 {
		c.Upstream.RequestsPerSecond = 20
	}
	if c.Upstream.Burst == 0 {
		c.Upstream.Burst = 5
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 6000 * time.Second
	}
	if c.Session.MaxRetries == 0 {
		c.Session.MaxRetries = 2
	}
	if c.Session.RetryBackoff == 0 {
		c.Session.RetryBackoff = 500 * time.Millisecond
	}
	if c.Session.FailureCeiling == 0 {
		c.Session.FailureCeiling = 5
	}
	if c.Session.StateFile == "" {
		c.Session.StateFile = "data/session.json"
	}
	if c.Scan.Concurrency == 0 {
		c.Scan.Concurrency = 50
	}
	if c.Scan.Lookback == 0 {
		c.Scan.Lookback = 40
	}
	if c.Universe.MetadataFile == "" {
		c.Universe.MetadataFile = "data/symbolMetadata.json"
	}
	if c.Schedule.Calendar == "" {
		c.Schedule.Calendar = "xnse"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Upstream.Source {
	case "moneycontrol", "nse", "mock":
	default:
		return fmt.Errorf("%w: upstream.source must be moneycontrol, nse or mock, got %q", model.ErrValidation, c.Upstream.Source)
	}
	if c.Upstream.FetchTimeout <= 0 {
		return fmt.Errorf("%w: upstream.fetch_timeout must be positive", model.ErrValidation)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session.ttl must be positive", model.ErrValidation)
	}
	if c.Session.MaxRetries < 0 {
		return fmt.Errorf("%w: session.max_retries must not be negative", model.ErrValidation)
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("%w: scan.concurrency must be positive", model.ErrValidation)
	}
	if c.Scan.Lookback <= 0 {
		return fmt.Errorf("%w: scan.lookback must be positive", model.ErrValidation)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	seen := map[string]bool{}
	for i, job := range c.Schedule.Jobs {
		if job.Name == "" || job.Screen == "" {
			return fmt.Errorf("%w: schedule.jobs[%d]: name and screen are required", model.ErrValidation, i)
		}
		if seen[job.Name] {
			return fmt.Errorf("%w: schedule.jobs[%d]: duplicate name %q", model.ErrValidation, i, job.Name)
		}
		seen[job.Name] = true
		if _, err := parser.Parse(job.Cron); err != nil {
			return fmt.Errorf("%w: schedule.jobs[%d] %s: cron %q: %v", model.ErrValidation, i, job.Name, job.Cron, err)
		}
		if _, err := strategy.Build(job.Screen, job.Params); err != nil {
			return fmt.Errorf("schedule.jobs[%d] %s: %w", i, job.Name, err)
		}
	}
	if len(c.Schedule.Jobs) > 0 && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("%w: telegram.bot_token and telegram.chat_id are required for scheduled jobs", model.ErrValidation)
	}
	return nil
}

// TelegramEnabled reports whether notifications can be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
