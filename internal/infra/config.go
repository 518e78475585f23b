package infra

import (
	"fmt"
	"os"
	"time"

	"indexwatch/internal/domain"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds everything read once at startup. Secrets never live in the
// YAML file; they come from the environment via Credentials.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Watch struct {
		IntervalSeconds   int `yaml:"interval_seconds"`
		BackoffSeconds    int `yaml:"backoff_seconds"`
		LogCapacity       int `yaml:"log_capacity"`
		NotifyEveryNTicks int `yaml:"notify_every_n_ticks"`
	} `yaml:"watch"`

	Market struct {
		WindowOpen       string   `yaml:"window_open"`
		WindowClose      string   `yaml:"window_close"`
		Weekdays         []string `yaml:"weekdays"`
		UTCOffsetMinutes int      `yaml:"utc_offset_minutes"`
		ZoneName         string   `yaml:"zone_name"`
	} `yaml:"market"`

	Dhan struct {
		RestURL string `yaml:"rest_url"`
		// Opaque instrument reference, passed to the provider verbatim.
		SecurityID      string `yaml:"security_id"`
		ExchangeSegment string `yaml:"exchange_segment"`
		RateLimitPerMin int    `yaml:"rate_limit_per_min"`
		Feed            struct {
			Enabled           bool   `yaml:"enabled"`
			WSURL             string `yaml:"ws_url"`
			StaleAfterSeconds int    `yaml:"stale_after_seconds"`
		} `yaml:"feed"`
	} `yaml:"dhan"`

	Telegram struct {
		APIURL             string `yaml:"api_url"`
		ChatID             int64  `yaml:"chat_id"`
		PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
		RateLimitPerMin    int    `yaml:"rate_limit_per_min"`
	} `yaml:"telegram"`

	LLM struct {
		BaseURL   string `yaml:"base_url"`
		Model     string `yaml:"model"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"llm"`

	Assistant struct {
		HistoryTurns   int      `yaml:"history_turns"`
		ContextWindow  int      `yaml:"context_window"`
		DetailKeywords []string `yaml:"detail_keywords"`
	} `yaml:"assistant"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Credentials are read from the environment (a .env file is honored, as
// with the dotenv convention the Dhan tooling uses).
type Credentials struct {
	DhanClientID     string `envconfig:"DHAN_CLIENT_ID" required:"true"`
	DhanAccessToken  string `envconfig:"DHAN_ACCESS_TOKEN" required:"true"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	LLMAPIKey        string `envconfig:"LLM_API_KEY"`
}

// LoadConfig reads and validates the YAML configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadCredentials loads a .env file if present, then reads credentials
// from the environment. A missing Dhan credential is a fatal init error.
func LoadCredentials() (*Credentials, error) {
	_ = godotenv.Load()

	var creds Credentials
	if err := envconfig.Process("", &creds); err != nil {
		return nil, &domain.InitError{Field: "credentials", Err: err}
	}
	return &creds, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "indexwatch"
	}
	if c.Watch.IntervalSeconds <= 0 {
		c.Watch.IntervalSeconds = 300
	}
	if c.Watch.BackoffSeconds <= 0 {
		c.Watch.BackoffSeconds = 60
	}
	if c.Watch.LogCapacity <= 0 {
		c.Watch.LogCapacity = 100
	}
	if c.Watch.NotifyEveryNTicks <= 0 {
		c.Watch.NotifyEveryNTicks = 12
	}
	if c.Market.WindowOpen == "" {
		c.Market.WindowOpen = "09:15"
	}
	if c.Market.WindowClose == "" {
		c.Market.WindowClose = "15:30"
	}
	if c.Market.ZoneName == "" {
		c.Market.ZoneName = "IST"
		if c.Market.UTCOffsetMinutes == 0 {
			c.Market.UTCOffsetMinutes = 330
		}
	}
	if c.Dhan.RestURL == "" {
		c.Dhan.RestURL = "https://api.dhan.co/v2"
	}
	if c.Dhan.RateLimitPerMin <= 0 {
		c.Dhan.RateLimitPerMin = 10
	}
	if c.Dhan.Feed.StaleAfterSeconds <= 0 {
		c.Dhan.Feed.StaleAfterSeconds = 30
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Telegram.PollTimeoutSeconds <= 0 {
		c.Telegram.PollTimeoutSeconds = 30
	}
	if c.Telegram.RateLimitPerMin <= 0 {
		c.Telegram.RateLimitPerMin = 20
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 512
	}
	if c.Assistant.HistoryTurns <= 0 {
		c.Assistant.HistoryTurns = 10
	}
	if c.Assistant.ContextWindow <= 0 {
		c.Assistant.ContextWindow = 10
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Dhan.SecurityID == "" {
		return fmt.Errorf("dhan security_id is required")
	}
	if c.Dhan.ExchangeSegment == "" {
		return fmt.Errorf("dhan exchange_segment is required")
	}
	if c.Dhan.Feed.Enabled && c.Dhan.Feed.WSURL == "" {
		return fmt.Errorf("dhan feed enabled without ws_url")
	}
	for _, day := range c.Market.Weekdays {
		if _, err := domain.ParseWeekday(day); err != nil {
			return err
		}
	}
	if _, err := c.TradingHours(); err != nil {
		return err
	}
	return nil
}

// Interval returns the nominal tick sleep.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Watch.IntervalSeconds) * time.Second
}

// Backoff returns the shortened sleep used after a tick-level error.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Watch.BackoffSeconds) * time.Second
}

// TradingHours builds the market-hours gate from the configured window.
func (c *Config) TradingHours() (*domain.TradingHours, error) {
	loc := time.FixedZone(c.Market.ZoneName, c.Market.UTCOffsetMinutes*60)
	var days []time.Weekday
	for _, s := range c.Market.Weekdays {
		d, err := domain.ParseWeekday(s)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return domain.NewTradingHours(c.Market.WindowOpen, c.Market.WindowClose, days, loc)
}
