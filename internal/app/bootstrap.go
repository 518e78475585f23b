package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"indexwatch/internal/domain"
	"indexwatch/internal/engine"
	"indexwatch/internal/infra"
	"indexwatch/internal/infra/dhan"
	"indexwatch/internal/infra/llm"
	"indexwatch/internal/infra/telegram"
	"indexwatch/internal/service"
)

// Bootstrap orchestrates the application startup sequence: config,
// logger, credentials, collaborator clients. Any failure here is fatal;
// the watcher never enters the running state half-wired.
type Bootstrap struct {
	Config      *infra.Config
	Credentials *infra.Credentials

	Quotes   *dhan.Client
	Feed     *dhan.Feed
	Notifier *telegram.Notifier
	Listener *telegram.Listener
	Backend  *llm.Client
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("Bootstrapping indexwatch...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	// 3. Credentials (env / .env). Missing Dhan credentials are fatal.
	creds, err := infra.LoadCredentials()
	if err != nil {
		return err
	}
	b.Credentials = creds

	// 4. Optional live feed
	if cfg.Dhan.Feed.Enabled {
		b.Feed = dhan.NewFeed(dhan.FeedOptions{
			WSURL:           cfg.Dhan.Feed.WSURL,
			AccessToken:     creds.DhanAccessToken,
			ClientID:        creds.DhanClientID,
			SecurityID:      cfg.Dhan.SecurityID,
			ExchangeSegment: cfg.Dhan.ExchangeSegment,
			StaleAfter:      time.Duration(cfg.Dhan.Feed.StaleAfterSeconds) * time.Second,
		})
	}

	// 5. Quote client
	quotes, err := dhan.NewClient(dhan.Options{
		BaseURL:         cfg.Dhan.RestURL,
		ClientID:        creds.DhanClientID,
		AccessToken:     creds.DhanAccessToken,
		SecurityID:      cfg.Dhan.SecurityID,
		ExchangeSegment: cfg.Dhan.ExchangeSegment,
		RateLimitPerMin: cfg.Dhan.RateLimitPerMin,
		Feed:            b.Feed,
	})
	if err != nil {
		return err
	}
	b.Quotes = quotes

	// 6. Chat surface (optional: without a bot token the watcher runs
	// headless and notifications report NotConfigured)
	b.Notifier = telegram.NewNotifier(telegram.NotifierOptions{
		APIURL:          cfg.Telegram.APIURL,
		Token:           creds.TelegramBotToken,
		DefaultChatID:   cfg.Telegram.ChatID,
		RateLimitPerMin: cfg.Telegram.RateLimitPerMin,
	})
	b.Listener = telegram.NewListener(telegram.ListenerOptions{
		APIURL:             cfg.Telegram.APIURL,
		Token:              creds.TelegramBotToken,
		PollTimeoutSeconds: cfg.Telegram.PollTimeoutSeconds,
	})

	// 7. Completion backend (optional: without a key the assistant
	// answers with the fixed apology)
	b.Backend = llm.NewClient(llm.Options{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    creds.LLMAPIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	slog.Info("Bootstrap complete",
		slog.String("instrument", fmt.Sprintf("%s/%s", cfg.Dhan.ExchangeSegment, cfg.Dhan.SecurityID)),
		slog.Bool("feed", cfg.Dhan.Feed.Enabled),
		slog.Bool("telegram", creds.TelegramBotToken != ""),
		slog.Bool("assistant", creds.LLMAPIKey != ""),
	)
	return nil
}

// BuildOrchestrator wires the engine from the initialized collaborators.
func (b *Bootstrap) BuildOrchestrator() (*engine.Orchestrator, error) {
	cfg := b.Config

	hours, err := cfg.TradingHours()
	if err != nil {
		return nil, &domain.InitError{Field: "market window", Err: err}
	}

	assistant := service.NewAssistant(b.Backend, cfg.Assistant.HistoryTurns, cfg.Assistant.DetailKeywords)

	return engine.New(
		engine.Options{
			AppName:           cfg.App.Name,
			Interval:          cfg.Interval(),
			Backoff:           cfg.Backoff(),
			NotifyEveryNTicks: cfg.Watch.NotifyEveryNTicks,
			ContextWindow:     cfg.Assistant.ContextWindow,
		},
		b.Quotes,
		b.Notifier,
		assistant,
		hours,
		service.NewHistory(cfg.Watch.LogCapacity),
		service.NewStateStore(),
		service.NewAlertBook(),
		b.Listener.Messages(),
	), nil
}

// Start brings up the background workers (live feed, inbound listener).
func (b *Bootstrap) Start(ctx context.Context) {
	if b.Feed != nil {
		if err := b.Feed.Connect(ctx); err != nil {
			slog.Warn("Live feed failed to start, REST fetches only", slog.Any("error", err))
		}
	}
	go b.Listener.Run(ctx)
}

// Stop tears down background workers.
func (b *Bootstrap) Stop() {
	if b.Feed != nil {
		b.Feed.Disconnect()
	}
}
