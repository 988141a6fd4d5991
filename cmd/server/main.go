package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lojf/subgate/internal/bot"
	"github.com/lojf/subgate/internal/config"
	"github.com/lojf/subgate/internal/db"
	"github.com/lojf/subgate/internal/flows"
	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/metrics"
	"github.com/lojf/subgate/internal/reconcile"
	"github.com/lojf/subgate/internal/services"
	"github.com/lojf/subgate/internal/state"
	"github.com/lojf/subgate/internal/web"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open ledger")
	}

	m := metrics.New()
	tg, err := gateway.NewTelegram(cfg.BotToken, cfg.MaxRPS, logger, m.RecordFloodWait)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to telegram")
	}
	_, username := tg.Self()

	loc := cfg.Location()
	ledger := services.NewLedger(conn, logger, services.Options{
		Location:         loc,
		CodeTTL:          cfg.CodeTTL,
		DefaultGrantDays: cfg.DefaultGrantDays,
	})
	conversations := state.New(logger, state.WithSizeObserver(m.SetConversations))
	status := reconcile.NewStatusChecker(tg, logger)
	sweeper := reconcile.NewSweeper(ledger, tg, status,
		reconcile.Recipients{Ledger: ledger, Fallback: cfg.AdminIDs},
		m, cfg.RemindWindowDays, logger)

	dispatcher := bot.NewDispatcher(bot.Deps{
		Config:   cfg,
		Ledger:   ledger,
		Gateway:  tg,
		Flows:    flows.New(ledger, tg, conversations, logger),
		Join:     reconcile.NewJoin(ledger, tg, m, logger),
		Sweeper:  sweeper,
		Status:   status,
		Metrics:  m,
		Username: username,
	}, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("addr", cfg.Addr).
		Str("db_driver", cfg.DBDriver).
		Str("timezone", loc.String()).
		Bool("webhook", cfg.WebhookURL != "").
		Bool("sweep_enabled", cfg.SweepEnabled).
		Msg("starting subgate")

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { conversations.RunJanitor(ctx, cfg.ConversationIdleTimeout, time.Minute) })
	if cfg.SweepEnabled {
		spawn(func() { sweeper.Schedule(ctx, loc, cfg.SweepInterval) })
	}

	var updates <-chan tgbotapi.Update
	var webhookUpdates chan tgbotapi.Update
	if cfg.WebhookURL != "" {
		webhookUpdates = make(chan tgbotapi.Update, 64)
		updates = webhookUpdates
		if err := tg.SetWebhook(ctx, webhookLink(cfg.WebhookURL, cfg.WebhookSecret)); err != nil {
			logger.Fatal().Err(err).Msg("failed to register webhook")
		}
	} else {
		if err := tg.SetWebhook(ctx, ""); err != nil {
			logger.Warn().Err(err).Msg("failed to clear webhook")
		}
		updates = tg.Updates(ctx)
	}
	spawn(func() { dispatcher.Run(ctx, updates) })

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.Router(web.Deps{
			Metrics:       m.Handler(),
			Updates:       webhookUpdates,
			WebhookSecret: cfg.WebhookSecret,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	spawn(func() {
		logger.Info().Str("addr", cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	})

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	wg.Wait()

	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("stopped")
}

// webhookLink appends the shared secret as a query parameter; the router
// checks it on every post.
func webhookLink(base, secret string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	return u.String()
}
