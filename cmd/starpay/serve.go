package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xraph/starpay/config"
	"github.com/xraph/starpay/httpapi"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/telegram"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the operator API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		b  *bot.Bot
		ch invoice.Channel = offlineChannel
	)
	if cfg.TelegramMode != config.ModeDisabled {
		var botOpts []bot.Option
		if cfg.TelegramMode == config.ModeWebhook && cfg.WebhookSecret != "" {
			botOpts = append(botOpts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
		}
		b, err = telegram.NewBot(cfg.TelegramToken, logger.With().Str("component", "telegram").Logger(), botOpts...)
		if err != nil {
			return err
		}
		ch = telegram.NewChannel(b)
	}

	rt, err := build(ctx, cfg, logger, ch)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.Close(closeCtx)
	}()

	apiOpts := []httpapi.Option{
		httpapi.WithAdminToken(cfg.AdminToken),
		httpapi.WithGatherer(rt.registry),
		httpapi.WithLogger(logger.With().Str("component", "http").Logger()),
	}
	if cfg.AdminToken == "" {
		logger.Warn().Msg("STARPAY_ADMIN_TOKEN not set: the /v1 operator API is unauthenticated")
	}

	if b != nil {
		telegram.NewHandler(rt.engine,
			telegram.WithStatusReader(rt.subs),
			telegram.WithHandlerLogger(logger.With().Str("component", "telegram").Logger()),
		).Register(b)

		switch cfg.TelegramMode {
		case config.ModeWebhook:
			if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
				URL:         cfg.WebhookURL,
				SecretToken: cfg.WebhookSecret,
			}); err != nil {
				return fmt.Errorf("telegram: set webhook: %w", err)
			}
			apiOpts = append(apiOpts, httpapi.WithTelegramWebhook(b.WebhookHandler()))
			go b.StartWebhook(ctx)
			logger.Info().Str("url", cfg.WebhookURL).Msg("telegram webhook registered")
		default:
			if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
				logger.Warn().Err(err).Msg("telegram: delete webhook before polling")
			}
			go b.Start(ctx)
			logger.Info().Msg("telegram long polling started")
		}
	}

	app := httpapi.New(rt.engine, apiOpts...)
	return listen(ctx, app, cfg.HTTPAddr, logger)
}

// listen serves app until ctx is done, then shuts it down gracefully.
func listen(ctx context.Context, app *fiber.App, addr string, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(addr) }()
	logger.Info().Str("addr", addr).Msg("operator API listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return app.ShutdownWithTimeout(shutdownTimeout)
}
