// Package telegram connects the engine to the Telegram Bot API: invoices go
// out through sendInvoice, pre-checkout queries and successful payments come
// back as updates.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/types"
)

// compile-time interface check
var _ invoice.Channel = (*Channel)(nil)

// Channel submits invoices as Telegram Stars invoices.
type Channel struct {
	bot *bot.Bot
}

// NewChannel returns a Channel sending through b.
func NewChannel(b *bot.Bot) *Channel {
	return &Channel{bot: b}
}

// Submit sends inv to the requester's private chat. Stars invoices carry a
// single price line and no provider token.
func (c *Channel) Submit(ctx context.Context, inv *invoice.Invoice) error {
	_, err := c.bot.SendInvoice(ctx, &bot.SendInvoiceParams{
		ChatID:      inv.RequesterID,
		Title:       inv.Title,
		Description: inv.Description,
		Payload:     inv.Payload,
		Currency:    types.CurrencyStars,
		Prices: []models.LabeledPrice{
			{Label: inv.Title, Amount: int(inv.Price.Amount)},
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: send invoice: %w", err)
	}
	return nil
}

// NewBot creates a Bot API client whose transport errors go to logger.
// Updates that no handler claims are logged at debug level and dropped.
func NewBot(token string, logger zerolog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	base := []bot.Option{
		bot.WithErrorsHandler(func(err error) {
			logger.Error().Err(err).Msg("telegram transport error")
		}),
		bot.WithDefaultHandler(func(_ context.Context, _ *bot.Bot, update *models.Update) {
			logger.Debug().Int64("update_id", update.ID).Msg("telegram update ignored")
		}),
	}
	b, err := bot.New(token, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return b, nil
}
