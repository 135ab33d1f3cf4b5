package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/subscription"
	"github.com/xraph/starpay/types"
)

// StatusReader reports a requester's active subscription.
// *subscription.Service implements it.
type StatusReader interface {
	Current(ctx context.Context, requesterID int64) (*subscription.Grant, error)
}

// Handler routes bot updates into the engine.
type Handler struct {
	engine *starpay.Engine
	status StatusReader
	logger zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStatusReader enables the /status command.
func WithStatusReader(r StatusReader) HandlerOption {
	return func(h *Handler) { h.status = r }
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a Handler for engine.
func NewHandler(engine *starpay.Engine, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: engine,
		logger: engine.Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register installs the command, pre-checkout and payment handlers on b.
func (h *Handler) Register(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "start", bot.MatchTypeCommandStartOnly, h.handlePlans)
	b.RegisterHandler(bot.HandlerTypeMessageText, "plans", bot.MatchTypeCommandStartOnly, h.handlePlans)
	b.RegisterHandler(bot.HandlerTypeMessageText, "buy", bot.MatchTypeCommandStartOnly, h.handleBuy)
	b.RegisterHandler(bot.HandlerTypeMessageText, "status", bot.MatchTypeCommandStartOnly, h.handleStatus)

	for _, p := range h.engine.Plans() {
		for _, cmd := range p.Commands {
			b.RegisterHandler(bot.HandlerTypeMessageText, strings.TrimPrefix(cmd, "/"),
				bot.MatchTypeCommandStartOnly, h.buyPlan(p.ID))
		}
	}

	b.RegisterHandlerMatchFunc(isPreCheckout, h.handlePreCheckout)
	b.RegisterHandlerMatchFunc(isSuccessfulPayment, h.handleSuccessfulPayment)
}

func isPreCheckout(update *models.Update) bool {
	return update.PreCheckoutQuery != nil
}

func isSuccessfulPayment(update *models.Update) bool {
	return update.Message != nil && update.Message.SuccessfulPayment != nil
}

// ==================== Commands ====================

func (h *Handler) handlePlans(ctx context.Context, b *bot.Bot, update *models.Update) {
	var sb strings.Builder
	sb.WriteString("Choose a plan:\n")
	for _, p := range h.engine.Plans() {
		cmd := "/buy " + p.ID
		if len(p.Commands) > 0 {
			cmd = p.Commands[0]
		}
		fmt.Fprintf(&sb, "\n%s: %s, %s for %d days", cmd, p.Name, p.Price, p.Days())
	}
	sb.WriteString("\n\nSend a plan command to get an invoice. /status shows your subscription.")
	h.reply(ctx, b, update.Message.Chat.ID, sb.String())
}

func (h *Handler) handleBuy(ctx context.Context, b *bot.Bot, update *models.Update) {
	fields := strings.Fields(update.Message.Text)
	if len(fields) < 2 {
		h.reply(ctx, b, update.Message.Chat.ID, "Usage: /buy <plan>. Send /plans to see what is available.")
		return
	}
	// Anything after the plan id, such as an amount, is ignored: the price
	// always comes from the catalog.
	h.issue(ctx, b, update, strings.ToLower(fields[1]))
}

func (h *Handler) buyPlan(planID string) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.issue(ctx, b, update, planID)
	}
}

func (h *Handler) issue(ctx context.Context, b *bot.Bot, update *models.Update, planID string) {
	msg := update.Message
	requesterID := sender(msg)

	_, err := h.engine.IssueInvoice(ctx, planID, requesterID)
	switch {
	case err == nil:
	case errors.Is(err, starpay.ErrUnknownPlan):
		h.reply(ctx, b, msg.Chat.ID, fmt.Sprintf("Unknown plan %q. Send /plans to see what is available.", planID))
	default:
		h.logger.Error().Err(err).
			Str("plan_id", planID).
			Int64("requester_id", requesterID).
			Msg("telegram: issue invoice")
		h.reply(ctx, b, msg.Chat.ID, "Could not create the invoice right now. Please try again in a moment.")
	}
}

func (h *Handler) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	if h.status == nil {
		h.reply(ctx, b, chatID, "Subscription status is not available.")
		return
	}

	g, err := h.status.Current(ctx, sender(update.Message))
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		h.reply(ctx, b, chatID, "You have no active subscription. Send /plans to pick one.")
	case err != nil:
		h.logger.Error().Err(err).Int64("requester_id", sender(update.Message)).Msg("telegram: subscription status")
		h.reply(ctx, b, chatID, "Could not load your subscription right now.")
	default:
		name := g.PlanID
		if p, err := h.engine.Plan(g.PlanID); err == nil {
			name = p.Name
		}
		h.reply(ctx, b, chatID, fmt.Sprintf("Plan: %s\nActive until %s UTC",
			name, g.EndsAt.UTC().Format("2006-01-02 15:04")))
	}
}

// ==================== Payments ====================

func (h *Handler) handlePreCheckout(ctx context.Context, b *bot.Bot, update *models.Update) {
	q := update.PreCheckoutQuery
	query := starpay.Query{
		ID:          q.ID,
		Payload:     q.InvoicePayload,
		Currency:    q.Currency,
		TotalAmount: int64(q.TotalAmount),
	}
	if q.From != nil {
		query.RequesterID = q.From.ID
	}

	v := h.engine.PreCheckout(ctx, query)

	params := &bot.AnswerPreCheckoutQueryParams{PreCheckoutQueryID: q.ID, OK: v.Accepted}
	if !v.Accepted {
		params.ErrorMessage = "Payment declined: " + v.Reason + "."
	}
	if _, err := b.AnswerPreCheckoutQuery(ctx, params); err != nil {
		h.logger.Error().Err(err).
			Str("query_id", q.ID).
			Bool("accepted", v.Accepted).
			Msg("telegram: answer pre-checkout query")
	}
}

func (h *Handler) handleSuccessfulPayment(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	sp := msg.SuccessfulPayment

	st, err := h.engine.Settle(ctx, starpay.Payment{
		ChargeID:         sp.TelegramPaymentChargeID,
		ProviderChargeID: sp.ProviderPaymentChargeID,
		Payload:          sp.InvoicePayload,
		Amount:           int64(sp.TotalAmount),
		Currency:         sp.Currency,
	})
	if st == nil {
		h.logger.Error().Err(err).
			Str("charge_id", sp.TelegramPaymentChargeID).
			Msg("telegram: settlement failed")
	}

	h.reply(ctx, b, msg.Chat.ID, confirmation(st, sp, h.planName(st)))
}

func (h *Handler) planName(st *starpay.Settlement) string {
	if st == nil || st.Record == nil {
		return ""
	}
	if p, err := h.engine.Plan(st.Record.PlanID); err == nil {
		return p.Name
	}
	return st.Record.PlanID
}

// confirmation always acknowledges the money: the charge id is what support
// needs to find the payment.
func confirmation(st *starpay.Settlement, sp *models.SuccessfulPayment, planName string) string {
	amount := types.Money{Amount: int64(sp.TotalAmount), Currency: sp.Currency}
	head := fmt.Sprintf("Payment received: %s\nCharge ID: %s\n\n", amount, sp.TelegramPaymentChargeID)

	if st == nil {
		return head + "We could not record this payment yet. Support has been notified. Please keep the charge ID."
	}
	switch st.Status {
	case starpay.StatusActivated:
		return head + fmt.Sprintf("Your %s subscription is active. Send /status to check it.", planName)
	case starpay.StatusAlreadySettled:
		return head + "This payment was already processed."
	case starpay.StatusActivationFailed:
		return head + "Access will be granted after a manual review. Please keep the charge ID."
	default:
		return head + "We could not match this payment to a plan. Support has been notified. Please keep the charge ID."
	}
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram: send message")
	}
}

func sender(msg *models.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}
