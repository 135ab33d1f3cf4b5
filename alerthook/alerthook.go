// Package alerthook posts operator alerts to a Slack incoming webhook when
// money moved but access was not granted, or a settlement could not be
// matched to a plan.
package alerthook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Hook)(nil)
	_ plugin.OnActivationFailed   = (*Hook)(nil)
	_ plugin.OnSettlementRejected = (*Hook)(nil)
)

const (
	colorDanger  = "danger"
	colorWarning = "warning"
)

// PostFunc delivers a message to an incoming webhook URL.
type PostFunc func(ctx context.Context, url string, msg *slack.WebhookMessage) error

// Hook sends operator alerts to Slack.
type Hook struct {
	webhookURL string
	channel    string
	username   string
	post       PostFunc
	logger     zerolog.Logger
}

// Option configures a Hook.
type Option func(*Hook)

// WithChannel overrides the webhook's default channel.
func WithChannel(channel string) Option {
	return func(h *Hook) { h.channel = channel }
}

// WithUsername sets the bot name shown on alerts.
func WithUsername(name string) Option {
	return func(h *Hook) { h.username = name }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hook) { h.logger = l }
}

// WithPostFunc replaces slack.PostWebhookContext.
func WithPostFunc(fn PostFunc) Option {
	return func(h *Hook) { h.post = fn }
}

// New returns a Hook posting to webhookURL.
func New(webhookURL string, opts ...Option) *Hook {
	h := &Hook{
		webhookURL: webhookURL,
		username:   "starpay",
		post:       slack.PostWebhookContext,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements plugin.Plugin.
func (h *Hook) Name() string { return "slack-alerts" }

// OnActivationFailed implements plugin.OnActivationFailed.
func (h *Hook) OnActivationFailed(ctx context.Context, rec *charge.Record, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return h.send(ctx, slack.Attachment{
		Color: colorDanger,
		Title: "Charge recorded but access not granted",
		Text:  "Reconcile once the entitlement backend is healthy.",
		Fields: []slack.AttachmentField{
			{Title: "Charge", Value: rec.ChargeID, Short: true},
			{Title: "Plan", Value: rec.PlanID, Short: true},
			{Title: "Requester", Value: strconv.FormatInt(rec.RequesterID, 10), Short: true},
			{Title: "Amount", Value: rec.Amount.String(), Short: true},
			{Title: "Reason", Value: reason},
		},
	}, rec.ChargeID)
}

// OnSettlementRejected implements plugin.OnSettlementRejected.
func (h *Hook) OnSettlementRejected(ctx context.Context, rej plugin.Rejection) error {
	return h.send(ctx, slack.Attachment{
		Color: colorWarning,
		Title: "Paid settlement was not fulfilled",
		Text:  "The payment was collected; refund or grant access manually.",
		Fields: []slack.AttachmentField{
			{Title: "Charge", Value: rej.ChargeID, Short: true},
			{Title: "Provider charge", Value: rej.ProviderChargeID, Short: true},
			{Title: "Amount", Value: rej.Amount.String(), Short: true},
			{Title: "Reason", Value: rej.Reason, Short: true},
			{Title: "Payload", Value: "`" + rej.Payload + "`"},
		},
	}, rej.ChargeID)
}

func (h *Hook) send(ctx context.Context, att slack.Attachment, chargeID string) error {
	alertID := id.NewAlertID()
	att.Fallback = fmt.Sprintf("%s: %s", att.Title, chargeID)
	att.Footer = alertID.String()

	msg := &slack.WebhookMessage{
		Username:    h.username,
		Channel:     h.channel,
		Text:        ":rotating_light: starpay needs an operator",
		Attachments: []slack.Attachment{att},
	}
	if err := h.post(ctx, h.webhookURL, msg); err != nil {
		h.logger.Error().
			Err(err).
			Str("alert_id", alertID.String()).
			Str("charge_id", chargeID).
			Msg("slack alert failed")
		return fmt.Errorf("alerthook: post: %w", err)
	}

	h.logger.Info().
		Str("alert_id", alertID.String()).
		Str("charge_id", chargeID).
		Msg("operator alerted")
	return nil
}
