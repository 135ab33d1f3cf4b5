// Package audithook bridges payment engine events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on a
// particular audit store. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnInit               = (*Extension)(nil)
	_ plugin.OnShutdown           = (*Extension)(nil)
	_ plugin.OnInvoiceIssued      = (*Extension)(nil)
	_ plugin.OnPreCheckout        = (*Extension)(nil)
	_ plugin.OnChargeSettled      = (*Extension)(nil)
	_ plugin.OnChargeDuplicate    = (*Extension)(nil)
	_ plugin.OnSettlementRejected = (*Extension)(nil)
	_ plugin.OnActivationFailed   = (*Extension)(nil)
	_ plugin.OnReconciled         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   zerolog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context) error {
	return e.record(ctx, ActionEngineStarted, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategorySystem, "")
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionEngineStopped, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategorySystem, "")
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnInvoiceIssued implements plugin.OnInvoiceIssued.
func (e *Extension) OnInvoiceIssued(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceIssued, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPurchase, "",
		"plan_id", inv.PlanID,
		"requester_id", inv.RequesterID,
		"amount", inv.Price.Amount,
		"currency", inv.Price.Currency,
	)
}

// OnPreCheckout implements plugin.OnPreCheckout.
func (e *Extension) OnPreCheckout(ctx context.Context, pc plugin.PreCheckout) error {
	if pc.Accepted {
		return e.record(ctx, ActionPreCheckoutAccepted, SeverityInfo, OutcomeSuccess,
			ResourcePreCheckout, pc.QueryID, CategoryPurchase, "",
			"plan_id", pc.PlanID,
			"requester_id", pc.RequesterID,
		)
	}
	return e.record(ctx, ActionPreCheckoutRejected, SeverityWarning, OutcomeFailure,
		ResourcePreCheckout, pc.QueryID, CategoryPurchase, pc.Reason,
		"plan_id", pc.PlanID,
		"requester_id", pc.RequesterID,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnChargeSettled implements plugin.OnChargeSettled.
func (e *Extension) OnChargeSettled(ctx context.Context, rec *charge.Record) error {
	return e.record(ctx, ActionChargeSettled, SeverityInfo, OutcomeSuccess,
		ResourceCharge, rec.ChargeID, CategoryPayment, "",
		chargeMeta(rec)...,
	)
}

// OnChargeDuplicate implements plugin.OnChargeDuplicate.
func (e *Extension) OnChargeDuplicate(ctx context.Context, chargeID string) error {
	return e.record(ctx, ActionChargeDuplicate, SeverityInfo, OutcomeSuccess,
		ResourceCharge, chargeID, CategoryPayment, "")
}

// OnSettlementRejected implements plugin.OnSettlementRejected.
func (e *Extension) OnSettlementRejected(ctx context.Context, rej plugin.Rejection) error {
	return e.record(ctx, ActionSettlementRejected, SeverityCritical, OutcomeFailure,
		ResourceCharge, rej.ChargeID, CategoryPayment, rej.Reason,
		"provider_charge_id", rej.ProviderChargeID,
		"payload", rej.Payload,
		"amount", rej.Amount.Amount,
		"currency", rej.Amount.Currency,
	)
}

// OnActivationFailed implements plugin.OnActivationFailed.
func (e *Extension) OnActivationFailed(ctx context.Context, rec *charge.Record, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return e.record(ctx, ActionActivationFailed, SeverityCritical, OutcomePartial,
		ResourceCharge, rec.ChargeID, CategoryAccess, reason,
		chargeMeta(rec)...,
	)
}

// OnReconciled implements plugin.OnReconciled.
func (e *Extension) OnReconciled(ctx context.Context, rec *charge.Record) error {
	return e.record(ctx, ActionChargeReconciled, SeverityWarning, OutcomeSuccess,
		ResourceCharge, rec.ChargeID, CategoryAccess, "",
		chargeMeta(rec)...,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func chargeMeta(rec *charge.Record) []any {
	return []any{
		"plan_id", rec.PlanID,
		"requester_id", rec.RequesterID,
		"invoice_id", rec.InvoiceID.String(),
		"amount", rec.Amount.Amount,
		"currency", rec.Amount.Currency,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn().
			Str("action", action).
			Str("resource_id", resourceID).
			Err(recErr).
			Msg("audit_hook: failed to record audit event")
	}
	return nil
}
