// Package plugin provides the hook system through which auditing, alerting
// and metrics observe the payment engine.
//
// A plugin implements Plugin plus any subset of the On* interfaces. Hooks
// run after the engine has decided an outcome; their errors are logged and
// never change it.
package plugin

import (
	"context"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// PreCheckout describes an answered pre-checkout query.
type PreCheckout struct {
	QueryID     string
	Payload     string
	PlanID      string
	RequesterID int64
	Accepted    bool
	Reason      string
}

// Rejection describes a settlement notice that could not be matched to a
// plan. The money has already moved, so these need an operator.
type Rejection struct {
	ChargeID         string
	ProviderChargeID string
	Payload          string
	Amount           types.Money
	Reason           string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnInvoiceIssued is called after an invoice reached the payment channel.
type OnInvoiceIssued interface {
	Plugin
	OnInvoiceIssued(ctx context.Context, inv *invoice.Invoice) error
}

// OnPreCheckout is called for every pre-checkout verdict.
type OnPreCheckout interface {
	Plugin
	OnPreCheckout(ctx context.Context, pc PreCheckout) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnChargeSettled is called once per charge, after a successful activation.
type OnChargeSettled interface {
	Plugin
	OnChargeSettled(ctx context.Context, rec *charge.Record) error
}

// OnChargeDuplicate is called when a settlement for a recorded charge is
// delivered again.
type OnChargeDuplicate interface {
	Plugin
	OnChargeDuplicate(ctx context.Context, chargeID string) error
}

// OnSettlementRejected is called when a settlement carries a malformed
// reference or an unknown plan.
type OnSettlementRejected interface {
	Plugin
	OnSettlementRejected(ctx context.Context, rej Rejection) error
}

// OnActivationFailed is called when a charge was recorded but the
// entitlement could not be granted.
type OnActivationFailed interface {
	Plugin
	OnActivationFailed(ctx context.Context, rec *charge.Record, cause error) error
}

// OnReconciled is called when an operator-triggered retry activated a
// previously failed charge.
type OnReconciled interface {
	Plugin
	OnReconciled(ctx context.Context, rec *charge.Record) error
}
