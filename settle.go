package starpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/plugin"
	"github.com/xraph/starpay/types"
)

// Status is the outcome of a settlement.
type Status string

const (
	// StatusActivated means the charge was recorded and access granted.
	StatusActivated Status = "activated"
	// StatusAlreadySettled means the charge was recorded earlier. Duplicate
	// delivery is expected and not an error.
	StatusAlreadySettled Status = "already_settled"
	// StatusRejected means the payment could not be matched to a plan. Money
	// has moved, so an operator is alerted.
	StatusRejected Status = "rejected"
	// StatusActivationFailed means the charge was recorded but granting
	// access failed. Reconcile retries the grant.
	StatusActivationFailed Status = "activation_failed"
)

// Payment is a settlement notice from the payment platform.
type Payment struct {
	ChargeID         string
	ProviderChargeID string
	Payload          string
	Amount           int64
	Currency         string
}

// Settlement is the result of Settle or Reconcile.
type Settlement struct {
	Status     Status             `json:"status"`
	ChargeID   string             `json:"charge_id"`
	Reason     string             `json:"reason,omitempty"`
	Record     *charge.Record     `json:"record,omitempty"`
	Activation *charge.Activation `json:"activation,omitempty"`
}

// Settle processes a settlement notice at most once per charge id.
//
// The ledger check and write run under a lock keyed by the charge id, so
// concurrent deliveries of one charge serialize while unrelated charges do
// not. The ledger write happens before the activator is called and is
// never rolled back; an activation failure returns StatusActivationFailed
// together with an *ActivationError.
func (e *Engine) Settle(ctx context.Context, p Payment) (*Settlement, error) {
	chargeID := strings.TrimSpace(p.ChargeID)
	if chargeID == "" {
		return nil, fmt.Errorf("%w: charge id is required", ErrInvalidInput)
	}

	unlock, err := e.locker.Lock(ctx, chargeKey(chargeID))
	if err != nil {
		return nil, e.failSettlement(ctx, chargeID, p, err)
	}
	defer unlock()

	if existing, err := e.store.GetCharge(ctx, chargeID); err == nil {
		return e.duplicate(ctx, existing), nil
	} else if !errors.Is(err, ErrChargeNotFound) {
		return nil, e.failSettlement(ctx, chargeID, p, err)
	}

	ref, err := e.codec.Decode(p.Payload)
	if err != nil {
		return e.rejectSettlement(ctx, chargeID, p, ReasonMalformedReference, err), nil
	}
	pl, err := e.catalog.Lookup(ref.PlanID)
	if err != nil {
		return e.rejectSettlement(ctx, chargeID, p, ReasonUnknownPlan, err), nil
	}

	currency := p.Currency
	if currency == "" {
		currency = types.CurrencyStars
	}
	rec := &charge.Record{
		ChargeID:         chargeID,
		ProviderChargeID: p.ProviderChargeID,
		InvoiceID:        ref.Nonce,
		PlanID:           pl.ID,
		RequesterID:      ref.RequesterID,
		Amount:           types.Money{Amount: p.Amount, Currency: strings.ToUpper(currency)},
		Expected:         pl.Price,
		SettledAt:        e.clock().UTC(),
	}
	if !rec.AmountMatches() {
		e.logger.Warn().
			Str("charge_id", chargeID).
			Str("plan_id", pl.ID).
			Int64("requester_id", rec.RequesterID).
			Stringer("amount", rec.Amount).
			Stringer("expected", rec.Expected).
			Msg("settled amount differs from catalog price")
	}

	created, err := e.store.InsertCharge(ctx, rec)
	if err != nil {
		return nil, e.failSettlement(ctx, chargeID, p, err)
	}
	if !created {
		// Another replica wrote it between our check and insert.
		stored, err := e.store.GetCharge(ctx, chargeID)
		if err != nil {
			stored = rec
		}
		return e.duplicate(ctx, stored), nil
	}

	e.logger.Info().
		Str("charge_id", chargeID).
		Str("plan_id", pl.ID).
		Int64("requester_id", rec.RequesterID).
		Str("invoice_id", rec.InvoiceID.String()).
		Int64("amount", rec.Amount.Amount).
		Msg("charge recorded")

	return e.activate(ctx, rec, pl, nil, false)
}

func (e *Engine) duplicate(ctx context.Context, rec *charge.Record) *Settlement {
	e.logger.Info().
		Str("charge_id", rec.ChargeID).
		Msg("duplicate settlement ignored")
	e.plugins.EmitChargeDuplicate(ctx, rec.ChargeID)
	return &Settlement{Status: StatusAlreadySettled, ChargeID: rec.ChargeID, Record: rec}
}

func (e *Engine) rejectSettlement(ctx context.Context, chargeID string, p Payment, reason string, cause error) *Settlement {
	e.logger.Error().
		Err(cause).
		Str("charge_id", chargeID).
		Str("provider_charge_id", p.ProviderChargeID).
		Str("payload", p.Payload).
		Int64("amount", p.Amount).
		Str("reason", reason).
		Msg("settlement rejected; manual reconciliation required")

	e.plugins.EmitSettlementRejected(ctx, plugin.Rejection{
		ChargeID:         chargeID,
		ProviderChargeID: p.ProviderChargeID,
		Payload:          p.Payload,
		Amount:           types.Money{Amount: p.Amount, Currency: p.Currency},
		Reason:           reason,
	})
	return &Settlement{Status: StatusRejected, ChargeID: chargeID, Reason: reason}
}

// failSettlement handles a paid charge that could not be recorded. Telegram
// does not redeliver successful payments, so the operator is alerted through
// the rejection hook.
func (e *Engine) failSettlement(ctx context.Context, chargeID string, p Payment, cause error) error {
	e.logger.Error().
		Err(cause).
		Str("charge_id", chargeID).
		Str("provider_charge_id", p.ProviderChargeID).
		Str("payload", p.Payload).
		Int64("amount", p.Amount).
		Msg("charge not recorded; manual reconciliation required")

	e.plugins.EmitSettlementRejected(ctx, plugin.Rejection{
		ChargeID:         chargeID,
		ProviderChargeID: p.ProviderChargeID,
		Payload:          p.Payload,
		Amount:           types.Money{Amount: p.Amount, Currency: p.Currency},
		Reason:           ReasonLedgerUnavailable,
	})
	return &SettlementError{ChargeID: chargeID, Err: cause}
}

// activate calls the activator for a recorded charge and tracks the result.
// Callers hold the charge lock. act is the previous activation, if any.
func (e *Engine) activate(ctx context.Context, rec *charge.Record, pl *plan.Plan, act *charge.Activation, reconcile bool) (*Settlement, error) {
	if act == nil {
		act = &charge.Activation{
			Entity:   types.NewEntity(e.clock().UTC()),
			ChargeID: rec.ChargeID,
		}
	}
	act.Status = charge.ActivationPending
	act.Attempts++
	act.Touch(e.clock().UTC())
	e.putActivation(ctx, act)

	err := e.activator.Activate(ctx, entitlement.Grant{
		RequesterID: rec.RequesterID,
		PlanID:      rec.PlanID,
		ChargeID:    rec.ChargeID,
		Period:      pl.Period,
	})
	act.Touch(e.clock().UTC())

	if err != nil {
		act.Status = charge.ActivationFailed
		act.LastError = err.Error()
		e.putActivation(ctx, act)

		e.logger.Error().
			Err(err).
			Str("charge_id", rec.ChargeID).
			Str("plan_id", rec.PlanID).
			Int64("requester_id", rec.RequesterID).
			Int("attempts", act.Attempts).
			Msg("entitlement activation failed; charge recorded, operator action required")
		e.plugins.EmitActivationFailed(ctx, rec, err)

		return &Settlement{
			Status:     StatusActivationFailed,
			ChargeID:   rec.ChargeID,
			Reason:     err.Error(),
			Record:     rec,
			Activation: act,
		}, &ActivationError{ChargeID: rec.ChargeID, Err: err}
	}

	act.Status = charge.ActivationActivated
	act.LastError = ""
	e.putActivation(ctx, act)

	e.logger.Info().
		Str("charge_id", rec.ChargeID).
		Str("plan_id", rec.PlanID).
		Int64("requester_id", rec.RequesterID).
		Dur("period", pl.Period).
		Bool("reconciled", reconcile).
		Msg("entitlement activated")

	if reconcile {
		e.plugins.EmitReconciled(ctx, rec)
	} else {
		e.plugins.EmitChargeSettled(ctx, rec)
	}

	return &Settlement{Status: StatusActivated, ChargeID: rec.ChargeID, Record: rec, Activation: act}, nil
}

// putActivation records activation progress. The charge record is the
// source of truth, so a failed write is logged and settlement continues.
func (e *Engine) putActivation(ctx context.Context, act *charge.Activation) {
	if err := e.store.PutActivation(context.WithoutCancel(ctx), act); err != nil {
		e.logger.Error().
			Err(err).
			Str("charge_id", act.ChargeID).
			Str("status", string(act.Status)).
			Msg("failed to record activation state")
	}
}

