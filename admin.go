package starpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/plan"
)

// ChargeView is a ledger record together with its activation state.
type ChargeView struct {
	Record     *charge.Record     `json:"record"`
	Activation *charge.Activation `json:"activation,omitempty"`
}

// Plans returns the catalog in display order.
func (e *Engine) Plans() []*plan.Plan { return e.catalog.List() }

// Plan returns one catalog entry.
func (e *Engine) Plan(planID string) (*plan.Plan, error) { return e.catalog.Lookup(planID) }

// GetCharge returns the ledger record for chargeID and, when present, its
// activation.
func (e *Engine) GetCharge(ctx context.Context, chargeID string) (*ChargeView, error) {
	rec, err := e.store.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	act, err := e.store.GetActivation(ctx, chargeID)
	if err != nil && !errors.Is(err, ErrActivationNotFound) {
		return nil, err
	}
	return &ChargeView{Record: rec, Activation: act}, nil
}

// ListCharges lists ledger records, newest first.
func (e *Engine) ListCharges(ctx context.Context, opts charge.ListOpts) ([]*charge.Record, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidInput)
	}
	return e.store.ListCharges(ctx, opts)
}

// FailedActivations returns charges that were paid but not activated,
// oldest first.
func (e *Engine) FailedActivations(ctx context.Context, limit int) ([]*charge.Activation, error) {
	return e.ListActivations(ctx, charge.ActivationFailed, limit)
}

// ListActivations returns activations in the given state, or all of them
// when status is empty.
func (e *Engine) ListActivations(ctx context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown activation status %q", ErrInvalidInput, status)
	}
	return e.store.ListActivations(ctx, status, limit)
}

// Reconcile retries activation for a recorded charge whose activation is
// pending or failed. It takes the same lock as Settle and never writes a
// charge record. An already activated charge yields StatusAlreadySettled.
func (e *Engine) Reconcile(ctx context.Context, chargeID string) (*Settlement, error) {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, fmt.Errorf("%w: charge id is required", ErrInvalidInput)
	}

	unlock, err := e.locker.Lock(ctx, chargeKey(chargeID))
	if err != nil {
		return nil, fmt.Errorf("starpay: reconcile %q: %w", chargeID, err)
	}
	defer unlock()

	rec, err := e.store.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}

	act, err := e.store.GetActivation(ctx, chargeID)
	switch {
	case errors.Is(err, ErrActivationNotFound):
		act = nil
	case err != nil:
		return nil, fmt.Errorf("starpay: reconcile %q: %w", chargeID, err)
	case act.Status == charge.ActivationActivated:
		return &Settlement{Status: StatusAlreadySettled, ChargeID: chargeID, Record: rec, Activation: act}, nil
	}

	pl, err := e.catalog.Lookup(rec.PlanID)
	if err != nil {
		return nil, fmt.Errorf("starpay: reconcile %q: %w", chargeID, err)
	}

	e.logger.Warn().
		Str("charge_id", chargeID).
		Str("plan_id", rec.PlanID).
		Int64("requester_id", rec.RequesterID).
		Msg("reconciling activation")

	return e.activate(ctx, rec, pl, act, true)
}
