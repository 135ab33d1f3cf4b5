// Package charge holds the idempotency ledger records: one immutable Record
// per settled charge and a mutable Activation tracking its entitlement.
package charge

import (
	"context"
	"time"
)

type Store interface {
	// InsertCharge stores r unless a record with the same ChargeID exists.
	// created is false when the charge was already present.
	InsertCharge(ctx context.Context, r *Record) (created bool, err error)
	GetCharge(ctx context.Context, chargeID string) (*Record, error)
	ListCharges(ctx context.Context, opts ListOpts) ([]*Record, error)

	// PutActivation inserts or replaces the activation for a.ChargeID.
	PutActivation(ctx context.Context, a *Activation) error
	GetActivation(ctx context.Context, chargeID string) (*Activation, error)
	// ListActivations returns activations in the given status, oldest
	// update first. An empty status matches all.
	ListActivations(ctx context.Context, status ActivationStatus, limit int) ([]*Activation, error)
}

// ListOpts filters ListCharges. Results are ordered newest first.
type ListOpts struct {
	RequesterID int64
	PlanID      string
	Since       time.Time
	Limit       int
	Offset      int
}
