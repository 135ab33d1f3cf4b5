package store

import (
	"context"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/subscription"
)

// Store is the unified storage interface for all starpay entities.
// The charge methods form the idempotency ledger and must be durable in
// every production backend.
type Store interface {
	// Charge ledger methods
	InsertCharge(ctx context.Context, r *charge.Record) (created bool, err error)
	GetCharge(ctx context.Context, chargeID string) (*charge.Record, error)
	ListCharges(ctx context.Context, opts charge.ListOpts) ([]*charge.Record, error)

	// Activation methods
	PutActivation(ctx context.Context, a *charge.Activation) error
	GetActivation(ctx context.Context, chargeID string) (*charge.Activation, error)
	ListActivations(ctx context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error)

	// Subscription grant methods
	InsertGrant(ctx context.Context, g *subscription.Grant) (created bool, err error)
	LatestGrant(ctx context.Context, requesterID int64) (*subscription.Grant, error)
	ListGrants(ctx context.Context, requesterID int64, limit int) ([]*subscription.Grant, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ charge.Store       = Store(nil)
	_ subscription.Store = Store(nil)
)
