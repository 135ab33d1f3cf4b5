// Package entitlement defines the contract between settlement and whatever
// grants the purchased access.
package entitlement

import "context"

// Activator grants access for a settled charge.
//
// Settlement may call Activate more than once for the same charge id, for
// example after a crash between the ledger write and the call, or when an
// operator reconciles a failed activation. Implementations must treat a
// repeated ChargeID as a no-op.
type Activator interface {
	Activate(ctx context.Context, g Grant) error
}

// ActivatorFunc adapts a function to the Activator interface.
type ActivatorFunc func(ctx context.Context, g Grant) error

// Activate calls f(ctx, g).
func (f ActivatorFunc) Activate(ctx context.Context, g Grant) error { return f(ctx, g) }
