package invoice

import "context"

// Channel submits invoices to the external payment platform.
//
// Submit must not alter the price or payload it is given. Any error it
// returns is treated as transient by the issuer.
type Channel interface {
	Submit(ctx context.Context, inv *Invoice) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, inv *Invoice) error

// Submit calls f(ctx, inv).
func (f ChannelFunc) Submit(ctx context.Context, inv *Invoice) error { return f(ctx, inv) }
