package starpay

import (
	"context"
	"fmt"

	"github.com/xraph/starpay/invoice"
)

// IssueInvoice builds an invoice for planID and submits it to the payment
// channel. Title, description and price always come from the catalog.
//
// Nothing is persisted, so a call that fails with ErrChannelUnavailable can
// be retried as a whole.
func (e *Engine) IssueInvoice(ctx context.Context, planID string, requesterID int64) (*invoice.Invoice, error) {
	if requesterID <= 0 {
		return nil, &IssueError{PlanID: planID, Err: fmt.Errorf("%w: requester id must be positive", ErrInvalidInput)}
	}

	p, err := e.catalog.Lookup(planID)
	if err != nil {
		return nil, &IssueError{PlanID: planID, Err: err}
	}

	payload, nonce := e.codec.Encode(p.ID, requesterID)
	inv := &invoice.Invoice{
		ID:          nonce,
		PlanID:      p.ID,
		RequesterID: requesterID,
		Title:       p.Name,
		Description: p.Description,
		Payload:     payload,
		Price:       p.Price,
		IssuedAt:    e.clock().UTC(),
	}

	if err := e.channel.Submit(ctx, inv); err != nil {
		e.logger.Warn().
			Err(err).
			Str("plan_id", p.ID).
			Int64("requester_id", requesterID).
			Str("invoice_id", inv.ID.String()).
			Msg("invoice submission failed")
		return nil, &IssueError{PlanID: p.ID, Err: fmt.Errorf("%w: %w", ErrChannelUnavailable, err)}
	}

	e.logger.Info().
		Str("plan_id", p.ID).
		Int64("requester_id", requesterID).
		Str("invoice_id", inv.ID.String()).
		Int64("amount", inv.Price.Amount).
		Msg("invoice issued")

	e.plugins.EmitInvoiceIssued(ctx, inv)
	return inv, nil
}
