package starpay

import (
	"context"
	"strings"

	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/plugin"
	"github.com/xraph/starpay/types"
)

// Rejection reasons carried by verdicts and settlement alerts.
const (
	ReasonMalformedReference  = "malformed reference"
	ReasonUnknownPlan         = "unknown plan"
	ReasonUnsupportedCurrency = "unsupported currency"
	ReasonPriceMismatch       = "price mismatch"
	ReasonRequesterMismatch   = "requester mismatch"
	ReasonInternalError       = "internal error"
	ReasonLedgerUnavailable   = "ledger unavailable"
)

// Verdict is the answer to a pre-checkout query.
type Verdict struct {
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
	RequesterID int64  `json:"requester_id,omitempty"`
}

func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Query is a pre-checkout query as delivered by the payment platform.
// Zero-valued Currency, TotalAmount and RequesterID are not checked.
type Query struct {
	ID          string
	Payload     string
	Currency    string
	TotalAmount int64
	RequesterID int64
}

// Rule is an additional pre-checkout check. A non-empty return value rejects
// the query with that reason.
type Rule func(ctx context.Context, q Query, p *plan.Plan) (reason string)

// Validate decides whether payload may be charged. It consults only the
// codec and the catalog and answers within the pre-checkout deadline.
func (e *Engine) Validate(ctx context.Context, payload string) Verdict {
	return e.decide(ctx, func(context.Context) Verdict {
		v, _ := e.validate(payload)
		return v
	})
}

// PreCheckout answers a pre-checkout query. Besides Validate it checks the
// currency, the amount and the payer against the catalog and the reference,
// then runs any configured rules. It never touches the ledger.
func (e *Engine) PreCheckout(ctx context.Context, q Query) Verdict {
	v := e.decide(ctx, func(ctx context.Context) Verdict {
		v, p := e.validate(q.Payload)
		if !v.Accepted {
			return v
		}

		ok := v
		switch {
		case q.Currency != "" && !strings.EqualFold(q.Currency, types.CurrencyStars):
			v = reject(ReasonUnsupportedCurrency)
		case q.TotalAmount != 0 && q.TotalAmount != p.Price.Amount:
			v = reject(ReasonPriceMismatch)
		case q.RequesterID != 0 && q.RequesterID != v.RequesterID:
			v = reject(ReasonRequesterMismatch)
		default:
			for _, rule := range e.rules {
				if reason := rule(ctx, q, p); reason != "" {
					v = reject(reason)
					break
				}
			}
		}
		if !v.Accepted {
			v.PlanID, v.RequesterID = ok.PlanID, ok.RequesterID
		}
		return v
	})

	log := e.logger.Info()
	if !v.Accepted {
		log = e.logger.Warn().Str("reason", v.Reason)
	}
	log.Str("query_id", q.ID).
		Str("plan_id", v.PlanID).
		Int64("requester_id", v.RequesterID).
		Bool("accepted", v.Accepted).
		Msg("pre-checkout answered")

	e.plugins.EmitPreCheckout(ctx, plugin.PreCheckout{
		QueryID:     q.ID,
		Payload:     q.Payload,
		PlanID:      v.PlanID,
		RequesterID: v.RequesterID,
		Accepted:    v.Accepted,
		Reason:      v.Reason,
	})
	return v
}

func (e *Engine) validate(payload string) (Verdict, *plan.Plan) {
	ref, err := e.codec.Decode(payload)
	if err != nil {
		return reject(ReasonMalformedReference), nil
	}
	p, err := e.catalog.Lookup(ref.PlanID)
	if err != nil {
		return Verdict{Reason: ReasonUnknownPlan, PlanID: ref.PlanID, RequesterID: ref.RequesterID}, nil
	}
	return Verdict{Accepted: true, PlanID: p.ID, RequesterID: ref.RequesterID}, p
}

// decide runs fn under the pre-checkout deadline. A panic, a timeout or a
// cancelled caller all produce Reject("internal error").
func (e *Engine) decide(ctx context.Context, fn func(context.Context) Verdict) Verdict {
	if ctx.Err() != nil {
		return reject(ReasonInternalError)
	}

	ctx, cancel := context.WithTimeout(ctx, e.preCheckoutDeadline)
	defer cancel()

	done := make(chan Verdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Interface("panic", r).Msg("pre-checkout validation panicked")
				done <- reject(ReasonInternalError)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case v := <-done:
		return v
	case <-ctx.Done():
		e.logger.Error().Err(ctx.Err()).Msg("pre-checkout validation missed its deadline")
		return reject(ReasonInternalError)
	}
}
