package starpay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/reference"
)

func TestValidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.payload(t, "weekly", 1001)
	ghost, _ := reference.NewCodec(nil).Encode("ghost-plan", 1001)

	tests := []struct {
		name    string
		payload string
		want    starpay.Verdict
	}{
		{"issued payload", issued, starpay.Verdict{Accepted: true, PlanID: "weekly", RequesterID: 1001}},
		{"unknown plan", ghost, starpay.Verdict{Reason: starpay.ReasonUnknownPlan, PlanID: "ghost-plan", RequesterID: 1001}},
		{"malformed", "not-a-valid-payload", starpay.Verdict{Reason: starpay.ReasonMalformedReference}},
		{"empty", "", starpay.Verdict{Reason: starpay.ReasonMalformedReference}},
		{"legacy underscore format", "sub_weekly_1001_1700000000", starpay.Verdict{Reason: starpay.ReasonMalformedReference}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.engine.Validate(ctx, tt.payload))
		})
	}

	assert.Empty(t, h.activator.calls(), "validation never activates")
}

func TestPreCheckoutChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := h.payload(t, "weekly", 1001)

	tests := []struct {
		name   string
		query  starpay.Query
		accept bool
		reason string
	}{
		{"full match", starpay.Query{ID: "q1", Payload: payload, Currency: "XTR", TotalAmount: 750, RequesterID: 1001}, true, ""},
		{"unchecked fields", starpay.Query{ID: "q2", Payload: payload}, true, ""},
		{"foreign currency", starpay.Query{ID: "q3", Payload: payload, Currency: "USD", TotalAmount: 750}, false, starpay.ReasonUnsupportedCurrency},
		{"price tampered", starpay.Query{ID: "q4", Payload: payload, Currency: "XTR", TotalAmount: 1}, false, starpay.ReasonPriceMismatch},
		{"kopeck units", starpay.Query{ID: "q5", Payload: payload, Currency: "XTR", TotalAmount: 75000}, false, starpay.ReasonPriceMismatch},
		{"someone else paying", starpay.Query{ID: "q6", Payload: payload, RequesterID: 2002}, false, starpay.ReasonRequesterMismatch},
		{"malformed", starpay.Query{ID: "q7", Payload: "garbage"}, false, starpay.ReasonMalformedReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := h.engine.PreCheckout(ctx, tt.query)
			assert.Equal(t, tt.accept, v.Accepted)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}

	assert.Equal(t, int32(len(tests)), h.hooks.verdicts.Load())
}

func TestPreCheckoutRule(t *testing.T) {
	h := newHarness(t, starpay.WithPreCheckoutRule(func(_ context.Context, q starpay.Query, p *plan.Plan) string {
		if q.RequesterID == 666 {
			return "requester banned"
		}
		return ""
	}))
	ctx := context.Background()

	v := h.engine.PreCheckout(ctx, starpay.Query{Payload: h.payload(t, "weekly", 1001), RequesterID: 1001})
	assert.True(t, v.Accepted)

	v = h.engine.PreCheckout(ctx, starpay.Query{Payload: h.payload(t, "weekly", 666), RequesterID: 666})
	assert.False(t, v.Accepted)
	assert.Equal(t, "requester banned", v.Reason)
}

func TestPreCheckoutPanicRejects(t *testing.T) {
	h := newHarness(t, starpay.WithPreCheckoutRule(func(context.Context, starpay.Query, *plan.Plan) string {
		panic("nil map")
	}))

	v := h.engine.PreCheckout(context.Background(), starpay.Query{Payload: h.payload(t, "weekly", 1001)})
	assert.Equal(t, starpay.Verdict{Reason: starpay.ReasonInternalError}, v)
}

func TestPreCheckoutAnswersWithinDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := newHarness(t,
		starpay.WithPreCheckoutDeadline(50*time.Millisecond),
		starpay.WithPreCheckoutRule(func(context.Context, starpay.Query, *plan.Plan) string {
			<-release
			return ""
		}),
	)
	payload := h.payload(t, "weekly", 1001)

	start := time.Now()
	v := h.engine.PreCheckout(context.Background(), starpay.Query{Payload: payload})
	elapsed := time.Since(start)

	assert.False(t, v.Accepted)
	assert.Equal(t, starpay.ReasonInternalError, v.Reason)
	assert.Less(t, elapsed, time.Second)
}

func TestPreCheckoutCancelledCaller(t *testing.T) {
	h := newHarness(t)
	payload := h.payload(t, "weekly", 1001)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := h.engine.PreCheckout(ctx, starpay.Query{Payload: payload})
	assert.Equal(t, starpay.ReasonInternalError, v.Reason)
}
