// Package observability provides a metrics extension that counts payment
// engine events through a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/invoice"
	"github.com/xraph/starpay/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceIssued      = (*MetricsExtension)(nil)
	_ plugin.OnPreCheckout        = (*MetricsExtension)(nil)
	_ plugin.OnChargeSettled      = (*MetricsExtension)(nil)
	_ plugin.OnChargeDuplicate    = (*MetricsExtension)(nil)
	_ plugin.OnSettlementRejected = (*MetricsExtension)(nil)
	_ plugin.OnActivationFailed   = (*MetricsExtension)(nil)
	_ plugin.OnReconciled         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine metrics.
// Register it as a plugin to track the payment pipeline.
type MetricsExtension struct {
	// Purchase metrics
	InvoiceIssued       Counter
	InvoiceAmount       Histogram
	PreCheckoutAccepted Counter
	PreCheckoutRejected Counter

	// Settlement metrics
	ChargeSettled      Counter
	ChargeDuplicate    Counter
	SettlementRejected Counter
	SettledAmount      Histogram

	// Activation metrics
	ActivationFailed Counter
	Reconciled       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		InvoiceIssued:       factory.Counter("starpay.invoice.issued"),
		InvoiceAmount:       factory.Histogram("starpay.invoice.amount_stars"),
		PreCheckoutAccepted: factory.Counter("starpay.precheckout.accepted"),
		PreCheckoutRejected: factory.Counter("starpay.precheckout.rejected"),

		ChargeSettled:      factory.Counter("starpay.charge.settled"),
		ChargeDuplicate:    factory.Counter("starpay.charge.duplicate"),
		SettlementRejected: factory.Counter("starpay.settlement.rejected"),
		SettledAmount:      factory.Histogram("starpay.charge.amount_stars"),

		ActivationFailed: factory.Counter("starpay.activation.failed"),
		Reconciled:       factory.Counter("starpay.activation.reconciled"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInvoiceIssued implements plugin.OnInvoiceIssued.
func (m *MetricsExtension) OnInvoiceIssued(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceIssued.Inc()
	m.InvoiceAmount.Observe(float64(inv.Price.Amount))
	return nil
}

// OnPreCheckout implements plugin.OnPreCheckout.
func (m *MetricsExtension) OnPreCheckout(_ context.Context, pc plugin.PreCheckout) error {
	if pc.Accepted {
		m.PreCheckoutAccepted.Inc()
	} else {
		m.PreCheckoutRejected.Inc()
	}
	return nil
}

// OnChargeSettled implements plugin.OnChargeSettled.
func (m *MetricsExtension) OnChargeSettled(_ context.Context, rec *charge.Record) error {
	m.ChargeSettled.Inc()
	m.SettledAmount.Observe(float64(rec.Amount.Amount))
	return nil
}

// OnChargeDuplicate implements plugin.OnChargeDuplicate.
func (m *MetricsExtension) OnChargeDuplicate(context.Context, string) error {
	m.ChargeDuplicate.Inc()
	return nil
}

// OnSettlementRejected implements plugin.OnSettlementRejected.
func (m *MetricsExtension) OnSettlementRejected(context.Context, plugin.Rejection) error {
	m.SettlementRejected.Inc()
	return nil
}

// OnActivationFailed implements plugin.OnActivationFailed.
func (m *MetricsExtension) OnActivationFailed(context.Context, *charge.Record, error) error {
	m.ActivationFailed.Inc()
	return nil
}

// OnReconciled implements plugin.OnReconciled.
func (m *MetricsExtension) OnReconciled(context.Context, *charge.Record) error {
	m.Reconciled.Inc()
	return nil
}
