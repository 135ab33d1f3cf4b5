package audithook

// Action constants for audit events.
const (
	// Lifecycle actions
	ActionEngineStarted = "engine.started"
	ActionEngineStopped = "engine.stopped"

	// Purchase actions
	ActionInvoiceIssued       = "invoice.issued"
	ActionPreCheckoutAccepted = "precheckout.accepted"
	ActionPreCheckoutRejected = "precheckout.rejected"

	// Settlement actions
	ActionChargeSettled      = "charge.settled"
	ActionChargeDuplicate    = "charge.duplicate"
	ActionSettlementRejected = "settlement.rejected"
	ActionActivationFailed   = "activation.failed"
	ActionChargeReconciled   = "charge.reconciled"
)

// Resource constants for audit events.
const (
	ResourceEngine      = "engine"
	ResourceInvoice     = "invoice"
	ResourcePreCheckout = "precheckout"
	ResourceCharge      = "charge"
)

// Category constants for audit events.
const (
	CategorySystem   = "system"
	CategoryPurchase = "purchase"
	CategoryPayment  = "payment"
	CategoryAccess   = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
