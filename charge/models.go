package charge

import (
	"time"

	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/types"
)

type Record struct {
	ChargeID         string       `json:"charge_id"`
	ProviderChargeID string       `json:"provider_charge_id,omitempty"`
	InvoiceID        id.InvoiceID `json:"invoice_id"`
	PlanID           string       `json:"plan_id"`
	RequesterID      int64        `json:"requester_id"`
	Amount           types.Money  `json:"amount"`
	Expected         types.Money  `json:"expected"`
	SettledAt        time.Time    `json:"settled_at"`
}

// AmountMatches reports whether the platform collected the catalog price.
func (r *Record) AmountMatches() bool { return r.Amount.Equal(r.Expected) }

type ActivationStatus string

const (
	ActivationPending   ActivationStatus = "pending"
	ActivationActivated ActivationStatus = "activated"
	ActivationFailed    ActivationStatus = "failed"
)

// Valid reports whether s is a known status.
func (s ActivationStatus) Valid() bool {
	switch s {
	case ActivationPending, ActivationActivated, ActivationFailed:
		return true
	}
	return false
}

type Activation struct {
	types.Entity
	ChargeID  string           `json:"charge_id"`
	Status    ActivationStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"last_error,omitempty"`
}
