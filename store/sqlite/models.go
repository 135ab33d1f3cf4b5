package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/subscription"
	"github.com/xraph/starpay/types"
)

// Timestamps are stored as Unix microseconds so ordering and range filters
// compare integers.

// ==================== Charge models ====================

type chargeModel struct {
	grove.BaseModel `grove:"table:starpay_charges"`

	ChargeID         string `grove:"charge_id,pk"`
	ProviderChargeID string `grove:"provider_charge_id"`
	InvoiceID        string `grove:"invoice_id"`
	PlanID           string `grove:"plan_id"`
	RequesterID      int64  `grove:"requester_id"`
	Amount           int64  `grove:"amount"`
	Currency         string `grove:"currency"`
	ExpectedAmount   int64  `grove:"expected_amount"`
	ExpectedCurrency string `grove:"expected_currency"`
	SettledAt        int64  `grove:"settled_at"`
}

func toChargeModel(r *charge.Record) *chargeModel {
	return &chargeModel{
		ChargeID:         r.ChargeID,
		ProviderChargeID: r.ProviderChargeID,
		InvoiceID:        r.InvoiceID.String(),
		PlanID:           r.PlanID,
		RequesterID:      r.RequesterID,
		Amount:           r.Amount.Amount,
		Currency:         r.Amount.Currency,
		ExpectedAmount:   r.Expected.Amount,
		ExpectedCurrency: r.Expected.Currency,
		SettledAt:        toUnix(r.SettledAt),
	}
}

func fromChargeModel(m *chargeModel) (*charge.Record, error) {
	r := &charge.Record{
		ChargeID:         m.ChargeID,
		ProviderChargeID: m.ProviderChargeID,
		PlanID:           m.PlanID,
		RequesterID:      m.RequesterID,
		Amount:           types.Money{Amount: m.Amount, Currency: m.Currency},
		Expected:         types.Money{Amount: m.ExpectedAmount, Currency: m.ExpectedCurrency},
		SettledAt:        fromUnix(m.SettledAt),
	}
	if m.InvoiceID != "" {
		invID, err := id.ParseInvoiceID(m.InvoiceID)
		if err != nil {
			return nil, err
		}
		r.InvoiceID = invID
	}
	return r, nil
}

// ==================== Activation models ====================

type activationModel struct {
	grove.BaseModel `grove:"table:starpay_activations"`

	ChargeID  string `grove:"charge_id,pk"`
	Status    string `grove:"status"`
	Attempts  int    `grove:"attempts"`
	LastError string `grove:"last_error"`
	CreatedAt int64  `grove:"created_at"`
	UpdatedAt int64  `grove:"updated_at"`
}

func toActivationModel(a *charge.Activation) *activationModel {
	return &activationModel{
		ChargeID:  a.ChargeID,
		Status:    string(a.Status),
		Attempts:  a.Attempts,
		LastError: a.LastError,
		CreatedAt: toUnix(a.CreatedAt),
		UpdatedAt: toUnix(a.UpdatedAt),
	}
}

func fromActivationModel(m *activationModel) *charge.Activation {
	return &charge.Activation{
		Entity: types.Entity{
			CreatedAt: fromUnix(m.CreatedAt),
			UpdatedAt: fromUnix(m.UpdatedAt),
		},
		ChargeID:  m.ChargeID,
		Status:    charge.ActivationStatus(m.Status),
		Attempts:  m.Attempts,
		LastError: m.LastError,
	}
}

// ==================== Grant models ====================

type grantModel struct {
	grove.BaseModel `grove:"table:starpay_grants"`

	ID          string `grove:"id"`
	ChargeID    string `grove:"charge_id,pk"`
	RequesterID int64  `grove:"requester_id"`
	PlanID      string `grove:"plan_id"`
	StartsAt    int64  `grove:"starts_at"`
	EndsAt      int64  `grove:"ends_at"`
	CreatedAt   int64  `grove:"created_at"`
}

func toGrantModel(g *subscription.Grant) *grantModel {
	return &grantModel{
		ID:          g.ID.String(),
		ChargeID:    g.ChargeID,
		RequesterID: g.RequesterID,
		PlanID:      g.PlanID,
		StartsAt:    toUnix(g.StartsAt),
		EndsAt:      toUnix(g.EndsAt),
		CreatedAt:   toUnix(g.CreatedAt),
	}
}

func fromGrantModel(m *grantModel) (*subscription.Grant, error) {
	grantID, err := id.ParseGrantID(m.ID)
	if err != nil {
		return nil, err
	}
	return &subscription.Grant{
		ID:          grantID,
		ChargeID:    m.ChargeID,
		RequesterID: m.RequesterID,
		PlanID:      m.PlanID,
		StartsAt:    fromUnix(m.StartsAt),
		EndsAt:      fromUnix(m.EndsAt),
		CreatedAt:   fromUnix(m.CreatedAt),
	}, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromUnix(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
