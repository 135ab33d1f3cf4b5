package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/subscription"
	"github.com/xraph/starpay/types"
)

// Charge and grant documents use the charge id as _id, so the primary key
// index enforces insert-if-absent.

// ==================== Charge models ====================

type chargeModel struct {
	grove.BaseModel `grove:"table:starpay_charges"`

	ChargeID         string    `grove:"id,pk"              bson:"_id"`
	ProviderChargeID string    `grove:"provider_charge_id" bson:"provider_charge_id"`
	InvoiceID        string    `grove:"invoice_id"         bson:"invoice_id"`
	PlanID           string    `grove:"plan_id"            bson:"plan_id"`
	RequesterID      int64     `grove:"requester_id"       bson:"requester_id"`
	Amount           int64     `grove:"amount"             bson:"amount"`
	Currency         string    `grove:"currency"           bson:"currency"`
	ExpectedAmount   int64     `grove:"expected_amount"    bson:"expected_amount"`
	ExpectedCurrency string    `grove:"expected_currency"  bson:"expected_currency"`
	SettledAt        time.Time `grove:"settled_at"         bson:"settled_at"`
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
		SettledAt:        r.SettledAt.UTC(),
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
		SettledAt:        m.SettledAt.UTC(),
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

	ChargeID  string    `grove:"id,pk"      bson:"_id"`
	Status    string    `grove:"status"     bson:"status"`
	Attempts  int       `grove:"attempts"   bson:"attempts"`
	LastError string    `grove:"last_error" bson:"last_error"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func fromActivationModel(m *activationModel) *charge.Activation {
	return &charge.Activation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
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

	ChargeID    string    `grove:"id,pk"        bson:"_id"`
	GrantID     string    `grove:"grant_id"     bson:"grant_id"`
	RequesterID int64     `grove:"requester_id" bson:"requester_id"`
	PlanID      string    `grove:"plan_id"      bson:"plan_id"`
	StartsAt    time.Time `grove:"starts_at"    bson:"starts_at"`
	EndsAt      time.Time `grove:"ends_at"      bson:"ends_at"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
}

func toGrantModel(g *subscription.Grant) *grantModel {
	return &grantModel{
		ChargeID:    g.ChargeID,
		GrantID:     g.ID.String(),
		RequesterID: g.RequesterID,
		PlanID:      g.PlanID,
		StartsAt:    g.StartsAt.UTC(),
		EndsAt:      g.EndsAt.UTC(),
		CreatedAt:   g.CreatedAt.UTC(),
	}
}

func fromGrantModel(m *grantModel) (*subscription.Grant, error) {
	grantID, err := id.ParseGrantID(m.GrantID)
	if err != nil {
		return nil, err
	}
	return &subscription.Grant{
		ID:          grantID,
		ChargeID:    m.ChargeID,
		RequesterID: m.RequesterID,
		PlanID:      m.PlanID,
		StartsAt:    m.StartsAt.UTC(),
		EndsAt:      m.EndsAt.UTC(),
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}
