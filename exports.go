package starpay

import (
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/types"
)

// Re-export common types for convenience so users don't have to import the
// leaf packages.

// Money is re-exported from types package.
type Money = types.Money

// Plan is re-exported from plan package.
type Plan = plan.Plan

// ChargeRecord is re-exported from charge package.
type ChargeRecord = charge.Record

// ListOpts is re-exported from charge package.
type ListOpts = charge.ListOpts

// Re-export Money constructors
var (
	Stars = types.Stars
	Zero  = types.Zero
)

// CurrencyStars is the currency code of Telegram Stars.
const CurrencyStars = types.CurrencyStars
