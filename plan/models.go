package plan

import (
	"time"

	"github.com/xraph/starpay/types"
)

type Plan struct {
	ID          string        `json:"id"          validate:"required,planid"`
	Name        string        `json:"name"        validate:"required,max=32"`
	Description string        `json:"description" validate:"required,max=255"`
	Price       types.Money   `json:"price"`
	Period      time.Duration `json:"period"      validate:"gt=0"`
	Commands    []string      `json:"commands,omitempty" validate:"dive,command"`
	Features    []string      `json:"features,omitempty"`
}

// Days returns the entitlement period in whole days, rounded down.
func (p *Plan) Days() int {
	return int(p.Period / (24 * time.Hour))
}

// clone returns a deep copy so callers cannot mutate catalog entries.
func (p *Plan) clone() *Plan {
	c := *p
	c.Commands = append([]string(nil), p.Commands...)
	c.Features = append([]string(nil), p.Features...)
	return &c
}
