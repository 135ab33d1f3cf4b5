package subscription

import (
	"errors"
	"time"

	"github.com/xraph/starpay/id"
)

var (
	ErrNotFound     = errors.New("starpay: grant not found")
	ErrInvalidGrant = errors.New("starpay: grant needs a charge id, requester and period")
)

type Grant struct {
	ID          id.GrantID `json:"id"`
	ChargeID    string     `json:"charge_id"`
	RequesterID int64      `json:"requester_id"`
	PlanID      string     `json:"plan_id"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ActiveAt reports whether the grant covers t.
func (g *Grant) ActiveAt(t time.Time) bool {
	return !t.Before(g.StartsAt) && t.Before(g.EndsAt)
}

// Remaining returns the time left at t, or zero once expired.
func (g *Grant) Remaining(t time.Time) time.Duration {
	if !t.Before(g.EndsAt) {
		return 0
	}
	return g.EndsAt.Sub(t)
}
