package entitlement

import "time"

type Grant struct {
	RequesterID int64         `json:"requester_id"`
	PlanID      string        `json:"plan_id"`
	ChargeID    string        `json:"charge_id"`
	Period      time.Duration `json:"period"`
}
