package invoice

import (
	"time"

	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/types"
)

type Invoice struct {
	ID          id.InvoiceID `json:"id"`
	PlanID      string       `json:"plan_id"`
	RequesterID int64        `json:"requester_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Payload     string       `json:"payload"`
	Price       types.Money  `json:"price"`
	IssuedAt    time.Time    `json:"issued_at"`
}
