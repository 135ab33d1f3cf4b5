package httpapi

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/plan"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type planView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       starpay.Money `json:"price"`
	PeriodDays  int           `json:"period_days"`
	Commands    []string      `json:"commands,omitempty"`
	Features    []string      `json:"features,omitempty"`
}

func newPlanView(p *plan.Plan) planView {
	return planView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		PeriodDays:  p.Days(),
		Commands:    p.Commands,
		Features:    p.Features,
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.engine.Health(c.UserContext()); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		return writeError(c, fiber.StatusServiceUnavailable, "unavailable", "ledger store unreachable")
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) listPlans(c *fiber.Ctx) error {
	plans := s.engine.Plans()
	out := make([]planView, len(plans))
	for i, p := range plans {
		out[i] = newPlanView(p)
	}
	return c.JSON(fiber.Map{"plans": out})
}

func (s *Server) listCharges(c *fiber.Ctx) error {
	var opts charge.ListOpts
	var err error

	if opts.RequesterID, err = queryInt64(c, "requester_id"); err != nil {
		return err
	}
	opts.PlanID = c.Query("plan_id")
	if v := c.Query("since"); v != "" {
		if opts.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return badQuery("since", err)
		}
	}
	if opts.Limit, err = limit(c); err != nil {
		return err
	}
	offset, err := queryInt64(c, "offset")
	if err != nil {
		return err
	}
	opts.Offset = int(offset)

	records, err := s.engine.ListCharges(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"charges": records, "count": len(records)})
}

func (s *Server) getCharge(c *fiber.Ctx) error {
	view, err := s.engine.GetCharge(c.UserContext(), c.Params("chargeID"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) listActivations(c *fiber.Ctx) error {
	status := charge.ActivationStatus(c.Query("status", string(charge.ActivationFailed)))
	if status == "all" {
		status = ""
	}
	n, err := limit(c)
	if err != nil {
		return err
	}

	acts, err := s.engine.ListActivations(c.UserContext(), status, n)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"activations": acts, "count": len(acts)})
}

// reconcile answers with the settlement whenever the engine produced one,
// including a repeated activation failure, so the operator sees its reason.
func (s *Server) reconcile(c *fiber.Ctx) error {
	chargeID := c.Params("chargeID")
	st, err := s.engine.Reconcile(c.UserContext(), chargeID)
	if st == nil {
		return err
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("charge_id", chargeID).Msg("reconcile did not activate")
	}
	return c.JSON(st)
}

func limit(c *fiber.Ctx) (int, error) {
	n, err := queryInt64(c, "limit")
	if err != nil {
		return 0, err
	}
	switch {
	case n <= 0:
		return defaultLimit, nil
	case n > maxLimit:
		return maxLimit, nil
	}
	return int(n), nil
}

func queryInt64(c *fiber.Ctx, key string) (int64, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, badQuery(key, err)
	}
	return n, nil
}
