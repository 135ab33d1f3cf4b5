// Package plan holds the immutable catalog of purchasable subscription plans.
//
// A Catalog is built once at process start and never mutated. Lookups hand
// out copies, so the price and period a caller sees are always the ones the
// catalog was built with.
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/starpay/types"
)

// ErrNotFound is returned when a plan id is absent from the catalog.
var ErrNotFound = errors.New("starpay: unknown plan")

var (
	idPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,23}$`)
	commandPattern = regexp.MustCompile(`^/?[a-z0-9_]{1,32}$`)
)

// Catalog is an immutable id -> Plan mapping.
type Catalog struct {
	plans    map[string]*Plan
	commands map[string]string
	ordered  []*Plan
}

// ValidID reports whether s is a well-formed plan identifier.
func ValidID(s string) bool { return idPattern.MatchString(s) }

// NewCatalog validates the plans and builds a Catalog.
func NewCatalog(plans ...*Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("plan: catalog is empty")
	}

	v := newValidator()
	c := &Catalog{
		plans:    make(map[string]*Plan, len(plans)),
		commands: make(map[string]string),
	}

	for _, p := range plans {
		if p == nil {
			return nil, errors.New("plan: nil plan")
		}
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("plan: invalid plan %q: %w", p.ID, err)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("plan: plan %q: price must be positive", p.ID)
		}
		if !p.Price.IsStars() {
			return nil, fmt.Errorf("plan: plan %q: price must be in %s, got %q", p.ID, types.CurrencyStars, p.Price.Currency)
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("plan: duplicate plan id %q", p.ID)
		}

		cp := p.clone()
		cp.Price = types.Stars(p.Price.Amount)
		for i, cmd := range cp.Commands {
			cmd = normalizeCommand(cmd)
			if owner, dup := c.commands[cmd]; dup {
				return nil, fmt.Errorf("plan: command %q used by both %q and %q", cmd, owner, p.ID)
			}
			c.commands[cmd] = p.ID
			cp.Commands[i] = cmd
		}

		c.plans[p.ID] = cp
		c.ordered = append(c.ordered, cp)
	}

	sort.SliceStable(c.ordered, func(i, j int) bool {
		if c.ordered[i].Price.Amount != c.ordered[j].Price.Amount {
			return c.ordered[i].Price.Amount < c.ordered[j].Price.Amount
		}
		return c.ordered[i].ID < c.ordered[j].ID
	})

	return c, nil
}

// MustCatalog is like NewCatalog but panics on error.
func MustCatalog(plans ...*Plan) *Catalog {
	c, err := NewCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns a copy of the plan with the given id.
func (c *Catalog) Lookup(planID string) (*Plan, error) {
	p, ok := c.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, planID)
	}
	return p.clone(), nil
}

// LookupCommand resolves a chat command alias such as "/weekly".
func (c *Catalog) LookupCommand(cmd string) (*Plan, error) {
	planID, ok := c.commands[normalizeCommand(cmd)]
	if !ok {
		return nil, fmt.Errorf("%w: no plan for command %q", ErrNotFound, cmd)
	}
	return c.Lookup(planID)
}

// List returns copies of all plans ordered by price, then id.
func (c *Catalog) List() []*Plan {
	out := make([]*Plan, len(c.ordered))
	for i, p := range c.ordered {
		out[i] = p.clone()
	}
	return out
}

// Len returns the number of plans.
func (c *Catalog) Len() int { return len(c.plans) }

// DefaultCatalog returns the stock plan set.
func DefaultCatalog() *Catalog {
	return MustCatalog(
		&Plan{
			ID:          "weekly",
			Name:        "Basic",
			Description: "Full access for 7 days",
			Price:       types.Stars(750),
			Period:      7 * 24 * time.Hour,
			Commands:    []string{"/weekly"},
		},
		&Plan{
			ID:          "monthly",
			Name:        "Pro",
			Description: "Full access for 30 days",
			Price:       types.Stars(2300),
			Period:      30 * 24 * time.Hour,
			Commands:    []string{"/monthly"},
		},
		&Plan{
			ID:          "annual",
			Name:        "VIP",
			Description: "Full access for 365 days",
			Price:       types.Stars(10000),
			Period:      365 * 24 * time.Hour,
			Commands:    []string{"/annual"},
		},
		&Plan{
			ID:          "premium",
			Name:        "Premium",
			Description: "Premium access with priority support for 365 days",
			Price:       types.Stars(18500),
			Period:      365 * 24 * time.Hour,
			Commands:    []string{"/premium"},
		},
	)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("planid", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag name
		return ValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("command", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag name
		return commandPattern.MatchString(fl.Field().String())
	})
	return v
}

func normalizeCommand(cmd string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	if !strings.HasPrefix(cmd, "/") {
		cmd = "/" + cmd
	}
	return cmd
}
