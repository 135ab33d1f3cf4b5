package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xraph/starpay/entitlement"
	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/keylock"
)

// compile-time interface check
var _ entitlement.Activator = (*Service)(nil)

// Service grants subscription periods for settled charges. A purchase made
// while a grant is still running extends it instead of overlapping it.
type Service struct {
	store  Store
	locker keylock.Locker
	clock  func() time.Time
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLocker sets the per-requester lock. Defaults to an in-process lock.
func WithLocker(l keylock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service persisting grants in store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: keylock.NewLocal(),
		clock:  time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate records a grant for g.ChargeID. Repeated calls for the same
// charge leave the first grant in place and return nil.
func (s *Service) Activate(ctx context.Context, g entitlement.Grant) error {
	if g.ChargeID == "" || g.RequesterID <= 0 || g.Period <= 0 {
		return ErrInvalidGrant
	}

	unlock, err := s.locker.Lock(ctx, requesterKey(g.RequesterID))
	if err != nil {
		return fmt.Errorf("subscription: lock requester %d: %w", g.RequesterID, err)
	}
	defer unlock()

	now := s.clock().UTC()
	start := now
	latest, err := s.store.LatestGrant(ctx, g.RequesterID)
	switch {
	case err == nil:
		if latest.ChargeID == g.ChargeID {
			return nil
		}
		if latest.EndsAt.After(now) {
			start = latest.EndsAt
		}
	case errors.Is(err, ErrNotFound):
	default:
		return fmt.Errorf("subscription: latest grant: %w", err)
	}

	grant := &Grant{
		ID:          id.NewGrantID(),
		ChargeID:    g.ChargeID,
		RequesterID: g.RequesterID,
		PlanID:      g.PlanID,
		StartsAt:    start,
		EndsAt:      start.Add(g.Period),
		CreatedAt:   now,
	}
	created, err := s.store.InsertGrant(ctx, grant)
	if err != nil {
		return fmt.Errorf("subscription: insert grant: %w", err)
	}
	if !created {
		s.logger.Debug().
			Str("charge_id", g.ChargeID).
			Int64("requester_id", g.RequesterID).
			Msg("grant already recorded")
		return nil
	}

	s.logger.Info().
		Str("charge_id", g.ChargeID).
		Str("plan_id", g.PlanID).
		Int64("requester_id", g.RequesterID).
		Time("ends_at", grant.EndsAt).
		Msg("subscription granted")
	return nil
}

// Current returns the requester's active grant, or ErrGrantNotFound when
// nothing covers the present moment.
func (s *Service) Current(ctx context.Context, requesterID int64) (*Grant, error) {
	latest, err := s.store.LatestGrant(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !s.clock().Before(latest.EndsAt) {
		return nil, ErrNotFound
	}
	return latest, nil
}

// History returns the requester's grants, latest period first.
func (s *Service) History(ctx context.Context, requesterID int64, limit int) ([]*Grant, error) {
	return s.store.ListGrants(ctx, requesterID, limit)
}

func requesterKey(requesterID int64) string {
	return fmt.Sprintf("requester:%d", requesterID)
}
