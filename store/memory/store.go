// Package memory implements store.Store with in-process maps. It is not
// durable and is meant for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	"github.com/xraph/starpay/store"
	"github.com/xraph/starpay/subscription"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Charge ledger
	charges map[string]charge.Record

	// Activation tracking
	activations map[string]charge.Activation

	// Subscription grants, keyed by charge id
	grants map[string]subscription.Grant
}

func New() *Store {
	return &Store{
		charges:     make(map[string]charge.Record),
		activations: make(map[string]charge.Activation),
		grants:      make(map[string]subscription.Grant),
	}
}

// Charge ledger implementation
func (s *Store) InsertCharge(_ context.Context, r *charge.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, starpay.ErrStoreClosed
	}
	if _, exists := s.charges[r.ChargeID]; exists {
		return false, nil
	}
	s.charges[r.ChargeID] = *r
	return true, nil
}

func (s *Store) GetCharge(_ context.Context, chargeID string) (*charge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, starpay.ErrStoreClosed
	}
	if r, ok := s.charges[chargeID]; ok {
		return &r, nil
	}
	return nil, starpay.ErrChargeNotFound
}

func (s *Store) ListCharges(_ context.Context, opts charge.ListOpts) ([]*charge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, starpay.ErrStoreClosed
	}

	result := make([]*charge.Record, 0)
	for _, r := range s.charges {
		if opts.RequesterID != 0 && r.RequesterID != opts.RequesterID {
			continue
		}
		if opts.PlanID != "" && r.PlanID != opts.PlanID {
			continue
		}
		if !opts.Since.IsZero() && r.SettledAt.Before(opts.Since) {
			continue
		}
		r := r
		result = append(result, &r)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].SettledAt.Equal(result[j].SettledAt) {
			return result[i].SettledAt.After(result[j].SettledAt)
		}
		return result[i].ChargeID < result[j].ChargeID
	})

	return page(result, opts.Limit, opts.Offset), nil
}

// Activation implementation
func (s *Store) PutActivation(_ context.Context, a *charge.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return starpay.ErrStoreClosed
	}
	s.activations[a.ChargeID] = *a
	return nil
}

func (s *Store) GetActivation(_ context.Context, chargeID string) (*charge.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, starpay.ErrStoreClosed
	}
	if a, ok := s.activations[chargeID]; ok {
		return &a, nil
	}
	return nil, starpay.ErrActivationNotFound
}

func (s *Store) ListActivations(_ context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, starpay.ErrStoreClosed
	}

	result := make([]*charge.Activation, 0)
	for _, a := range s.activations {
		if status == "" || a.Status == status {
			a := a
			result = append(result, &a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].ChargeID < result[j].ChargeID
	})

	return page(result, limit, 0), nil
}

// Subscription grant implementation
func (s *Store) InsertGrant(_ context.Context, g *subscription.Grant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, starpay.ErrStoreClosed
	}
	if _, exists := s.grants[g.ChargeID]; exists {
		return false, nil
	}
	s.grants[g.ChargeID] = *g
	return true, nil
}

func (s *Store) LatestGrant(_ context.Context, requesterID int64) (*subscription.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, starpay.ErrStoreClosed
	}

	var latest *subscription.Grant
	for _, g := range s.grants {
		if g.RequesterID != requesterID {
			continue
		}
		if latest == nil || g.EndsAt.After(latest.EndsAt) {
			g := g
			latest = &g
		}
	}
	if latest == nil {
		return nil, starpay.ErrGrantNotFound
	}
	return latest, nil
}

func (s *Store) ListGrants(_ context.Context, requesterID int64, limit int) ([]*subscription.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, starpay.ErrStoreClosed
	}

	result := make([]*subscription.Grant, 0)
	for _, g := range s.grants {
		if g.RequesterID == requesterID {
			g := g
			result = append(result, &g)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EndsAt.After(result[j].EndsAt)
	})

	return page(result, limit, 0), nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return starpay.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
