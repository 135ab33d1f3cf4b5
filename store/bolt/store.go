// Package bolt implements store.Store on an embedded BoltDB file.
//
// Every value is JSON encoded under its charge id. Insert-if-absent runs the
// existence check and the put inside a single read-write transaction, and
// Bolt allows only one of those at a time.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	starpaystore "github.com/xraph/starpay/store"
	"github.com/xraph/starpay/subscription"
)

// Bucket name constants.
var (
	bucketCharges     = []byte("starpay_charges")
	bucketActivations = []byte("starpay_activations")
	bucketGrants      = []byte("starpay_grants")
)

// compile-time interface check
var _ starpaystore.Store = (*Store)(nil)

// Store implements store.Store using BoltDB.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("starpay/bolt: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the buckets. It is safe to run on every startup.
func (s *Store) Migrate(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCharges, bucketActivations, bucketGrants} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: bolt: %w", starpay.ErrMigrationFailed, mapErr(err))
	}
	return nil
}

// Ping reports whether the database file is open.
func (s *Store) Ping(_ context.Context) error {
	return mapErr(s.db.View(func(*bolt.Tx) error { return nil }))
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Charge ledger ====================

func (s *Store) InsertCharge(_ context.Context, r *charge.Record) (bool, error) {
	created, err := s.insertIfAbsent(bucketCharges, r.ChargeID, r)
	if err != nil {
		return false, fmt.Errorf("starpay/bolt: insert charge: %w", err)
	}
	return created, nil
}

func (s *Store) GetCharge(_ context.Context, chargeID string) (*charge.Record, error) {
	var r charge.Record
	if err := s.get(bucketCharges, chargeID, &r, starpay.ErrChargeNotFound); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListCharges(_ context.Context, opts charge.ListOpts) ([]*charge.Record, error) {
	result := make([]*charge.Record, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return bucket(tx, bucketCharges).ForEach(func(_, v []byte) error {
			var r charge.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if opts.RequesterID != 0 && r.RequesterID != opts.RequesterID {
				return nil
			}
			if opts.PlanID != "" && r.PlanID != opts.PlanID {
				return nil
			}
			if !opts.Since.IsZero() && r.SettledAt.Before(opts.Since) {
				return nil
			}
			result = append(result, &r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("starpay/bolt: list charges: %w", mapErr(err))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].SettledAt.Equal(result[j].SettledAt) {
			return result[i].SettledAt.After(result[j].SettledAt)
		}
		return result[i].ChargeID < result[j].ChargeID
	})
	return page(result, opts.Limit, opts.Offset), nil
}

// ==================== Activations ====================

func (s *Store) PutActivation(_ context.Context, a *charge.Activation) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := bucket(tx, bucketActivations)
		next := *a
		if prev := b.Get([]byte(a.ChargeID)); prev != nil {
			var old charge.Activation
			if err := json.Unmarshal(prev, &old); err != nil {
				return err
			}
			next.CreatedAt = old.CreatedAt
		}
		data, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.ChargeID), data)
	})
	if err != nil {
		return fmt.Errorf("starpay/bolt: put activation: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetActivation(_ context.Context, chargeID string) (*charge.Activation, error) {
	var a charge.Activation
	if err := s.get(bucketActivations, chargeID, &a, starpay.ErrActivationNotFound); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListActivations(_ context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error) {
	result := make([]*charge.Activation, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return bucket(tx, bucketActivations).ForEach(func(_, v []byte) error {
			var a charge.Activation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if status == "" || a.Status == status {
				result = append(result, &a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("starpay/bolt: list activations: %w", mapErr(err))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].ChargeID < result[j].ChargeID
	})
	return page(result, limit, 0), nil
}

// ==================== Subscription grants ====================

func (s *Store) InsertGrant(_ context.Context, g *subscription.Grant) (bool, error) {
	created, err := s.insertIfAbsent(bucketGrants, g.ChargeID, g)
	if err != nil {
		return false, fmt.Errorf("starpay/bolt: insert grant: %w", err)
	}
	return created, nil
}

func (s *Store) LatestGrant(ctx context.Context, requesterID int64) (*subscription.Grant, error) {
	grants, err := s.ListGrants(ctx, requesterID, 1)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, starpay.ErrGrantNotFound
	}
	return grants[0], nil
}

func (s *Store) ListGrants(_ context.Context, requesterID int64, limit int) ([]*subscription.Grant, error) {
	result := make([]*subscription.Grant, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return bucket(tx, bucketGrants).ForEach(func(_, v []byte) error {
			var g subscription.Grant
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			if g.RequesterID == requesterID {
				result = append(result, &g)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("starpay/bolt: list grants: %w", mapErr(err))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EndsAt.After(result[j].EndsAt)
	})
	return page(result, limit, 0), nil
}

// ==================== Helpers ====================

// insertIfAbsent writes v under key unless the key exists. The stored value
// is never overwritten.
func (s *Store) insertIfAbsent(name []byte, key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}

	created := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := bucket(tx, name)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		created = true
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return false, mapErr(err)
	}
	return created, nil
}

func (s *Store) get(name []byte, key string, dest any, notFound error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		v := bucket(tx, name).Get([]byte(key))
		if v == nil {
			return notFound
		}
		return json.NewDecoder(bytes.NewReader(v)).Decode(dest)
	})
	if errors.Is(err, notFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("starpay/bolt: get %s: %w", name, mapErr(err))
	}
	return nil
}

// bucket returns the named bucket. Buckets are created by Migrate, which
// Engine.Start runs before serving.
func bucket(tx *bolt.Tx, name []byte) *bolt.Bucket {
	b := tx.Bucket(name)
	if b == nil {
		panic(fmt.Sprintf("starpay/bolt: bucket %s missing; call Migrate first", name))
	}
	return b
}

func mapErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return starpay.ErrStoreClosed
	}
	return err
}

func page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
