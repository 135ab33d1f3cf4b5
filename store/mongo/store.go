package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	starpaystore "github.com/xraph/starpay/store"
	"github.com/xraph/starpay/subscription"
)

// Collection name constants.
const (
	colCharges     = "starpay_charges"
	colActivations = "starpay_activations"
	colGrants      = "starpay_grants"
)

// compile-time interface check
var _ starpaystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to MongoDB. database overrides the name in the URI when set.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	drv := mongodriver.New()
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	if err := drv.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("starpay/mongo: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("starpay/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all starpay collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", starpay.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Charge ledger ====================

func (s *Store) InsertCharge(ctx context.Context, r *charge.Record) (bool, error) {
	_, err := s.mdb.NewInsert(toChargeModel(r)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("starpay/mongo: insert charge: %w", err)
	}
	return true, nil
}

func (s *Store) GetCharge(ctx context.Context, chargeID string) (*charge.Record, error) {
	var m chargeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": chargeID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, starpay.ErrChargeNotFound
		}
		return nil, fmt.Errorf("starpay/mongo: get charge: %w", err)
	}
	return fromChargeModel(&m)
}

func (s *Store) ListCharges(ctx context.Context, opts charge.ListOpts) ([]*charge.Record, error) {
	var models []chargeModel

	filter := bson.M{}
	if opts.RequesterID != 0 {
		filter["requester_id"] = opts.RequesterID
	}
	if opts.PlanID != "" {
		filter["plan_id"] = opts.PlanID
	}
	if !opts.Since.IsZero() {
		filter["settled_at"] = bson.M{"$gte": opts.Since.UTC()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "settled_at", Value: -1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/mongo: list charges: %w", err)
	}

	result := make([]*charge.Record, len(models))
	for i := range models {
		r, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Activations ====================

func (s *Store) PutActivation(ctx context.Context, a *charge.Activation) error {
	_, err := s.mdb.NewUpdate((*activationModel)(nil)).
		Filter(bson.M{"_id": a.ChargeID}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"status":     string(a.Status),
				"attempts":   a.Attempts,
				"last_error": a.LastError,
				"updated_at": a.UpdatedAt.UTC(),
			},
			"$setOnInsert": bson.M{
				"created_at": a.CreatedAt.UTC(),
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("starpay/mongo: put activation: %w", err)
	}
	return nil
}

func (s *Store) GetActivation(ctx context.Context, chargeID string) (*charge.Activation, error) {
	var m activationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": chargeID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, starpay.ErrActivationNotFound
		}
		return nil, fmt.Errorf("starpay/mongo: get activation: %w", err)
	}
	return fromActivationModel(&m), nil
}

func (s *Store) ListActivations(ctx context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error) {
	var models []activationModel

	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/mongo: list activations: %w", err)
	}

	result := make([]*charge.Activation, len(models))
	for i := range models {
		result[i] = fromActivationModel(&models[i])
	}
	return result, nil
}

// ==================== Subscription grants ====================

func (s *Store) InsertGrant(ctx context.Context, g *subscription.Grant) (bool, error) {
	_, err := s.mdb.NewInsert(toGrantModel(g)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("starpay/mongo: insert grant: %w", err)
	}
	return true, nil
}

func (s *Store) LatestGrant(ctx context.Context, requesterID int64) (*subscription.Grant, error) {
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"requester_id": requesterID}).
		Sort(bson.D{{Key: "ends_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("starpay/mongo: latest grant: %w", err)
	}
	if len(models) == 0 {
		return nil, starpay.ErrGrantNotFound
	}
	return fromGrantModel(&models[0])
}

func (s *Store) ListGrants(ctx context.Context, requesterID int64, limit int) ([]*subscription.Grant, error) {
	var models []grantModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"requester_id": requesterID}).
		Sort(bson.D{{Key: "ends_at", Value: -1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/mongo: list grants: %w", err)
	}

	result := make([]*subscription.Grant, len(models))
	for i := range models {
		g, err := fromGrantModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}
	return result, nil
}

// ==================== Helpers ====================

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCharges: {
			{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "settled_at", Value: -1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "settled_at", Value: -1}}},
			{Keys: bson.D{{Key: "settled_at", Value: -1}}},
		},
		colActivations: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		},
		colGrants: {
			{
				Keys:    bson.D{{Key: "grant_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "ends_at", Value: -1}}},
		},
	}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
