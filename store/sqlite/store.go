package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	starpaystore "github.com/xraph/starpay/store"
	"github.com/xraph/starpay/subscription"
)

// compile-time interface check
var _ starpaystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open connects to the SQLite database at dsn and wraps it in a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("starpay/sqlite: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("starpay/sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("starpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", starpay.ErrMigrationFailed, err)
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
	res, err := s.sdb.NewInsert(toChargeModel(r)).
		OnConflict("(charge_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("starpay/sqlite: insert charge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("starpay/sqlite: insert charge: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) GetCharge(ctx context.Context, chargeID string) (*charge.Record, error) {
	m := new(chargeModel)
	err := s.sdb.NewSelect(m).
		Where("charge_id = ?", chargeID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starpay.ErrChargeNotFound
		}
		return nil, fmt.Errorf("starpay/sqlite: get charge: %w", err)
	}
	return fromChargeModel(m)
}

func (s *Store) ListCharges(ctx context.Context, opts charge.ListOpts) ([]*charge.Record, error) {
	var models []chargeModel
	q := s.sdb.NewSelect(&models)

	if opts.RequesterID != 0 {
		q = q.Where("requester_id = ?", opts.RequesterID)
	}
	if opts.PlanID != "" {
		q = q.Where("plan_id = ?", opts.PlanID)
	}
	if !opts.Since.IsZero() {
		q = q.Where("settled_at >= ?", toUnix(opts.Since))
	}
	q = q.OrderExpr("settled_at DESC, charge_id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite rejects OFFSET without LIMIT.
		q = q.Limit(math.MaxInt32)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/sqlite: list charges: %w", err)
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
	_, err := s.sdb.NewInsert(toActivationModel(a)).
		OnConflict("(charge_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("attempts = EXCLUDED.attempts").
		Set("last_error = EXCLUDED.last_error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("starpay/sqlite: put activation: %w", err)
	}
	return nil
}

func (s *Store) GetActivation(ctx context.Context, chargeID string) (*charge.Activation, error) {
	m := new(activationModel)
	err := s.sdb.NewSelect(m).
		Where("charge_id = ?", chargeID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starpay.ErrActivationNotFound
		}
		return nil, fmt.Errorf("starpay/sqlite: get activation: %w", err)
	}
	return fromActivationModel(m), nil
}

func (s *Store) ListActivations(ctx context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error) {
	var models []activationModel
	q := s.sdb.NewSelect(&models)

	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	q = q.OrderExpr("updated_at ASC, charge_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/sqlite: list activations: %w", err)
	}

	result := make([]*charge.Activation, len(models))
	for i := range models {
		result[i] = fromActivationModel(&models[i])
	}
	return result, nil
}

// ==================== Subscription grants ====================

func (s *Store) InsertGrant(ctx context.Context, g *subscription.Grant) (bool, error) {
	res, err := s.sdb.NewInsert(toGrantModel(g)).
		OnConflict("(charge_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("starpay/sqlite: insert grant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("starpay/sqlite: insert grant: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) LatestGrant(ctx context.Context, requesterID int64) (*subscription.Grant, error) {
	m := new(grantModel)
	err := s.sdb.NewSelect(m).
		Where("requester_id = ?", requesterID).
		OrderExpr("ends_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starpay.ErrGrantNotFound
		}
		return nil, fmt.Errorf("starpay/sqlite: latest grant: %w", err)
	}
	return fromGrantModel(m)
}

func (s *Store) ListGrants(ctx context.Context, requesterID int64, limit int) ([]*subscription.Grant, error) {
	var models []grantModel
	q := s.sdb.NewSelect(&models).
		Where("requester_id = ?", requesterID).
		OrderExpr("ends_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/sqlite: list grants: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
