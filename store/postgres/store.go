package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/starpay"
	"github.com/xraph/starpay/charge"
	starpaystore "github.com/xraph/starpay/store"
	"github.com/xraph/starpay/subscription"
)

// compile-time interface check
var _ starpaystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to the database at dsn and wraps it in a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	drv := pgdriver.New()
	if err := drv.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("starpay/postgres: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("starpay/postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("starpay/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", starpay.ErrMigrationFailed, err)
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
	res, err := s.pg.NewInsert(toChargeModel(r)).
		OnConflict("(charge_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("starpay/postgres: insert charge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("starpay/postgres: insert charge: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) GetCharge(ctx context.Context, chargeID string) (*charge.Record, error) {
	m := new(chargeModel)
	err := s.pg.NewSelect(m).
		Where("charge_id = $1", chargeID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starpay.ErrChargeNotFound
		}
		return nil, fmt.Errorf("starpay/postgres: get charge: %w", err)
	}
	return fromChargeModel(m)
}

func (s *Store) ListCharges(ctx context.Context, opts charge.ListOpts) ([]*charge.Record, error) {
	var models []chargeModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.RequesterID != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("requester_id = $%d", argIdx), opts.RequesterID)
	}
	if opts.PlanID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("plan_id = $%d", argIdx), opts.PlanID)
	}
	if !opts.Since.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("settled_at >= $%d", argIdx), opts.Since.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("settled_at DESC, charge_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/postgres: list charges: %w", err)
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
	_, err := s.pg.NewInsert(toActivationModel(a)).
		OnConflict("(charge_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("attempts = EXCLUDED.attempts").
		Set("last_error = EXCLUDED.last_error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("starpay/postgres: put activation: %w", err)
	}
	return nil
}

func (s *Store) GetActivation(ctx context.Context, chargeID string) (*charge.Activation, error) {
	m := new(activationModel)
	err := s.pg.NewSelect(m).
		Where("charge_id = $1", chargeID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starpay.ErrActivationNotFound
		}
		return nil, fmt.Errorf("starpay/postgres: get activation: %w", err)
	}
	return fromActivationModel(m), nil
}

func (s *Store) ListActivations(ctx context.Context, status charge.ActivationStatus, limit int) ([]*charge.Activation, error) {
	var models []activationModel
	q := s.pg.NewSelect(&models)

	if status != "" {
		q = q.Where("status = $1", string(status))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	q = q.OrderExpr("updated_at ASC, charge_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/postgres: list activations: %w", err)
	}

	result := make([]*charge.Activation, len(models))
	for i := range models {
		result[i] = fromActivationModel(&models[i])
	}
	return result, nil
}

// ==================== Subscription grants ====================

func (s *Store) InsertGrant(ctx context.Context, g *subscription.Grant) (bool, error) {
	res, err := s.pg.NewInsert(toGrantModel(g)).
		OnConflict("(charge_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("starpay/postgres: insert grant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("starpay/postgres: insert grant: %w", err)
	}
	return rows == 1, nil
}

func (s *Store) LatestGrant(ctx context.Context, requesterID int64) (*subscription.Grant, error) {
	m := new(grantModel)
	err := s.pg.NewSelect(m).
		Where("requester_id = $1", requesterID).
		OrderExpr("ends_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, starpay.ErrGrantNotFound
		}
		return nil, fmt.Errorf("starpay/postgres: latest grant: %w", err)
	}
	return fromGrantModel(m)
}

func (s *Store) ListGrants(ctx context.Context, requesterID int64, limit int) ([]*subscription.Grant, error) {
	var models []grantModel
	q := s.pg.NewSelect(&models).
		Where("requester_id = $1", requesterID).
		OrderExpr("ends_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("starpay/postgres: list grants: %w", err)
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

// isNoRows matches both the database/sql and pgx sentinels; the pg driver
// surfaces pgx errors unchanged.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
