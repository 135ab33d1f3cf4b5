package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"

	// Registers the pg executor with migrate.NewExecutorFor.
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
)

// Migrations is the grove migration group for the starpay store.
var Migrations = migrate.NewGroup("starpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_starpay_charges",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS starpay_charges (
    charge_id          TEXT PRIMARY KEY,
    provider_charge_id TEXT NOT NULL DEFAULT '',
    invoice_id         TEXT NOT NULL DEFAULT '',
    plan_id            TEXT NOT NULL,
    requester_id       BIGINT NOT NULL,
    amount             BIGINT NOT NULL,
    currency           TEXT NOT NULL,
    expected_amount    BIGINT NOT NULL DEFAULT 0,
    expected_currency  TEXT NOT NULL DEFAULT '',
    settled_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_starpay_charges_requester ON starpay_charges (requester_id, settled_at DESC);
CREATE INDEX IF NOT EXISTS idx_starpay_charges_plan ON starpay_charges (plan_id, settled_at DESC);
CREATE INDEX IF NOT EXISTS idx_starpay_charges_settled ON starpay_charges (settled_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS starpay_charges`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_starpay_activations",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS starpay_activations (
    charge_id  TEXT PRIMARY KEY,
    status     TEXT NOT NULL DEFAULT 'pending',
    attempts   INT NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_starpay_activations_status ON starpay_activations (status, updated_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS starpay_activations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_starpay_grants",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS starpay_grants (
    id           TEXT NOT NULL UNIQUE,
    charge_id    TEXT PRIMARY KEY,
    requester_id BIGINT NOT NULL,
    plan_id      TEXT NOT NULL,
    starts_at    TIMESTAMPTZ NOT NULL,
    ends_at      TIMESTAMPTZ NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_starpay_grants_requester ON starpay_grants (requester_id, ends_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS starpay_grants`)
				return err
			},
		},
	)
}
