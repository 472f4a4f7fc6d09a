package postgres

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently on startup. Quantities and money are
// numeric, never floating point.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id             uuid PRIMARY KEY,
		owner_id       text NOT NULL,
		product_name   text NOT NULL,
		description    text NOT NULL DEFAULT '',
		category       text NOT NULL,
		quantity       numeric(12,2) NOT NULL CHECK (quantity >= 0),
		unit           text NOT NULL DEFAULT 'kg',
		price_per_unit numeric(14,2) NOT NULL CHECK (price_per_unit >= 0),
		status         text NOT NULL CHECK (status IN ('available','reserved','processing','sold_out','completed','ready_for_shipment','shipped')),
		harvest_date   date,
		metadata       jsonb,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_owner_idx ON inventory (owner_id)`,
	`CREATE INDEX IF NOT EXISTS inventory_status_idx ON inventory (status)`,

	`CREATE TABLE IF NOT EXISTS order_sequences (
		day      text PRIMARY KEY,
		last_seq integer NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                      uuid PRIMARY KEY,
		order_number            text NOT NULL UNIQUE,
		supplier_id             text NOT NULL,
		customer_id             text NOT NULL,
		inventory_id            uuid NOT NULL REFERENCES inventory(id),
		quantity                numeric(12,2) NOT NULL CHECK (quantity > 0),
		unit_price              numeric(14,2) NOT NULL,
		total_amount            numeric(16,2) NOT NULL,
		status                  text NOT NULL CHECK (status IN ('pending','approved','rejected','in_production','ready_for_delivery','delivered','completed','cancelled')),
		delivery_address        text NOT NULL DEFAULT '',
		delivery_method         text NOT NULL DEFAULT 'pickup' CHECK (delivery_method IN ('pickup','delivery')),
		requested_delivery_date date,
		notes                   text NOT NULL DEFAULT '',
		rejection_reason        text NOT NULL DEFAULT '',
		approved_at             timestamptz,
		delivered_at            timestamptz,
		created_at              timestamptz NOT NULL DEFAULT now(),
		updated_at              timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id)`,
	`CREATE INDEX IF NOT EXISTS orders_supplier_idx ON orders (supplier_id)`,
	`CREATE INDEX IF NOT EXISTS orders_inventory_idx ON orders (inventory_id)`,
	`ALTER TABLE orders ADD COLUMN IF NOT EXISTS idempotency_key text`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_customer_idempotency_key ON orders (customer_id, idempotency_key)`,

	`CREATE TABLE IF NOT EXISTS productions (
		id              uuid PRIMARY KEY,
		order_id        uuid NOT NULL REFERENCES orders(id),
		stage           text NOT NULL CHECK (stage IN ('gudang_in','sorting','grading','drying','packaging','produksi','gudang_out','quality_check','pemasaran')),
		status          text NOT NULL CHECK (status IN ('pending','in_progress','completed','failed')),
		temperature     numeric(5,2),
		humidity        numeric(5,2),
		quality_metrics jsonb,
		notes           text NOT NULL DEFAULT '',
		operator_id     text NOT NULL,
		started_at      timestamptz,
		completed_at    timestamptz,
		created_at      timestamptz NOT NULL DEFAULT now(),
		updated_at      timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT productions_order_stage_key UNIQUE (order_id, stage)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         uuid PRIMARY KEY,
		user_id    text NOT NULL,
		title      text NOT NULL,
		message    text NOT NULL,
		type       text NOT NULL,
		status     text NOT NULL DEFAULT 'unread',
		data       jsonb,
		read_at    timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC)`,
	`ALTER TABLE notifications ADD COLUMN IF NOT EXISTS event_id text`,
	`CREATE UNIQUE INDEX IF NOT EXISTS notifications_event_user_key ON notifications (event_id, user_id)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
