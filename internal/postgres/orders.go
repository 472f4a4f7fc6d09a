package postgres

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/orders"
)

type OrderRepo struct{ tx pgx.Tx }

const orderColumns = `id, order_number, supplier_id, customer_id, inventory_id, quantity, unit_price,
	total_amount, status, delivery_address, delivery_method, requested_delivery_date, notes,
	rejection_reason, approved_at, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.SupplierID, &o.CustomerID, &o.InventoryID,
		&o.Quantity, &o.UnitPrice, &o.TotalAmount, &o.Status, &o.DeliveryAddress,
		&o.DeliveryMethod, &o.RequestedDeliveryDate, &o.Notes, &o.RejectionReason,
		&o.ApprovedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// NextSequence bumps the per-day counter. The upsert holds the day's row
// lock until commit, so concurrent creations receive distinct numbers.
func (r *OrderRepo) NextSequence(ctx context.Context, day string) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `
		INSERT INTO order_sequences (day, last_seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_seq = order_sequences.last_seq + 1
		RETURNING last_seq`, day).Scan(&seq)
	if err != nil {
		return 0, apperr.Storage("next order sequence", err)
	}
	return seq, nil
}

func (r *OrderRepo) Insert(ctx context.Context, o *orders.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	err := r.tx.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, supplier_id, customer_id, inventory_id, quantity,
			unit_price, total_amount, status, delivery_address, delivery_method,
			requested_delivery_date, notes, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULLIF($14,''))
		RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.SupplierID, o.CustomerID, o.InventoryID, o.Quantity,
		o.UnitPrice, o.TotalAmount, o.Status, o.DeliveryAddress, o.DeliveryMethod,
		o.RequestedDeliveryDate, o.Notes, o.IdempotencyKey,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	return classify("order", err)
}

// FindByIdempotencyKey takes a transaction-scoped advisory lock on
// (customer, key) before looking the order up. A concurrent request with the
// same key blocks here until the first transaction commits, then sees its
// row. The unique index backs this up.
func (r *OrderRepo) FindByIdempotencyKey(ctx context.Context, customerID, key string) (orders.Order, bool, error) {
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, customerID+":"+key); err != nil {
		return orders.Order{}, false, apperr.Storage("lock idempotency key", err)
	}
	o, err := scanOrder(r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 AND idempotency_key=$2`, customerID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, classify("order", err)
	}
	o.IdempotencyKey = key
	return o, true, nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	return o, classify("order", err)
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	return o, classify("order", err)
}

// Update writes the mutable columns. Quantity and prices are a snapshot and
// are never rewritten.
func (r *OrderRepo) Update(ctx context.Context, o orders.Order) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE orders SET status=$2, rejection_reason=$3, approved_at=$4, delivered_at=$5,
			delivery_address=$6, notes=$7, updated_at=now()
		WHERE id=$1`,
		o.ID, o.Status, o.RejectionReason, o.ApprovedAt, o.DeliveredAt, o.DeliveryAddress, o.Notes,
	)
	if err != nil {
		return classify("order", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("order")
	}
	return nil
}

func (r *OrderRepo) List(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	var q filter
	q.eq("customer_id", f.CustomerID)
	q.eq("supplier_id", f.SupplierID)
	q.eq("inventory_id", f.InventoryID)
	q.eq("status", string(f.Status))
	sql := `SELECT ` + orderColumns + ` FROM orders` + q.where() + ` ORDER BY created_at DESC, order_number DESC`
	sql += q.page(f.Limit, f.Offset)

	rows, err := r.tx.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, classify("order", err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, classify("order", err)
		}
		out = append(out, o)
	}
	return out, classify("order", rows.Err())
}
