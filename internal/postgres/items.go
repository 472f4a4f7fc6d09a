package postgres

import (
	"context"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/katoapp/agrimarket/internal/inventory"
)

type ItemRepo struct{ tx pgx.Tx }

const itemColumns = `id, owner_id, product_name, description, category, quantity, unit,
	price_per_unit, status, harvest_date, metadata, created_at, updated_at`

func scanItem(row pgx.Row) (inventory.Item, error) {
	var it inventory.Item
	err := row.Scan(&it.ID, &it.OwnerID, &it.ProductName, &it.Description, &it.Category,
		&it.Quantity, &it.Unit, &it.PricePerUnit, &it.Status, &it.HarvestDate, &it.Metadata,
		&it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *ItemRepo) Insert(ctx context.Context, it *inventory.Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	err := r.tx.QueryRow(ctx, `
		INSERT INTO inventory (id, owner_id, product_name, description, category, quantity, unit,
			price_per_unit, status, harvest_date, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		it.ID, it.OwnerID, it.ProductName, it.Description, it.Category, it.Quantity, it.Unit,
		it.PricePerUnit, it.Status, it.HarvestDate, nullJSON(it.Metadata),
	).Scan(&it.CreatedAt, &it.UpdatedAt)
	return classify("inventory item", err)
}

func (r *ItemRepo) Get(ctx context.Context, id string) (inventory.Item, error) {
	it, err := scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory WHERE id=$1`, id))
	return it, classify("inventory item", err)
}

// GetForUpdate locks the row until the transaction ends; concurrent
// reservations on the same item queue here.
func (r *ItemRepo) GetForUpdate(ctx context.Context, id string) (inventory.Item, error) {
	it, err := scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory WHERE id=$1 FOR UPDATE`, id))
	return it, classify("inventory item", err)
}

func (r *ItemRepo) Update(ctx context.Context, it inventory.Item) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE inventory SET product_name=$2, description=$3, category=$4, quantity=$5, unit=$6,
			price_per_unit=$7, status=$8, harvest_date=$9, metadata=$10, updated_at=now()
		WHERE id=$1`,
		it.ID, it.ProductName, it.Description, it.Category, it.Quantity, it.Unit,
		it.PricePerUnit, it.Status, it.HarvestDate, nullJSON(it.Metadata),
	)
	if err != nil {
		return classify("inventory item", err)
	}
	if ct.RowsAffected() != 1 {
		return classify("inventory item", pgx.ErrNoRows)
	}
	return nil
}

func (r *ItemRepo) List(ctx context.Context, f inventory.Filter) ([]inventory.Item, error) {
	var q filter
	q.eq("owner_id", f.OwnerID)
	q.eq("status", string(f.Status))
	if f.Category != "" {
		q.args = append(q.args, f.Category)
		q.conds = append(q.conds, "lower(category) = lower($"+itoa(len(q.args))+")")
	}
	sql := `SELECT ` + itemColumns + ` FROM inventory` + q.where() + ` ORDER BY created_at DESC, id`
	sql += q.page(f.Limit, f.Offset)

	rows, err := r.tx.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, classify("inventory item", err)
	}
	defer rows.Close()

	var out []inventory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, classify("inventory item", err)
		}
		out = append(out, it)
	}
	return out, classify("inventory item", rows.Err())
}
