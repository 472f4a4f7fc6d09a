package postgres

import (
	"context"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/shopspring/decimal"
)

type ProductionRepo struct{ tx pgx.Tx }

const productionColumns = `id, order_id, stage, status, temperature, humidity, quality_metrics,
	notes, operator_id, started_at, completed_at, created_at, updated_at`

func scanRecord(row pgx.Row) (production.Record, error) {
	var (
		rec         production.Record
		temp, humid decimal.NullDecimal
	)
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.Stage, &rec.Status, &temp, &humid,
		&rec.QualityMetrics, &rec.Notes, &rec.OperatorID, &rec.StartedAt, &rec.CompletedAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if temp.Valid {
		rec.Temperature = &temp.Decimal
	}
	if humid.Valid {
		rec.Humidity = &humid.Decimal
	}
	return rec, err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// Insert relies on the (order_id, stage) unique constraint so that two
// concurrent starts of one stage cannot both succeed.
func (r *ProductionRepo) Insert(ctx context.Context, rec *production.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := r.tx.QueryRow(ctx, `
		INSERT INTO productions (id, order_id, stage, status, temperature, humidity,
			quality_metrics, notes, operator_id, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		rec.ID, rec.OrderID, rec.Stage, rec.Status, nullDecimal(rec.Temperature),
		nullDecimal(rec.Humidity), nullJSON(rec.QualityMetrics), rec.Notes, rec.OperatorID,
		rec.StartedAt, rec.CompletedAt,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if isUniqueViolation(err, "productions_order_stage_key") {
		return apperr.DuplicateStage(string(rec.Stage))
	}
	return classify("production record", err)
}

func (r *ProductionRepo) Get(ctx context.Context, id string) (production.Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+productionColumns+` FROM productions WHERE id=$1`, id))
	return rec, classify("production record", err)
}

func (r *ProductionRepo) GetForUpdate(ctx context.Context, id string) (production.Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+productionColumns+` FROM productions WHERE id=$1 FOR UPDATE`, id))
	return rec, classify("production record", err)
}

func (r *ProductionRepo) Update(ctx context.Context, rec production.Record) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE productions SET status=$2, temperature=$3, humidity=$4, quality_metrics=$5,
			notes=$6, started_at=$7, completed_at=$8, updated_at=now()
		WHERE id=$1`,
		rec.ID, rec.Status, nullDecimal(rec.Temperature), nullDecimal(rec.Humidity),
		nullJSON(rec.QualityMetrics), rec.Notes, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return classify("production record", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("production record")
	}
	return nil
}

func (r *ProductionRepo) ListByOrder(ctx context.Context, orderID string) ([]production.Record, error) {
	return r.List(ctx, production.Filter{OrderID: orderID})
}

func (r *ProductionRepo) List(ctx context.Context, f production.Filter) ([]production.Record, error) {
	var q filter
	q.eq("order_id", f.OrderID)
	q.eq("stage", string(f.Stage))
	q.eq("status", string(f.Status))
	sql := `SELECT ` + productionColumns + ` FROM productions` + q.where() + ` ORDER BY created_at, id`
	sql += q.page(f.Limit, f.Offset)

	rows, err := r.tx.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, classify("production record", err)
	}
	defer rows.Close()

	var out []production.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify("production record", err)
		}
		out = append(out, rec)
	}
	return out, classify("production record", rows.Err())
}
