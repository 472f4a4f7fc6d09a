package postgres

import (
	"context"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/katoapp/agrimarket/internal/store"
	"github.com/shopspring/decimal"
)

// Stats answers the statistics projections with plain aggregates outside
// any transaction.
type Stats struct {
	DB *pgxpool.Pool
}

var _ store.StatsReader = (*Stats)(nil)

func (s *Stats) OrderStats(ctx context.Context, f orders.Filter) (store.OrderStats, error) {
	var q filter
	q.eq("customer_id", f.CustomerID)
	q.eq("supplier_id", f.SupplierID)
	rows, err := s.DB.Query(ctx, `SELECT status, count(*), coalesce(sum(total_amount), 0)
		FROM orders`+q.where()+` GROUP BY status`, q.args...)
	if err != nil {
		return store.OrderStats{}, apperr.Storage("order statistics", err)
	}
	defer rows.Close()

	out := store.OrderStats{ByStatus: map[orders.Status]int{}}
	for rows.Next() {
		var (
			st  orders.Status
			n   int
			sum decimal.Decimal
		)
		if err := rows.Scan(&st, &n, &sum); err != nil {
			return store.OrderStats{}, apperr.Storage("order statistics", err)
		}
		out.ByStatus[st] = n
		out.Total += n
		switch {
		case store.CountsAsRevenue(st):
			out.TotalRevenue = out.TotalRevenue.Add(sum)
		case store.CountsAsPendingRevenue(st):
			out.PendingRevenue = out.PendingRevenue.Add(sum)
		}
	}
	if err := rows.Err(); err != nil {
		return store.OrderStats{}, apperr.Storage("order statistics", err)
	}
	return out, nil
}

func (s *Stats) ProductionStats(ctx context.Context) (store.ProductionStats, error) {
	out := store.ProductionStats{
		ByStatus: map[production.Status]int{},
		ByStage:  map[production.Stage]int{},
	}
	rows, err := s.DB.Query(ctx, `SELECT stage, status, count(*) FROM productions GROUP BY stage, status`)
	if err != nil {
		return out, apperr.Storage("production statistics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stage  production.Stage
			status production.Status
			n      int
		)
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return out, apperr.Storage("production statistics", err)
		}
		out.ByStage[stage] += n
		out.ByStatus[status] += n
		out.Total += n
	}
	if err := rows.Err(); err != nil {
		return out, apperr.Storage("production statistics", err)
	}

	err = s.DB.QueryRow(ctx, `
		SELECT coalesce(avg(extract(epoch FROM completed_at - started_at) / 3600), 0)::float8
		FROM productions
		WHERE status = 'completed' AND started_at IS NOT NULL AND completed_at IS NOT NULL`,
	).Scan(&out.AvgCompletionHours)
	if err != nil {
		return out, apperr.Storage("production statistics", err)
	}
	return out, nil
}

func (s *Stats) InventoryStats(ctx context.Context, ownerID string) (store.InventoryStats, error) {
	var q filter
	q.eq("owner_id", ownerID)
	rows, err := s.DB.Query(ctx, `
		SELECT status, count(*), coalesce(sum(quantity), 0), coalesce(sum(quantity * price_per_unit), 0)
		FROM inventory`+q.where()+` GROUP BY status`, q.args...)
	if err != nil {
		return store.InventoryStats{}, apperr.Storage("inventory statistics", err)
	}
	defer rows.Close()

	out := store.InventoryStats{ByStatus: map[inventory.Status]int{}}
	for rows.Next() {
		var (
			st         inventory.Status
			n          int
			qty, value decimal.Decimal
		)
		if err := rows.Scan(&st, &n, &qty, &value); err != nil {
			return store.InventoryStats{}, apperr.Storage("inventory statistics", err)
		}
		out.ByStatus[st] = n
		out.Total += n
		if st == inventory.StatusAvailable {
			out.AvailableQuantity = qty
			out.CatalogueValue = value
		}
	}
	if err := rows.Err(); err != nil {
		return store.InventoryStats{}, apperr.Storage("inventory statistics", err)
	}
	return out, nil
}
