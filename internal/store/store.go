// Package store defines the transactional boundary shared by the postgres
// and in-memory backends.
package store

import (
	"context"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/shopspring/decimal"
)

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Items() inventory.Store
	Orders() orders.Store
	Productions() production.Store
}

// Runner executes fn in a transaction. A nil return commits; any error,
// including a panic, rolls every write back.
type Runner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type OrderStats struct {
	Total          int                   `json:"total"`
	ByStatus       map[orders.Status]int `json:"by_status"`
	TotalRevenue   decimal.Decimal       `json:"total_revenue"`
	PendingRevenue decimal.Decimal       `json:"pending_revenue"`
}

type ProductionStats struct {
	Total              int                       `json:"total"`
	ByStatus           map[production.Status]int `json:"by_status"`
	ByStage            map[production.Stage]int  `json:"by_stage"`
	AvgCompletionHours float64                   `json:"avg_completion_hours"`
}

type InventoryStats struct {
	Total             int                      `json:"total"`
	ByStatus          map[inventory.Status]int `json:"by_status"`
	AvailableQuantity decimal.Decimal          `json:"available_quantity"`
	CatalogueValue    decimal.Decimal          `json:"catalogue_value"`
}

// StatsReader serves the read-only statistics projections. Filters carry
// the caller's visibility scope.
type StatsReader interface {
	OrderStats(ctx context.Context, f orders.Filter) (OrderStats, error)
	ProductionStats(ctx context.Context) (ProductionStats, error)
	InventoryStats(ctx context.Context, ownerID string) (InventoryStats, error)
}

// Revenue buckets used by OrderStats.
func CountsAsRevenue(s orders.Status) bool {
	return s == orders.StatusCompleted || s == orders.StatusDelivered
}

func CountsAsPendingRevenue(s orders.Status) bool {
	switch s {
	case orders.StatusPending, orders.StatusApproved, orders.StatusInProduction, orders.StatusReadyForDelivery:
		return true
	}
	return false
}
