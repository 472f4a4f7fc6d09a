package service

import (
	"context"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/store"
)

// Stats serves the read-only projections. They are scoped like the
// corresponding list endpoints.
type Stats struct {
	Reader store.StatsReader
}

func (s *Stats) Orders(ctx context.Context, actor access.Actor) (store.OrderStats, error) {
	if err := authenticated(actor); err != nil {
		return store.OrderStats{}, err
	}
	return s.Reader.OrderStats(ctx, orders.ScopeFilter(actor, orders.Filter{}))
}

func (s *Stats) Production(ctx context.Context, actor access.Actor) (store.ProductionStats, error) {
	if !staff(actor) || actor.Validate() != nil {
		return store.ProductionStats{}, apperr.Unauthorized("production statistics are internal")
	}
	return s.Reader.ProductionStats(ctx)
}

func (s *Stats) Inventory(ctx context.Context, actor access.Actor) (store.InventoryStats, error) {
	if err := authenticated(actor); err != nil {
		return store.InventoryStats{}, err
	}
	owner := ""
	if actor.Role == access.RolePetani {
		owner = actor.ID
	}
	return s.Reader.InventoryStats(ctx, owner)
}
