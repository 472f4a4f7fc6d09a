package service

import (
	"context"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/store"
	"go.uber.org/zap"
)

// Inventory is the producer-facing side of the ledger plus the warehouse
// status flow. Reservations happen only through Orders.
type Inventory struct {
	Deps
}

func (s *Inventory) Create(ctx context.Context, actor access.Actor, in inventory.Item) (inventory.Item, error) {
	if err := authorize(actor, access.Require(access.RolePetani), "list inventory"); err != nil {
		return inventory.Item{}, s.fail(ctx, "create inventory", err)
	}
	it, err := inventory.NewItem(actor.ID, in)
	if err != nil {
		return inventory.Item{}, s.fail(ctx, "create inventory", err)
	}
	err = s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Items().Insert(ctx, &it)
	})
	if err != nil {
		return inventory.Item{}, s.fail(ctx, "create inventory", err)
	}
	s.log(ctx).Info("inventory listed", zap.String("inventory_id", it.ID), zap.String("owner_id", it.OwnerID))
	return it, nil
}

// Update applies an owner edit. Only the owning producer or an admin may
// edit; existing orders keep their price snapshot.
func (s *Inventory) Update(ctx context.Context, actor access.Actor, id string, e inventory.Edit) (inventory.Item, error) {
	if err := authorize(actor, access.Require(access.RolePetani, access.RoleAdmin), "edit inventory"); err != nil {
		return inventory.Item{}, s.fail(ctx, "update inventory", err)
	}
	var it inventory.Item
	var from inventory.Status
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		it, err = tx.Items().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role == access.RolePetani && it.OwnerID != actor.ID {
			return apperr.Unauthorized("only the owner can edit this item")
		}
		from = it.Status
		if err := inventory.ApplyEdit(&it, e); err != nil {
			return err
		}
		return tx.Items().Update(ctx, it)
	})
	if err != nil {
		return inventory.Item{}, s.fail(ctx, "update inventory", err)
	}
	if from != it.Status {
		s.announceItem(ctx, it, from)
	}
	return it, nil
}

// MarkStatus is the warehouse and outbound flow.
func (s *Inventory) MarkStatus(ctx context.Context, actor access.Actor, id string, to inventory.Status) (inventory.Item, error) {
	rule := access.Require(access.RoleAdmin, access.RoleManagement).
		WithSubroles(access.SubroleGudangIn, access.SubroleGudangOut)
	if err := authorize(actor, rule, "change inventory status"); err != nil {
		return inventory.Item{}, s.fail(ctx, "mark inventory status", err)
	}
	var it inventory.Item
	var from inventory.Status
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.Items().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = cur.Status
		it, err = inventory.MarkStatus(ctx, tx.Items(), id, to)
		return err
	})
	if err != nil {
		return inventory.Item{}, s.fail(ctx, "mark inventory status", err)
	}
	if from != it.Status {
		s.announceItem(ctx, it, from)
	}
	return it, nil
}

func (s *Inventory) announceItem(ctx context.Context, it inventory.Item, from inventory.Status) {
	s.log(ctx).Info("inventory status changed",
		zap.String("inventory_id", it.ID),
		zap.String("from", string(from)),
		zap.String("to", string(it.Status)),
	)
	s.publish(ctx, events.TypeInventoryStatusChanged, it.ID, events.InventoryStatusChangedPayload{
		InventoryID: it.ID,
		OwnerID:     it.OwnerID,
		From:        string(from),
		To:          string(it.Status),
	})
}

func (s *Inventory) Get(ctx context.Context, actor access.Actor, id string) (inventory.Item, error) {
	if err := authenticated(actor); err != nil {
		return inventory.Item{}, err
	}
	var it inventory.Item
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		it, err = tx.Items().Get(ctx, id)
		return err
	})
	if err != nil {
		return inventory.Item{}, s.fail(ctx, "get inventory", err)
	}
	return it, nil
}

// List browses the catalogue. Producers only see their own listings.
func (s *Inventory) List(ctx context.Context, actor access.Actor, f inventory.Filter) ([]inventory.Item, error) {
	if err := authenticated(actor); err != nil {
		return nil, err
	}
	if actor.Role == access.RolePetani {
		f.OwnerID = actor.ID
	}
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset)

	var out []inventory.Item
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Items().List(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list inventory", err)
	}
	return out, nil
}
