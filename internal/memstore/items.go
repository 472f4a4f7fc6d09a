package memstore

import (
	"context"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/inventory"
	"slices"
	"strings"
)

type itemRepo struct{ t *tx }

func (r itemRepo) Insert(_ context.Context, it *inventory.Item) error {
	if it.ID == "" {
		it.ID = newID()
	}
	now := r.t.now()
	it.CreatedAt, it.UpdatedAt = now, now
	r.t.st.items[it.ID] = *it
	return nil
}

func (r itemRepo) Get(_ context.Context, id string) (inventory.Item, error) {
	it, ok := r.t.st.items[id]
	if !ok {
		return inventory.Item{}, apperr.NotFound("inventory item")
	}
	return it, nil
}

func (r itemRepo) GetForUpdate(ctx context.Context, id string) (inventory.Item, error) {
	return r.Get(ctx, id)
}

func (r itemRepo) Update(_ context.Context, it inventory.Item) error {
	if _, ok := r.t.st.items[it.ID]; !ok {
		return apperr.NotFound("inventory item")
	}
	if it.Quantity.IsNegative() {
		return apperr.Storage("update inventory", errNegativeQuantity)
	}
	it.UpdatedAt = r.t.now()
	r.t.st.items[it.ID] = it
	return nil
}

func (r itemRepo) List(_ context.Context, f inventory.Filter) ([]inventory.Item, error) {
	var out []inventory.Item
	for _, it := range r.t.st.items {
		if f.OwnerID != "" && it.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.Category != "" && !strings.EqualFold(it.Category, f.Category) {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b inventory.Item) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(out, f.Limit, f.Offset), nil
}
