package memstore

import (
	"context"
	"errors"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/orders"
	"slices"
	"strings"
)

var (
	errNegativeQuantity = errors.New("quantity check constraint violated")
	errDuplicateNumber  = errors.New("order number already exists")
	errDuplicateKey     = errors.New("idempotency key already used by this customer")
)

type orderRepo struct{ t *tx }

func (r orderRepo) NextSequence(_ context.Context, day string) (int, error) {
	r.t.st.sequences[day]++
	return r.t.st.sequences[day], nil
}

func (r orderRepo) Insert(_ context.Context, o *orders.Order) error {
	for _, existing := range r.t.st.orders {
		if existing.OrderNumber == o.OrderNumber {
			return apperr.Storage("insert order", errDuplicateNumber)
		}
		if o.IdempotencyKey != "" && existing.CustomerID == o.CustomerID && existing.IdempotencyKey == o.IdempotencyKey {
			return apperr.Storage("insert order", errDuplicateKey)
		}
	}
	if o.ID == "" {
		o.ID = newID()
	}
	now := r.t.now()
	o.CreatedAt, o.UpdatedAt = now, now
	r.t.st.orders[o.ID] = *o
	return nil
}

// FindByIdempotencyKey needs no extra lock: transactions are already
// serialized by the store mutex.
func (r orderRepo) FindByIdempotencyKey(_ context.Context, customerID, key string) (orders.Order, bool, error) {
	for _, o := range r.t.st.orders {
		if o.CustomerID == customerID && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return orders.Order{}, false, nil
}

func (r orderRepo) Get(_ context.Context, id string) (orders.Order, error) {
	o, ok := r.t.st.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order")
	}
	return o, nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id string) (orders.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepo) Update(_ context.Context, o orders.Order) error {
	if _, ok := r.t.st.orders[o.ID]; !ok {
		return apperr.NotFound("order")
	}
	o.UpdatedAt = r.t.now()
	r.t.st.orders[o.ID] = o
	return nil
}

func (r orderRepo) List(_ context.Context, f orders.Filter) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range r.t.st.orders {
		if matchOrder(o, f) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b orders.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.OrderNumber, a.OrderNumber)
	})
	return page(out, f.Limit, f.Offset), nil
}

func matchOrder(o orders.Order, f orders.Filter) bool {
	switch {
	case f.CustomerID != "" && o.CustomerID != f.CustomerID:
		return false
	case f.SupplierID != "" && o.SupplierID != f.SupplierID:
		return false
	case f.InventoryID != "" && o.InventoryID != f.InventoryID:
		return false
	case f.Status != "" && o.Status != f.Status:
		return false
	}
	return true
}
