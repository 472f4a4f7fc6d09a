package inventory

import (
	"context"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/shopspring/decimal"
)

// Store is the transaction-scoped persistence of inventory rows. GetForUpdate
// must hold the row exclusively until the enclosing transaction ends; that
// lock is what serializes concurrent reservations on one item.
type Store interface {
	Insert(ctx context.Context, it *Item) error
	Get(ctx context.Context, id string) (Item, error)
	GetForUpdate(ctx context.Context, id string) (Item, error)
	Update(ctx context.Context, it Item) error
	List(ctx context.Context, f Filter) ([]Item, error)
}

// ValidateQuantity accepts positive quantities with at most two decimals,
// matching the numeric(12,2) column.
func ValidateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}
	if !q.Equal(q.Round(2)) {
		return apperr.Validation("quantity supports at most two decimal places")
	}
	return nil
}

// Reserve decrements stock for a new order. The check and the decrement run
// against the locked row, so two reservations can never jointly overdraw it.
func Reserve(ctx context.Context, st Store, itemID string, qty decimal.Decimal) (Item, error) {
	if err := ValidateQuantity(qty); err != nil {
		return Item{}, err
	}
	it, err := st.GetForUpdate(ctx, itemID)
	if err != nil {
		return Item{}, err
	}

	switch {
	case it.Status == StatusSoldOut:
		return Item{}, apperr.InsufficientStock(it.Quantity, qty)
	case !it.Available():
		return Item{}, apperr.NotAvailable("inventory item is %s", it.Status)
	case it.Quantity.LessThan(qty):
		return Item{}, apperr.InsufficientStock(it.Quantity, qty)
	}

	it.Quantity = it.Quantity.Sub(qty)
	if it.Quantity.IsZero() {
		it.Status = StatusSoldOut
	}
	if err := st.Update(ctx, it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Release returns a reservation to stock. An item that was sold out only
// because its quantity hit zero becomes available again.
func Release(ctx context.Context, st Store, itemID string, qty decimal.Decimal) (Item, error) {
	if err := ValidateQuantity(qty); err != nil {
		return Item{}, err
	}
	it, err := st.GetForUpdate(ctx, itemID)
	if err != nil {
		return Item{}, err
	}

	it.Quantity = it.Quantity.Add(qty)
	if it.Status == StatusSoldOut {
		it.Status = StatusAvailable
	}
	if err := st.Update(ctx, it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// MarkStatus moves an item to a warehouse/outbound status without touching
// quantity. available and sold_out are derived from quantity and cannot be
// set directly; shipped requires ready_for_shipment.
func MarkStatus(ctx context.Context, st Store, itemID string, to Status) (Item, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return Item{}, apperr.Validation("%v", err)
	}
	if to == StatusAvailable || to == StatusSoldOut {
		return Item{}, apperr.Validation("status %s follows quantity and cannot be set directly", to)
	}
	it, err := st.GetForUpdate(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if to == StatusShipped && it.Status != StatusReadyForShipment {
		return Item{}, apperr.InvalidState("item must be ready_for_shipment before it is shipped, is %s", it.Status)
	}
	if it.Status == to {
		return it, nil
	}

	it.Status = to
	if err := st.Update(ctx, it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// ApplyEdit applies an owner edit in memory. Quantity edits keep the
// zero/sold_out pairing; price edits never reach existing orders because
// orders carry their own unit price snapshot.
func ApplyEdit(it *Item, e Edit) error {
	if e.ProductName != nil {
		if *e.ProductName == "" {
			return apperr.Validation("product_name must not be empty")
		}
		it.ProductName = *e.ProductName
	}
	if e.Description != nil {
		it.Description = *e.Description
	}
	if e.Category != nil {
		if *e.Category == "" {
			return apperr.Validation("category must not be empty")
		}
		it.Category = *e.Category
	}
	if e.Unit != nil {
		it.Unit = *e.Unit
	}
	if e.PricePerUnit != nil {
		if e.PricePerUnit.IsNegative() {
			return apperr.Validation("price_per_unit must not be negative")
		}
		it.PricePerUnit = *e.PricePerUnit
	}
	if e.HarvestDate != nil {
		it.HarvestDate = e.HarvestDate
	}
	if e.Metadata != nil {
		it.Metadata = e.Metadata
	}
	if e.Quantity != nil {
		q := *e.Quantity
		if q.IsNegative() {
			return apperr.Validation("quantity must not be negative")
		}
		if !q.Equal(q.Round(2)) {
			return apperr.Validation("quantity supports at most two decimal places")
		}
		it.Quantity = q
		switch {
		case q.IsZero() && it.Status == StatusAvailable:
			it.Status = StatusSoldOut
		case q.IsPositive() && it.Status == StatusSoldOut:
			it.Status = StatusAvailable
		}
	}
	return nil
}

// NewItem validates a producer listing and fills defaults.
func NewItem(ownerID string, it Item) (Item, error) {
	if it.ProductName == "" {
		return Item{}, apperr.Validation("product_name is required")
	}
	if it.Category == "" {
		return Item{}, apperr.Validation("category is required")
	}
	if it.Quantity.IsNegative() || !it.Quantity.Equal(it.Quantity.Round(2)) {
		return Item{}, apperr.Validation("quantity must be a non-negative amount with at most two decimals")
	}
	if it.PricePerUnit.IsNegative() {
		return Item{}, apperr.Validation("price_per_unit must not be negative")
	}
	if it.Unit == "" {
		it.Unit = "kg"
	}
	it.OwnerID = ownerID
	it.Status = StatusAvailable
	if it.Quantity.IsZero() {
		it.Status = StatusSoldOut
	}
	return it, nil
}
