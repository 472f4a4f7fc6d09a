package orders

import (
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/shopspring/decimal"
	"strings"
	"time"
	"unicode/utf8"
)

// Normalize validates a create request against the current time and fills
// defaults. A requested delivery date must fall after today.
func (in *CreateInput) Normalize(now time.Time) error {
	in.InventoryID = strings.TrimSpace(in.InventoryID)
	if in.InventoryID == "" {
		return apperr.Validation("inventory_id is required")
	}
	if in.Quantity.LessThan(decimal.NewFromInt(1)) {
		return apperr.Validation("quantity must be at least 1")
	}
	if !in.Quantity.Equal(in.Quantity.Round(2)) {
		return apperr.Validation("quantity supports at most two decimal places")
	}

	switch in.DeliveryMethod {
	case "":
		in.DeliveryMethod = DeliveryPickup
	case DeliveryPickup, DeliveryDelivery:
	default:
		return apperr.Validation("delivery_method must be pickup or delivery")
	}
	if in.DeliveryMethod == DeliveryDelivery && strings.TrimSpace(in.DeliveryAddress) == "" {
		return apperr.Validation("delivery_address is required for delivery")
	}

	if in.RequestedDeliveryDate != nil {
		y, m, d := now.UTC().Date()
		tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
		if in.RequestedDeliveryDate.UTC().Before(tomorrow) {
			return apperr.Validation("requested_delivery_date must be after today")
		}
	}
	if utf8.RuneCountInString(in.Notes) > MaxNotesLen {
		return apperr.Validation("notes must be at most %d characters", MaxNotesLen)
	}
	return nil
}
