package inventory

import (
	"encoding/json"
	"fmt"
	"github.com/shopspring/decimal"
	"time"
)

type Status string

const (
	StatusAvailable        Status = "available"
	StatusReserved         Status = "reserved"
	StatusProcessing       Status = "processing"
	StatusSoldOut          Status = "sold_out"
	StatusCompleted        Status = "completed"
	StatusReadyForShipment Status = "ready_for_shipment"
	StatusShipped          Status = "shipped"
)

var statuses = []Status{
	StatusAvailable, StatusReserved, StatusProcessing, StatusSoldOut,
	StatusCompleted, StatusReadyForShipment, StatusShipped,
}

func Statuses() []Status { return append([]Status(nil), statuses...) }

func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown inventory status %q", s)
}

// Item is a sellable stock record owned by a producer. Quantity never goes
// below zero and reaching zero flips Status to sold_out.
type Item struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	ProductName  string          `json:"product_name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Status       Status          `json:"status"`
	HarvestDate  *time.Time      `json:"harvest_date,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Available reports whether new orders may reserve from the item.
func (it Item) Available() bool { return it.Status == StatusAvailable }

type Filter struct {
	OwnerID  string
	Status   Status
	Category string
	Limit    int
	Offset   int
}

// Edit carries owner-initiated changes; nil fields are left untouched.
type Edit struct {
	ProductName  *string          `json:"product_name"`
	Description  *string          `json:"description"`
	Category     *string          `json:"category"`
	Unit         *string          `json:"unit"`
	Quantity     *decimal.Decimal `json:"quantity"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
	HarvestDate  *time.Time       `json:"harvest_date"`
	Metadata     json.RawMessage  `json:"metadata"`
}
