package orders

import (
	"context"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/shopspring/decimal"
	"time"
)

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

const MaxNotesLen = 1000

// Order is a customer's purchase from one inventory item. Quantity and
// UnitPrice are copied at creation and never change afterwards.
type Order struct {
	ID                    string          `json:"id"`
	OrderNumber           string          `json:"order_number"`
	SupplierID            string          `json:"supplier_id"`
	CustomerID            string          `json:"customer_id"`
	InventoryID           string          `json:"inventory_id"`
	Quantity              decimal.Decimal `json:"quantity"`
	UnitPrice             decimal.Decimal `json:"unit_price"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	Status                Status          `json:"status"`
	DeliveryAddress       string          `json:"delivery_address,omitempty"`
	DeliveryMethod        DeliveryMethod  `json:"delivery_method"`
	RequestedDeliveryDate *time.Time      `json:"requested_delivery_date,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	RejectionReason       string          `json:"rejection_reason,omitempty"`
	ApprovedAt            *time.Time      `json:"approved_at,omitempty"`
	DeliveredAt           *time.Time      `json:"delivered_at,omitempty"`
	IdempotencyKey        string          `json:"-"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CreateInput is what a customer submits when placing an order.
type CreateInput struct {
	InventoryID           string          `json:"inventory_id"`
	Quantity              decimal.Decimal `json:"quantity"`
	DeliveryAddress       string          `json:"delivery_address"`
	DeliveryMethod        DeliveryMethod  `json:"delivery_method"`
	RequestedDeliveryDate *time.Time      `json:"requested_delivery_date"`
	Notes                 string          `json:"notes"`
}

// MaxIdempotencyKeyLen bounds the Idempotency-Key header.
const MaxIdempotencyKeyLen = 255

type Filter struct {
	CustomerID  string
	SupplierID  string
	InventoryID string
	Status      Status
	Limit       int
	Offset      int
}

// Store persists orders inside a transaction. NextSequence must hand out
// strictly increasing values per day even when called concurrently.
type Store interface {
	NextSequence(ctx context.Context, day string) (int, error)
	Insert(ctx context.Context, o *Order) error
	// FindByIdempotencyKey returns the customer's order created under key.
	// It must serialize concurrent callers with the same key until the
	// enclosing transaction ends, so only one of them can insert.
	FindByIdempotencyKey(ctx context.Context, customerID, key string) (Order, bool, error)
	Get(ctx context.Context, id string) (Order, error)
	GetForUpdate(ctx context.Context, id string) (Order, error)
	Update(ctx context.Context, o Order) error
	List(ctx context.Context, f Filter) ([]Order, error)
}

// CanView reports whether a reads o. Customers see their purchases,
// producers their sales, internal staff everything.
func CanView(a access.Actor, o Order) bool {
	switch a.Role {
	case access.RoleAdmin, access.RoleManagement:
		return true
	case access.RoleCustomer:
		return o.CustomerID == a.ID
	case access.RolePetani:
		return o.SupplierID == a.ID
	}
	return false
}

// ScopeFilter narrows f to what a may list.
func ScopeFilter(a access.Actor, f Filter) Filter {
	switch a.Role {
	case access.RoleCustomer:
		f.CustomerID = a.ID
	case access.RolePetani:
		f.SupplierID = a.ID
	}
	return f
}
