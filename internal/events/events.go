package events

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

const (
	TypeOrderCreated             = "OrderCreated"
	TypeOrderStatusChanged       = "OrderStatusChanged"
	TypeProductionStageStarted   = "ProductionStageStarted"
	TypeProductionStageCompleted = "ProductionStageCompleted"
	TypeInventoryStatusChanged   = "InventoryStatusChanged"
)

const Version = 1

// Envelope wraps every published event. CorrelationID is the order id when
// the event belongs to an order, otherwise the entity id; it doubles as the
// partition key so one order's events stay ordered.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id"`
	SupplierID  string `json:"supplier_id"`
	InventoryID string `json:"inventory_id"`
	Quantity    string `json:"quantity"`
	TotalAmount string `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id"`
	SupplierID  string `json:"supplier_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	ActorID     string `json:"actor_id"`
	Reason      string `json:"reason,omitempty"`
}

type ProductionStagePayload struct {
	RecordID   string `json:"record_id"`
	OrderID    string `json:"order_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	OperatorID string `json:"operator_id"`
}

type InventoryStatusChangedPayload struct {
	InventoryID string `json:"inventory_id"`
	OwnerID     string `json:"owner_id"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// New builds an envelope around payload. Payloads are plain structs, so a
// marshal failure is a programming error.
func New(eventType, producer, correlationID string, payload any) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  Version,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](e Envelope) (T, error) {
	var t T
	err := json.Unmarshal(e.Payload, &t)
	return t, err
}

// Sink receives events after the state they describe has committed. Publish
// must not block on the network and never reports failure to the caller;
// a lost event never undoes committed state.
type Sink interface {
	Publish(ctx context.Context, e Envelope)
}

type discard struct{}

func (discard) Publish(context.Context, Envelope) {}

// Discard drops every event.
var Discard Sink = discard{}

// Recorder keeps published events in memory, for tests and local runs.
type Recorder struct {
	ch chan Envelope
}

func NewRecorder(size int) *Recorder { return &Recorder{ch: make(chan Envelope, size)} }

func (r *Recorder) Publish(_ context.Context, e Envelope) {
	select {
	case r.ch <- e:
	default:
	}
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Envelope {
	var out []Envelope
	for {
		select {
		case e := <-r.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

type traceKey struct{}

// WithTrace stores the request id that New-built envelopes should carry.
func WithTrace(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
