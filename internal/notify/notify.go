// Package notify turns committed domain events into user notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"time"
)

const (
	TypeOrder      = "order"
	TypeProduction = "production"
	TypeInventory  = "inventory"

	StatusUnread = "unread"
)

// Notification is one row per (EventID, UserID); writers ignore a repeat of
// that pair, so re-handling an event never duplicates a row.
type Notification struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Writer interface {
	Save(ctx context.Context, n Notification) error
}

// Deduper remembers processed event ids. Claim returns false when id was
// already claimed; Forget undoes a claim whose processing failed.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Handler struct {
	Writer Writer
	Dedup  Deduper
	Log    *zap.Logger
}

// HandleMessage is installed as the consumer handler. Returning nil lets
// the consumer commit the offset.
func (h *Handler) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, nothing to retry
		h.Log.Warn("dropping undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	return h.Handle(ctx, env)
}

func (h *Handler) Handle(ctx context.Context, env events.Envelope) error {
	notes, err := Build(env)
	if err != nil {
		h.Log.Warn("dropping malformed event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if len(notes) == 0 {
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}
		if !first {
			h.Log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
			return nil
		}
	}

	for _, n := range notes {
		if err := h.Writer.Save(ctx, n); err != nil {
			if h.Dedup != nil {
				_ = h.Dedup.Forget(ctx, env.EventID)
			}
			return fmt.Errorf("save notification: %w", err)
		}
	}
	h.Log.Info("notifications written",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.Int("count", len(notes)),
	)
	return nil
}

// Build maps an event to the notifications it produces. Unknown event
// types produce none.
func Build(env events.Envelope) ([]Notification, error) {
	switch env.EventType {
	case events.TypeOrderCreated:
		p, err := events.Decode[events.OrderCreatedPayload](env)
		if err != nil {
			return nil, err
		}
		return []Notification{{
			UserID:  p.SupplierID,
			Title:   "New order received",
			Message: fmt.Sprintf("Order %s for %s units is waiting for your approval.", p.OrderNumber, p.Quantity),
			Type:    TypeOrder,
			Status:  StatusUnread,
			Data:    env.Payload,
			EventID: env.EventID,
		}}, nil

	case events.TypeOrderStatusChanged:
		p, err := events.Decode[events.OrderStatusChangedPayload](env)
		if err != nil {
			return nil, err
		}
		n := Notification{
			UserID:  p.CustomerID,
			Title:   "Order status updated",
			Message: fmt.Sprintf("Order %s is now %s.", p.OrderNumber, p.To),
			Type:    TypeOrder,
			Status:  StatusUnread,
			Data:    env.Payload,
			EventID: env.EventID,
		}
		switch orders.Status(p.To) {
		case orders.StatusReadyForDelivery:
			n.Title = "Order ready for delivery"
			n.Message = fmt.Sprintf("Production of order %s is finished and it is ready for delivery.", p.OrderNumber)
		case orders.StatusRejected:
			n.Title = "Order rejected"
			if p.Reason != "" {
				n.Message = fmt.Sprintf("Order %s was rejected: %s", p.OrderNumber, p.Reason)
			}
		}
		out := []Notification{n}
		if orders.Status(p.To) == orders.StatusCancelled {
			out = append(out, Notification{
				UserID:  p.SupplierID,
				Title:   "Order cancelled",
				Message: fmt.Sprintf("Order %s was cancelled by the customer.", p.OrderNumber),
				Type:    TypeOrder,
				Status:  StatusUnread,
				Data:    env.Payload,
				EventID: env.EventID,
			})
		}
		return out, nil
	}
	return nil, nil
}
