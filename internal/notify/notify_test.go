package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/memstore"
	"github.com/katoapp/agrimarket/internal/notify"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"sync"
	"testing"
)

type memDedup struct {
	mu       sync.Mutex
	seen     map[string]bool
	claimErr error
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimErr != nil {
		return false, d.claimErr
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type failingWriter struct{ calls int }

func (w *failingWriter) Save(context.Context, notify.Notification) error {
	w.calls++
	return errors.New("db down")
}

// flakyWriter fails the nth Save once and passes everything else through.
type flakyWriter struct {
	notify.Writer
	n, calls int
}

func (w *flakyWriter) Save(ctx context.Context, n notify.Notification) error {
	w.calls++
	if w.calls == w.n {
		return errors.New("connection reset")
	}
	return w.Writer.Save(ctx, n)
}

func statusChanged(to, reason string) events.Envelope {
	return events.New(events.TypeOrderStatusChanged, "test", "order-1", events.OrderStatusChangedPayload{
		OrderID:     "order-1",
		OrderNumber: "ORD-20260101-001",
		CustomerID:  "cust-1",
		SupplierID:  "farm-1",
		From:        "pending",
		To:          to,
		Reason:      reason,
	})
}

func TestBuild(t *testing.T) {
	created := events.New(events.TypeOrderCreated, "test", "order-1", events.OrderCreatedPayload{
		OrderID: "order-1", OrderNumber: "ORD-20260101-001", CustomerID: "cust-1", SupplierID: "farm-1", Quantity: "4",
	})

	tests := []struct {
		name       string
		env        events.Envelope
		recipients []string
		title      string
	}{
		{"created goes to supplier", created, []string{"farm-1"}, "New order received"},
		{"approved goes to customer", statusChanged("approved", ""), []string{"cust-1"}, "Order status updated"},
		{"ready for delivery", statusChanged("ready_for_delivery", ""), []string{"cust-1"}, "Order ready for delivery"},
		{"rejected", statusChanged("rejected", "no stock"), []string{"cust-1"}, "Order rejected"},
		{"cancelled reaches both parties", statusChanged("cancelled", ""), []string{"cust-1", "farm-1"}, "Order status updated"},
		{"stage events are silent", events.New(events.TypeProductionStageStarted, "test", "order-1", events.ProductionStagePayload{}), nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := notify.Build(tt.env)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(got) != len(tt.recipients) {
				t.Fatalf("got %d notifications, want %d", len(got), len(tt.recipients))
			}
			for i, n := range got {
				if n.UserID != tt.recipients[i] {
					t.Errorf("notification %d to %s, want %s", i, n.UserID, tt.recipients[i])
				}
				if n.Status != notify.StatusUnread {
					t.Errorf("notification %d status %s", i, n.Status)
				}
			}
			if len(got) > 0 && got[0].Title != tt.title {
				t.Errorf("title = %q, want %q", got[0].Title, tt.title)
			}
		})
	}
}

func TestHandleDeduplicates(t *testing.T) {
	db := memstore.New()
	h := &notify.Handler{Writer: db, Dedup: &memDedup{seen: map[string]bool{}}, Log: zap.NewNop()}
	env := statusChanged("approved", "")

	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), env); err != nil {
			t.Fatalf("Handle #%d: %v", i, err)
		}
	}
	if got := db.Notifications("cust-1"); len(got) != 1 {
		t.Fatalf("customer has %d notifications, want 1", len(got))
	}
}

func TestHandleReleasesClaimOnWriteFailure(t *testing.T) {
	dedup := &memDedup{seen: map[string]bool{}}
	w := &failingWriter{}
	h := &notify.Handler{Writer: w, Dedup: dedup, Log: zap.NewNop()}
	env := statusChanged("approved", "")

	if err := h.Handle(context.Background(), env); err == nil {
		t.Fatal("expected write failure")
	}
	if err := h.Handle(context.Background(), env); err == nil {
		t.Fatal("retry must reach the writer again")
	}
	if w.calls != 2 {
		t.Fatalf("writer called %d times, want 2", w.calls)
	}
}

func TestHandleClaimError(t *testing.T) {
	h := &notify.Handler{Writer: memstore.New(), Dedup: &memDedup{claimErr: errors.New("redis down")}, Log: zap.NewNop()}
	if err := h.Handle(context.Background(), statusChanged("approved", "")); err == nil {
		t.Fatal("a failed claim must be retried, not skipped")
	}
}

func TestHandleMessageDropsPoison(t *testing.T) {
	db := memstore.New()
	h := &notify.Handler{Writer: db, Log: zap.NewNop()}

	if err := h.HandleMessage(context.Background(), kafkago.Message{Value: []byte("{not json")}); err != nil {
		t.Fatalf("poison message: %v", err)
	}

	b, err := json.Marshal(statusChanged("delivered", ""))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.HandleMessage(context.Background(), kafkago.Message{Value: b}); err != nil {
		t.Fatalf("valid message: %v", err)
	}
	if got := db.Notifications("cust-1"); len(got) != 1 {
		t.Fatalf("customer has %d notifications, want 1", len(got))
	}
}

func TestHandleRetryAfterPartialWrite(t *testing.T) {
	db := memstore.New()
	h := &notify.Handler{Writer: &flakyWriter{Writer: db, n: 2}, Dedup: &memDedup{seen: map[string]bool{}}, Log: zap.NewNop()}
	env := statusChanged("cancelled", "")

	if err := h.Handle(context.Background(), env); err == nil {
		t.Fatal("expected the second write to fail")
	}
	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("retry: %v", err)
	}
	for _, user := range []string{"cust-1", "farm-1"} {
		if got := db.Notifications(user); len(got) != 1 {
			t.Errorf("%s has %d notifications, want 1", user, len(got))
		}
	}
}
