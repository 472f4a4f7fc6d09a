package memstore

import (
	"context"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/notify"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/katoapp/agrimarket/internal/store"
)

var _ store.StatsReader = (*Store)(nil)

func (s *Store) OrderStats(_ context.Context, f orders.Filter) (store.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := store.OrderStats{ByStatus: map[orders.Status]int{}}
	for _, o := range s.st.orders {
		if !matchOrder(o, f) {
			continue
		}
		out.Total++
		out.ByStatus[o.Status]++
		switch {
		case store.CountsAsRevenue(o.Status):
			out.TotalRevenue = out.TotalRevenue.Add(o.TotalAmount)
		case store.CountsAsPendingRevenue(o.Status):
			out.PendingRevenue = out.PendingRevenue.Add(o.TotalAmount)
		}
	}
	return out, nil
}

func (s *Store) ProductionStats(_ context.Context) (store.ProductionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := store.ProductionStats{
		ByStatus: map[production.Status]int{},
		ByStage:  map[production.Stage]int{},
	}
	var hours float64
	var finished int
	for _, rec := range s.st.records {
		out.Total++
		out.ByStatus[rec.Status]++
		out.ByStage[rec.Stage]++
		if rec.Status == production.StatusCompleted && rec.StartedAt != nil && rec.CompletedAt != nil {
			hours += rec.CompletedAt.Sub(*rec.StartedAt).Hours()
			finished++
		}
	}
	if finished > 0 {
		out.AvgCompletionHours = hours / float64(finished)
	}
	return out, nil
}

func (s *Store) InventoryStats(_ context.Context, ownerID string) (store.InventoryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := store.InventoryStats{ByStatus: map[inventory.Status]int{}}
	for _, it := range s.st.items {
		if ownerID != "" && it.OwnerID != ownerID {
			continue
		}
		out.Total++
		out.ByStatus[it.Status]++
		if it.Available() {
			out.AvailableQuantity = out.AvailableQuantity.Add(it.Quantity)
			out.CatalogueValue = out.CatalogueValue.Add(it.Quantity.Mul(it.PricePerUnit))
		}
	}
	return out, nil
}

// Save implements notify.Writer. A repeated (event, user) pair is ignored.
func (s *Store) Save(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.EventID != "" {
		for _, prev := range s.notes {
			if prev.EventID == n.EventID && prev.UserID == n.UserID {
				return nil
			}
		}
	}
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notes = append(s.notes, n)
	return nil
}

// Notifications returns what was saved for userID, oldest first.
func (s *Store) Notifications(userID string) []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Notification
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// PutItem stores it outside any transaction.
func (s *Store) PutItem(it inventory.Item) inventory.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == "" {
		it.ID = newID()
	}
	now := s.now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	s.st.items[it.ID] = it
	return it
}

func (s *Store) Item(id string) (inventory.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.st.items[id]
	return it, ok
}

func (s *Store) Order(id string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	return o, ok
}

// PutOrder stores o outside any transaction.
func (s *Store) PutOrder(o orders.Order) orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = newID()
	}
	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	s.st.orders[o.ID] = o
	return o
}
