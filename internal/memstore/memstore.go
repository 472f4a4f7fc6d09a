// Package memstore is an in-memory backend for the store interfaces. A
// transaction holds one global lock and works on a copy of the state that
// replaces the committed state only when the callback succeeds.
package memstore

import (
	"context"
	"github.com/google/uuid"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/notify"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/katoapp/agrimarket/internal/store"
	"maps"
	"sync"
	"time"
)

type state struct {
	items     map[string]inventory.Item
	orders    map[string]orders.Order
	records   map[string]production.Record
	sequences map[string]int
}

func (s *state) clone() *state {
	return &state{
		items:     maps.Clone(s.items),
		orders:    maps.Clone(s.orders),
		records:   maps.Clone(s.records),
		sequences: maps.Clone(s.sequences),
	}
}

type Store struct {
	mu    sync.Mutex
	st    *state
	now   func() time.Time
	notes []notify.Notification
}

var _ store.Runner = (*Store)(nil)

func New() *Store {
	return &Store{
		st: &state{
			items:     map[string]inventory.Item{},
			orders:    map[string]orders.Order{},
			records:   map[string]production.Record{},
			sequences: map[string]int{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Items() inventory.Store { return itemRepo{t} }
func (t *tx) Orders() orders.Store { return orderRepo{t} }
func (t *tx) Productions() production.Store { return recordRepo{t} }

func newID() string { return uuid.NewString() }

// page applies limit/offset to an already sorted slice.
func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
