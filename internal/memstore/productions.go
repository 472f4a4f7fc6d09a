package memstore

import (
	"context"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/production"
	"slices"
	"strings"
)

type recordRepo struct{ t *tx }

func (r recordRepo) Insert(_ context.Context, rec *production.Record) error {
	for _, existing := range r.t.st.records {
		if existing.OrderID == rec.OrderID && existing.Stage == rec.Stage {
			return apperr.DuplicateStage(string(rec.Stage))
		}
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	now := r.t.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	r.t.st.records[rec.ID] = *rec
	return nil
}

func (r recordRepo) Get(_ context.Context, id string) (production.Record, error) {
	rec, ok := r.t.st.records[id]
	if !ok {
		return production.Record{}, apperr.NotFound("production record")
	}
	return rec, nil
}

func (r recordRepo) GetForUpdate(ctx context.Context, id string) (production.Record, error) {
	return r.Get(ctx, id)
}

func (r recordRepo) Update(_ context.Context, rec production.Record) error {
	if _, ok := r.t.st.records[rec.ID]; !ok {
		return apperr.NotFound("production record")
	}
	rec.UpdatedAt = r.t.now()
	r.t.st.records[rec.ID] = rec
	return nil
}

func (r recordRepo) ListByOrder(ctx context.Context, orderID string) ([]production.Record, error) {
	return r.List(ctx, production.Filter{OrderID: orderID})
}

func (r recordRepo) List(_ context.Context, f production.Filter) ([]production.Record, error) {
	var out []production.Record
	for _, rec := range r.t.st.records {
		if f.OrderID != "" && rec.OrderID != f.OrderID {
			continue
		}
		if f.Stage != "" && rec.Stage != f.Stage {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b production.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(out, f.Limit, f.Offset), nil
}
