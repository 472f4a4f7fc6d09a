package httpx

import (
	"context"
	"github.com/go-chi/chi/v5"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/logger"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/redisx"
	"github.com/katoapp/agrimarket/internal/service"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

// IdempotencyStore remembers the order created for an Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, customerID, key string) (string, error)
	Remember(ctx context.Context, customerID, key, orderID string) error
}

// StatusCache is a read-through cache for order status lookups.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, orderID string, cs redisx.CachedStatus) error
	Invalidate(ctx context.Context, orderID string) error
}

// OrdersHandler serves the order endpoints. Idem and Cache are optional;
// the database stays the source of truth either way.
type OrdersHandler struct {
	Svc   *service.Orders
	Idem  IdempotencyStore
	Cache StatusCache
}

type transitionReq struct {
	Status          orders.Status `json:"status"`
	Reason          string        `json:"reason"`
	RejectionReason string        `json:"rejection_reason"`
}

type statusResp struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Cached    bool      `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Put("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := ActorFrom(ctx)

	var req orders.CreateInput
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// Redis is only a shortcut; the order row carries the key and the
	// service resolves replays inside the creating transaction.
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.Idem != nil {
		if id, err := h.Idem.Lookup(ctx, actor.ID, key); err != nil {
			logger.FromContext(ctx).Warn("idempotency lookup failed", zap.Error(err))
		} else if id != "" {
			o, err := h.Svc.Get(ctx, actor, id)
			if err == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
			if !apperr.Is(err, apperr.KindNotFound) {
				writeError(w, r, err)
				return
			}
		}
	}

	o, created, err := h.Svc.CreateIdempotent(ctx, actor, key, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if key != "" && h.Idem != nil {
		if err := h.Idem.Remember(ctx, actor.ID, key, o.ID); err != nil {
			logger.FromContext(ctx).Warn("idempotency remember failed", zap.Error(err))
		}
	}
	if !created {
		writeJSON(w, http.StatusOK, o)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := orders.Filter{InventoryID: q.Get("inventory_id"), Limit: limit, Offset: offset}
	if s := q.Get("status"); s != "" {
		st, err := orders.ParseStatus(s)
		if err != nil {
			writeError(w, r, apperr.Validation("%v", err))
			return
		}
		f.Status = st
	}
	out, err := h.Svc.List(r.Context(), ActorFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := ActorFrom(ctx)
	id := chi.URLParam(r, "id")

	if h.Cache != nil {
		cs, ok, err := h.Cache.Get(ctx, id)
		if err != nil {
			logger.FromContext(ctx).Warn("status cache read failed", zap.Error(err))
		}
		if ok {
			if !orders.CanView(actor, orders.Order{CustomerID: cs.CustomerID, SupplierID: cs.SupplierID}) {
				writeError(w, r, apperr.Unauthorized("not allowed to view this order"))
				return
			}
			writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: cs.Status, UpdatedAt: cs.UpdatedAt, Cached: true})
			return
		}
	}

	o, err := h.Svc.Get(ctx, actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, statusResp{OrderID: o.ID, Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req transitionReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = req.RejectionReason
	}
	id := chi.URLParam(r, "id")
	o, err := h.Svc.Transition(ctx, ActorFrom(ctx), id, service.TransitionInput{Status: req.Status, Reason: reason})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(ctx, o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cache(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	cs := redisx.CachedStatus{Status: string(o.Status), CustomerID: o.CustomerID, SupplierID: o.SupplierID, UpdatedAt: o.UpdatedAt}
	if err := h.Cache.Set(ctx, o.ID, cs); err != nil {
		logger.FromContext(ctx).Warn("status cache write failed", zap.Error(err))
	}
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	invalidateStatus(ctx, h.Cache, orderID)
}

func invalidateStatus(ctx context.Context, c StatusCache, orderID string) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, orderID); err != nil {
		logger.FromContext(ctx).Warn("status cache invalidate failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
