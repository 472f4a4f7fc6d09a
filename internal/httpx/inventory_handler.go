package httpx

import (
	"encoding/json"
	"github.com/go-chi/chi/v5"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/service"
	"github.com/shopspring/decimal"
	"net/http"
	"time"
)

type InventoryHandler struct {
	Svc *service.Inventory
}

type createItemReq struct {
	ProductName  string          `json:"product_name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	HarvestDate  *time.Time      `json:"harvest_date"`
	Metadata     json.RawMessage `json:"metadata"`
}

type itemStatusReq struct {
	Status inventory.Status `json:"status"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Post("/inventory", h.create)
	r.Get("/inventory", h.list)
	r.Get("/inventory/{id}", h.get)
	r.Put("/inventory/{id}", h.update)
	r.Put("/inventory/{id}/status", h.markStatus)
}

func (h *InventoryHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createItemReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.Svc.Create(r.Context(), ActorFrom(r.Context()), inventory.Item{
		ProductName:  req.ProductName,
		Description:  req.Description,
		Category:     req.Category,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		PricePerUnit: req.PricePerUnit,
		HarvestDate:  req.HarvestDate,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *InventoryHandler) update(w http.ResponseWriter, r *http.Request) {
	var e inventory.Edit
	if err := decode(w, r, &e); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.Svc.Update(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *InventoryHandler) markStatus(w http.ResponseWriter, r *http.Request) {
	var req itemStatusReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.Svc.MarkStatus(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	it, err := h.Svc.Get(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := inventory.Filter{OwnerID: q.Get("owner_id"), Category: q.Get("category"), Limit: limit, Offset: offset}
	if s := q.Get("status"); s != "" {
		if f.Status, err = inventory.ParseStatus(s); err != nil {
			writeError(w, r, apperr.Validation("%v", err))
			return
		}
	}
	out, err := h.Svc.List(r.Context(), ActorFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []inventory.Item{}
	}
	writeJSON(w, http.StatusOK, out)
}
