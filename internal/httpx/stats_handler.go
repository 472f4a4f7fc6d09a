package httpx

import (
	"github.com/go-chi/chi/v5"
	"github.com/katoapp/agrimarket/internal/service"
	"net/http"
)

type StatsHandler struct {
	Svc *service.Stats
}

func (h *StatsHandler) Register(r chi.Router) {
	r.Get("/order-statistics", h.orders)
	r.Get("/production-statistics", h.production)
	r.Get("/inventory-statistics", h.inventory)
}

func (h *StatsHandler) orders(w http.ResponseWriter, r *http.Request) {
	s, err := h.Svc.Orders(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *StatsHandler) production(w http.ResponseWriter, r *http.Request) {
	s, err := h.Svc.Production(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *StatsHandler) inventory(w http.ResponseWriter, r *http.Request) {
	s, err := h.Svc.Inventory(r.Context(), ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
