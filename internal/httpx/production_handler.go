package httpx

import (
	"encoding/json"
	"github.com/go-chi/chi/v5"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/katoapp/agrimarket/internal/service"
	"net/http"
)

// ProductionHandler serves the stage tracking endpoints. Cache is the order
// status cache, invalidated when a stage moves its order.
type ProductionHandler struct {
	Svc   *service.Production
	Cache StatusCache
}

type startStageReq struct {
	OrderID string           `json:"order_id"`
	Stage   production.Stage `json:"stage"`
	production.Readings
}

type completeStageReq struct {
	QualityMetrics json.RawMessage `json:"quality_metrics"`
	Notes          *string         `json:"notes"`
}

func (h *ProductionHandler) Register(r chi.Router) {
	r.Post("/productions/start-stage", h.startStage)
	r.Post("/productions/{id}/complete-stage", h.completeStage)
	r.Get("/productions", h.list)
	r.Get("/productions/{id}", h.get)
	r.Put("/productions/{id}", h.updateReadings)
}

func (h *ProductionHandler) startStage(w http.ResponseWriter, r *http.Request) {
	var req startStageReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrderID == "" {
		writeError(w, r, apperr.Validation("order_id is required"))
		return
	}
	rec, err := h.Svc.StartStage(r.Context(), ActorFrom(r.Context()), service.StartStageInput{
		OrderID:  req.OrderID,
		Stage:    req.Stage,
		Readings: req.Readings,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	invalidateStatus(r.Context(), h.Cache, rec.OrderID)
	writeJSON(w, http.StatusCreated, rec)
}

func (h *ProductionHandler) completeStage(w http.ResponseWriter, r *http.Request) {
	var req completeStageReq
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	rec, err := h.Svc.CompleteStage(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), service.CompleteStageInput{
		QualityMetrics: req.QualityMetrics,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	invalidateStatus(r.Context(), h.Cache, rec.OrderID)
	writeJSON(w, http.StatusOK, rec)
}

func (h *ProductionHandler) updateReadings(w http.ResponseWriter, r *http.Request) {
	var req production.Readings
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Svc.UpdateReadings(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ProductionHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Svc.Get(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ProductionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := production.Filter{OrderID: q.Get("order_id"), Limit: limit, Offset: offset}
	if s := q.Get("stage"); s != "" {
		if f.Stage, err = production.ParseStage(s); err != nil {
			writeError(w, r, apperr.Validation("%v", err))
			return
		}
	}
	if s := q.Get("status"); s != "" {
		if f.Status, err = production.ParseStatus(s); err != nil {
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
		out = []production.Record{}
	}
	writeJSON(w, http.StatusOK, out)
}
