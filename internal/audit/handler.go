package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/platform/httpx"
)

// Handler exposes the audit timeline over HTTP.
type Handler struct {
	service *Service
	access  access.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service, accessMW access.Middleware) *Handler {
	return &Handler{service: service, access: accessMW}
}

// MountRoutes registers audit routes, administration read only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModuleAdministration, access.ModeRead))
		r.Get("/", h.timeline)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := Filter{Entity: query.Get("entity")}
	if v := query.Get("actor_id"); v != "" {
		filter.ActorID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := query.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := query.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	entries, err := h.service.Timeline(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
