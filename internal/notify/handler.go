package notify

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/platform/httpx"
	"github.com/sygep/sygep/internal/shared"
)

// Handler exposes the notification inbox over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUnread)
	r.Get("/count", h.countUnread)
	r.Post("/{id}/read", h.markRead)
}

func (h *Handler) listUnread(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	items, err := h.service.ListUnread(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("list unread notifications", slog.Any("error", err))
		// Non-critical listing: degrade to an empty inbox.
		items = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) countUnread(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	count, err := h.service.CountUnread(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("count unread notifications", slog.Any("error", err))
		count = 0
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid notification id")
		return
	}
	if err := h.service.MarkRead(r.Context(), actor.ID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "read"})
}
