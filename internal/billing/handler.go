package billing

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/platform/httpx"
	"github.com/sygep/sygep/internal/shared"
)

// Handler exposes settlements over HTTP.
type Handler struct {
	coordinator *Coordinator
	access      access.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(coordinator *Coordinator, accessMW access.Middleware) *Handler {
	return &Handler{coordinator: coordinator, access: accessMW}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModuleAccounting, access.ModeRead))
		r.Get("/open-items", h.openItems)
	})
	r.Post("/orders/{id}/invoice", h.invoiceOrder)
	r.Post("/purchases/{id}/pay", h.payPurchase)
}

func (h *Handler) openItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.coordinator.OpenItems(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) invoiceOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	order, err := h.coordinator.InvoiceOrder(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) payPurchase(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	purchase, err := h.coordinator.PayPurchase(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (actors.Actor, int64, bool) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return actors.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return actors.Actor{}, 0, false
	}
	return actor, id, true
}
