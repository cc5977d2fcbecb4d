package sales

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/platform/httpx"
	"github.com/sygep/sygep/internal/shared"
)

// Handler exposes the sales workflow over HTTP.
type Handler struct {
	service  *Service
	access   access.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service, accessMW access.Middleware) *Handler {
	return &Handler{service: service, access: accessMW, validate: validator.New()}
}

// MountRoutes registers sales routes. Reads are gated here; write transitions
// are gated inside the service so denials reach the audit trail.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModuleSalesWorkflow, access.ModeRead))
		r.Get("/pending/{status}", h.listPending)
		r.Get("/{id}", h.get)
	})
	r.Post("/", h.create)
	r.Post("/{id}/ready-to-prepare", h.transition((*Service).MarkReadyToPrepare))
	r.Post("/{id}/ready-to-ship", h.transition((*Service).MarkReadyToShip))
	r.Post("/{id}/ship", h.transition((*Service).Ship))
	r.Post("/{id}/invoice", h.transition((*Service).Invoice))
}

type createOrderRequest struct {
	ClientID int64   `json:"client_id" validate:"required,gt=0"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), actor, CreateOrderInput{ClientID: req.ClientID, Amount: req.Amount})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) transition(fn func(*Service, context.Context, actors.Actor, int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actors.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
			return
		}
		order, err := fn(h.service, r.Context(), actor, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, order)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	status := Status(chi.URLParam(r, "status"))
	orders, err := h.service.ListPending(r.Context(), status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}
