package purchasing

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/platform/httpx"
	"github.com/sygep/sygep/internal/shared"
)

// Handler exposes the purchase workflow over HTTP.
type Handler struct {
	service  *Service
	access   access.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service, accessMW access.Middleware) *Handler {
	return &Handler{service: service, access: accessMW, validate: validator.New()}
}

// MountRoutes registers purchasing routes. Reads are gated here; write
// transitions are gated inside the service so denials reach the audit trail.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModulePurchaseWorkflow, access.ModeRead))
		r.Get("/pending/{status}", h.listPending)
		r.Get("/{id}", h.get)
		r.Get("/{id}/lines", h.lines)
	})
	r.Post("/", h.create)
	r.Post("/{id}/validate", h.validateOrder)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/pay", h.pay)
}

type createPurchaseRequest struct {
	SupplierID int64                 `json:"supplier_id" validate:"required,gt=0"`
	Amount     float64               `json:"amount" validate:"required,gt=0"`
	Lines      []purchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type purchaseLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type receiveRequest struct {
	DeliveryNote string     `json:"delivery_note" validate:"required"`
	ReceivedAt   *time.Time `json:"received_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req createPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreatePurchaseInput{SupplierID: req.SupplierID, Amount: req.Amount}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: line.Qty})
	}
	purchase, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) validateOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	purchase, err := h.service.Validate(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiveInput{DeliveryNote: req.DeliveryNote}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}
	purchase, err := h.service.Receive(r.Context(), actor, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	purchase, err := h.service.Pay(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) lines(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	lines, err := h.service.Lines(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	status := Status(chi.URLParam(r, "status"))
	purchases, err := h.service.ListPending(r.Context(), status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (actors.Actor, int64, bool) {
	actor, ok := actors.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return actors.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return actors.Actor{}, 0, false
	}
	return actor, id, true
}
