package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/platform/httpx"
)

// Handler exposes masterdata lookups over HTTP.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	access access.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, accessMW access.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, access: accessMW}
}

// MountRoutes registers masterdata routes, each gated on read access to its
// module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModuleClients, access.ModeRead))
		r.Get("/clients", h.listClients)
		r.Get("/clients/{id}", h.getClient)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModuleSuppliers, access.ModeRead))
		r.Get("/suppliers", h.listSuppliers)
		r.Get("/suppliers/{id}", h.getSupplier)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.access.Require(access.ModuleProducts, access.ModeRead))
		r.Get("/products", h.listProducts)
		r.Get("/products/low-stock", h.listLowStock)
		r.Get("/products/{id}", h.getProduct)
	})
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListClients(r.Context())
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		items = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": items})
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	client, err := h.repo.GetClient(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListSuppliers(r.Context())
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		items = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": items})
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	supplier, err := h.repo.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		items = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": items})
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListLowStock(r.Context())
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err))
		items = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": items})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}
