package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sygep/sygep/internal/access"
	"github.com/sygep/sygep/internal/audit"
	"github.com/sygep/sygep/internal/billing"
	"github.com/sygep/sygep/internal/masterdata"
	"github.com/sygep/sygep/internal/notify"
	"github.com/sygep/sygep/internal/observability"
	"github.com/sygep/sygep/internal/platform/httpx"
	"github.com/sygep/sygep/internal/purchasing"
	"github.com/sygep/sygep/internal/sales"
)

// RouterConfig lists everything the HTTP surface mounts.
type RouterConfig struct {
	Middlewares   []func(http.Handler) http.Handler
	AccessMW      access.Middleware
	Metrics       *observability.Metrics
	Masterdata    *masterdata.Handler
	Sales         *sales.Handler
	Purchasing    *purchasing.Handler
	Billing       *billing.Handler
	Notifications *notify.Handler
	Audit         *audit.Handler
}

// NewRouter assembles the chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	cfg.Masterdata.MountRoutes(r)
	r.Route("/sales", cfg.Sales.MountRoutes)
	r.Route("/purchases", cfg.Purchasing.MountRoutes)
	r.Route("/billing", cfg.Billing.MountRoutes)
	r.Route("/notifications", func(r chi.Router) {
		// The inbox is personal: reads and mark-read only ever touch the
		// caller's own rows.
		r.Use(cfg.AccessMW.Require(access.ModuleNotifications, access.ModeRead))
		cfg.Notifications.MountRoutes(r)
	})
	r.Route("/audit", cfg.Audit.MountRoutes)

	return r
}
