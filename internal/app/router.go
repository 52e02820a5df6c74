package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gasledger/gasledger/internal/costing"
	"github.com/gasledger/gasledger/internal/observability"
	"github.com/gasledger/gasledger/internal/receivable"
	"github.com/gasledger/gasledger/internal/valuation"
	"github.com/gasledger/gasledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CostingHandler    *costing.Handler
	ReceivableHandler *receivable.Handler
	ValuationHandler  *valuation.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with GasLedger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(TenantMiddleware(params.Logger))
		if params.CostingHandler != nil {
			params.CostingHandler.MountRoutes(r)
		}
		if params.ReceivableHandler != nil {
			params.ReceivableHandler.MountRoutes(r)
		}
		if params.ValuationHandler != nil {
			params.ValuationHandler.MountRoutes(r)
		}
	})

	return r
}
