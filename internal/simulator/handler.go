package simulator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/utafrali/rocketcart/pkg/errors"
	"github.com/utafrali/rocketcart/pkg/health"
	"github.com/utafrali/rocketcart/pkg/httputil"
	"github.com/utafrali/rocketcart/pkg/middleware"
)

const serviceName = "inventory-sim"

// Handler serves the catalog. Responses are bare JSON documents rather than
// the data envelope, matching what the cart's inventory client decodes.
type Handler struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(catalog *Catalog, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logger}
}

// ListStock handles GET /stock
func (h *Handler) ListStock(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.catalog.AllStock())
}

// GetStock handles GET /stock/{id}
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	stock, found := h.catalog.Stock(id)
	if !found {
		httputil.WriteError(w, r, apperrors.NotFound("stock", chi.URLParam(r, "id")), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stock)
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.catalog.Products())
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	product, found := h.catalog.Product(id)
	if !found {
		httputil.WriteError(w, r, apperrors.NotFound("product", chi.URLParam(r, "id")), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, product)
}

// Latency delays every request by d, returning early if the client goes
// away. A zero d disables it.
func Latency(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-r.Context().Done():
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter creates the simulator's chi router. latency applies to the
// catalog routes only.
func NewRouter(h *Handler, healthHandler *health.Handler, logger *slog.Logger, latency time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Latency(latency))

		r.Get("/stock", h.ListStock)
		r.Get("/stock/{id}", h.GetStock)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
	})

	return r
}
