package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/rocketcart/internal/domain"
	"github.com/utafrali/rocketcart/internal/service"
	"github.com/utafrali/rocketcart/pkg/httputil"
	"github.com/utafrali/rocketcart/pkg/middleware"
	"github.com/utafrali/rocketcart/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	registry          *service.Registry
	logger            *slog.Logger
	heartbeatInterval time.Duration

	// closing is closed by CloseStreams to end every open stream.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(registry *service.Registry, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		registry: registry,
		logger:   logger,
		closing:  make(chan struct{}),
	}
}

// CloseStreams ends every open cart stream and makes new ones return after
// their first snapshot. Register it with http.Server.RegisterOnShutdown so
// streams do not hold up a graceful shutdown.
func (h *CartHandler) CloseStreams() {
	h.closeOnce.Do(func() {
		close(h.closing)
	})
}

// WithHeartbeat sets the keep-alive interval of cart streams.
func (h *CartHandler) WithHeartbeat(d time.Duration) *CartHandler {
	h.heartbeatInterval = d
	return h
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding a product to the cart.
type AddItemRequest struct {
	ProductID int `json:"product_id" validate:"required,gt=0"`
}

// UpdateAmountRequest is the JSON request body for setting a product's
// quantity. Amounts of zero or less are accepted and ignored.
type UpdateAmountRequest struct {
	Amount int `json:"amount"`
}

// --- Response DTOs ---

// CartResponse is the cart representation returned by every endpoint.
type CartResponse struct {
	Items     domain.Cart `json:"items"`
	ItemCount int         `json:"item_count"`
	Total     float64     `json:"total"`
}

func newCartResponse(c domain.Cart) CartResponse {
	if c == nil {
		c = domain.Cart{}
	}
	return CartResponse{
		Items:     c,
		ItemCount: c.ItemCount(),
		Total:     c.Total(),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()
	httputil.WriteData(w, http.StatusOK, newCartResponse(store.Cart()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	store, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	cart, err := store.AddProduct(r.Context(), req.ProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	store, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	cart, err := store.RemoveProduct(r.Context(), productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// UpdateItemAmount handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemAmount(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	var req UpdateAmountRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	store, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	cart, err := store.UpdateProductAmount(r.Context(), service.UpdateProductAmount{
		ProductID: productID,
		Amount:    req.Amount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// store holds the cart store for the request's session until release is
// called, writing the error response itself on failure.
func (h *CartHandler) store(w http.ResponseWriter, r *http.Request) (_ *service.CartStore, release func(), ok bool) {
	store, release, err := h.registry.Acquire(r.Context(), middleware.SessionID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, nil, false
	}
	return store, release, true
}
