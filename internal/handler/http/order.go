package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// OrderHandler handles HTTP requests for order endpoints, including
// checkout.
type OrderHandler struct {
	orders   *service.OrderService
	checkout *service.CheckoutService
	logger   *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(orders *service.OrderService, checkout *service.CheckoutService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		checkout: checkout,
		logger:   logger,
	}
}

// CheckoutRequest is the JSON request body for placing an order.
type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,min=1,max=1000"`
	PaymentMethod   string `json:"payment_method" validate:"required,min=1,max=100"`
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.InvalidInput("user id is required"), h.logger)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, orders)
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.InvalidInput("user id is required"), h.logger)
		return
	}

	orderID := chi.URLParam(r, "orderID")

	order, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, order)
}

// Checkout handles POST /api/v1/orders
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.InvalidInput("user id is required"), h.logger)
		return
	}

	var req CheckoutRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	order, err := h.checkout.CreateOrder(r.Context(), userID, service.CheckoutInput{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, order)
}
