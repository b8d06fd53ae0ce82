// Package handler exposes the HTTP surface: the payment webhook, menu
// reads and the staff order endpoints.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/order"
	"github.com/mkrv/cafeorder/internal/domain/payment"
)

// Handler serves the HTTP API.
type Handler struct {
	orders   *order.Service
	payments *payment.Service
	catalog  menu.Repository
}

// New creates a Handler.
func New(orders *order.Service, payments *payment.Service, catalog menu.Repository) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		catalog:  catalog,
	}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/payment", h.paymentWebhook)

	mux.HandleFunc("GET /menu/categories", h.listCategories)
	mux.HandleFunc("GET /menu/items", h.listItems)

	mux.HandleFunc("GET /admin/orders", h.listOrders)
	mux.HandleFunc("GET /admin/orders/attention", h.attentionQueue)
	mux.HandleFunc("GET /admin/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /admin/orders/{id}/status", h.updateOrderStatus)
	mux.HandleFunc("POST /admin/orders/{id}/cancel", h.cancelOrder)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// serverError logs the cause and answers with an opaque 500.
func serverError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
