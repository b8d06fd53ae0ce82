package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mkrv/cafeorder/internal/domain/payment"
)

// maxWebhookBody bounds provider callback payloads.
const maxWebhookBody = 1 << 20

// paymentWebhook receives provider callbacks. Malformed payloads are
// answered 400 so the provider retries after the bug is fixed; an unknown
// payment is 404. A payload that changes nothing still gets 200: webhook
// delivery is at-least-once.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	p, err := h.payments.ProcessWebhook(r.Context(), body)
	switch {
	case errors.Is(err, payment.ErrMalformedWebhook):
		zctx.From(r.Context()).Warn("Malformed payment webhook", zap.Error(err))
		writeError(w, http.StatusBadRequest, "malformed payload")
	case errors.Is(err, payment.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown payment")
	case err != nil:
		serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"payment": p.ID,
		})
	}
}
