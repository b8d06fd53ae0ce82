package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mkrv/cafeorder/internal/gateway"
)

// BotHandler exposes the conversational gateway over HTTP. The messenger
// bridge (whatever runs the actual Telegram long polling) posts updates
// here and renders the replies.
type BotHandler struct {
	gw *gateway.Gateway
}

// NewBotHandler creates a BotHandler.
func NewBotHandler(gw *gateway.Gateway) *BotHandler {
	return &BotHandler{gw: gw}
}

// Routes registers the bot endpoints on mux.
func (h *BotHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /bot/callback", h.callback)
	mux.HandleFunc("POST /bot/message", h.message)
}

type botUpdate struct {
	TelegramID int64  `json:"telegram_id"`
	Data       string `json:"data,omitempty"`
	Text       string `json:"text,omitempty"`
}

type botReply struct {
	Text       string `json:"text"`
	Screen     string `json:"screen,omitempty"`
	PaymentURL string `json:"payment_url,omitempty"`
}

func (h *BotHandler) callback(w http.ResponseWriter, r *http.Request) {
	var update botUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil || update.TelegramID == 0 {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}

	reply := h.gw.HandleCallback(r.Context(), update.TelegramID, update.Data)
	writeReply(w, reply)
}

func (h *BotHandler) message(w http.ResponseWriter, r *http.Request) {
	var update botUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil || update.TelegramID == 0 {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}

	reply := h.gw.HandleText(r.Context(), update.TelegramID, update.Text)
	writeReply(w, reply)
}

func writeReply(w http.ResponseWriter, reply gateway.Reply) {
	writeJSON(w, http.StatusOK, botReply{
		Text:       reply.Text,
		Screen:     string(reply.Screen),
		PaymentURL: reply.PaymentURL,
	})
}
