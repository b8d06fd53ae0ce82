package yookassa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/payment"
)

func TestAmountConversion(t *testing.T) {
	tests := []struct {
		kopecks int64
		value   string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{200, "2.00"},
		{15000, "150.00"},
		{51000, "510.00"},
		{51234, "512.34"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			a := amountFromMoney(money.FromKopecks(tt.kopecks))
			assert.Equal(t, tt.value, a.Value)
			assert.Equal(t, "RUB", a.Currency)

			// Round trip back to minor units is lossless.
			back, err := a.toMoney()
			require.NoError(t, err)
			assert.Equal(t, tt.kopecks, back.Amount)
		})
	}
}

func TestAmount_ToMoneyRejectsFractions(t *testing.T) {
	_, err := Amount{Value: "1.005", Currency: "RUB"}.toMoney()
	assert.Error(t, err)

	_, err = Amount{Value: "not a number", Currency: "RUB"}.toMoney()
	assert.Error(t, err)
}

func TestClient_Create(t *testing.T) {
	var gotReq createRequest
	var gotIdempotencyKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "shop-1", user)
		assert.Equal(t, "sk-test", pass)
		gotIdempotencyKey = r.Header.Get("Idempotence-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pay-1",
			"status": "pending",
			"amount": {"value": "510.00", "currency": "RUB"},
			"confirmation": {"type": "redirect", "confirmation_url": "https://yookassa.test/confirm/pay-1"}
		}`))
	}))
	defer srv.Close()

	client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
	result, err := client.Create(context.Background(), payment.CreateParams{
		OrderID:        "ord-1",
		Amount:         money.FromKopecks(51000),
		Description:    "Order #ord-1",
		ReturnURL:      "https://t.me/cafebot",
		IdempotencyKey: "ord-1_1700000000",
		Metadata:       map[string]string{"order_id": "ord-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "pay-1", result.PaymentID)
	assert.Equal(t, "https://yookassa.test/confirm/pay-1", result.PaymentURL)
	assert.Equal(t, payment.StatusPending, result.Status)

	assert.Equal(t, "ord-1_1700000000", gotIdempotencyKey)
	assert.Equal(t, "510.00", gotReq.Amount.Value)
	assert.True(t, gotReq.Capture)
	assert.Equal(t, "redirect", gotReq.Confirmation.Type)
	assert.Equal(t, "https://t.me/cafebot", gotReq.Confirmation.ReturnURL)
	assert.Equal(t, "ord-1", gotReq.Metadata["order_id"])
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/payments/pay-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pay-1",
			"status": "succeeded",
			"amount": {"value": "510.00", "currency": "RUB"},
			"metadata": {"order_id": "ord-1"}
		}`))
	}))
	defer srv.Close()

	client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
	result, err := client.Status(context.Background(), "pay-1")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusCompleted, result.Status)
	assert.Equal(t, int64(51000), result.Amount.Amount)
	assert.Equal(t, "ord-1", result.Metadata["order_id"])
}

func TestClient_StatusUnknownValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "pay-1", "status": "exploded", "amount": {"value": "1.00", "currency": "RUB"}}`))
	}))
	defer srv.Close()

	client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
	_, err := client.Status(context.Background(), "pay-1")
	assert.Error(t, err)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type": "error", "code": "not_found", "description": "Payment not found"}`))
	}))
	defer srv.Close()

	client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
	_, err := client.Status(context.Background(), "pay-missing")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClient_Cancel(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/payments/pay-1/cancel", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "pay-1", "status": "canceled", "amount": {"value": "1.00", "currency": "RUB"}}`))
		}))
		defer srv.Close()

		client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
		ok, err := client.Cancel(context.Background(), "pay-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("provider refuses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"type": "error", "code": "invalid_request", "description": "Payment already captured"}`))
		}))
		defer srv.Close()

		client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
		ok, err := client.Cancel(context.Background(), "pay-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClient_Refund(t *testing.T) {
	var gotReq struct {
		PaymentID string  `json:"payment_id"`
		Amount    *Amount `json:"amount"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/refunds", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "ref-1", "status": "succeeded"}`))
	}))
	defer srv.Close()

	client := NewClient("shop-1", "sk-test", Options{BaseURL: srv.URL})
	amount := money.FromKopecks(25000)
	ok, err := client.Refund(context.Background(), "pay-1", &amount)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pay-1", gotReq.PaymentID)
	require.NotNil(t, gotReq.Amount)
	assert.Equal(t, "250.00", gotReq.Amount.Value)
}
