// Package yookassa implements the payment.Gateway contract against the
// YooKassa v3 HTTP API.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/payment"
)

const defaultBaseURL = "https://api.yookassa.ru/v3"

var _ payment.Gateway = (*Client)(nil)

// Client is a YooKassa API client. Requests authenticate with shop-id basic
// auth; mutating calls carry the caller's Idempotence-Key so provider-side
// retries are safe.
type Client struct {
	http      *http.Client
	baseURL   string
	shopID    string
	secretKey string
}

// Options configures a Client. Zero values select the production API and a
// 30 second request timeout.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a YooKassa client for the given shop credentials.
func NewClient(shopID, secretKey string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		baseURL:   opts.BaseURL,
		shopID:    shopID,
		secretKey: secretKey,
	}
}

type createRequest struct {
	Amount       Amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type confirmation struct {
	Type      string `json:"type"`
	ReturnURL string `json:"return_url,omitempty"`
}

type paymentResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   Amount            `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type apiError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string {
	return "yookassa: " + e.Code + ": " + e.Description
}

// Create opens a payment and returns the confirmation URL the customer is
// redirected to.
func (c *Client) Create(ctx context.Context, params payment.CreateParams) (*payment.CreateResult, error) {
	body := createRequest{
		Amount:  amountFromMoney(params.Amount),
		Capture: true,
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: params.ReturnURL,
		},
		Description: params.Description,
		Metadata:    params.Metadata,
	}

	var resp struct {
		paymentResponse
		Confirmation struct {
			ConfirmationURL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments", params.IdempotencyKey, body, &resp); err != nil {
		return nil, err
	}

	status, ok := payment.FromProviderStatus(resp.Status)
	if !ok {
		return nil, errors.Errorf("unexpected payment status %q", resp.Status)
	}
	return &payment.CreateResult{
		PaymentID:  resp.ID,
		PaymentURL: resp.Confirmation.ConfirmationURL,
		Status:     status,
	}, nil
}

// Status polls a payment's current state.
func (c *Client) Status(ctx context.Context, paymentID string) (*payment.StatusResult, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, "", nil, &resp); err != nil {
		return nil, err
	}

	status, ok := payment.FromProviderStatus(resp.Status)
	if !ok {
		return nil, errors.Errorf("unexpected payment status %q", resp.Status)
	}
	amount, err := resp.Amount.toMoney()
	if err != nil {
		return nil, err
	}
	return &payment.StatusResult{
		PaymentID: resp.ID,
		Status:    status,
		Amount:    amount,
		Metadata:  resp.Metadata,
	}, nil
}

// Cancel cancels a waiting payment. A payment the provider reports as not
// cancellable yields false without error.
func (c *Client) Cancel(ctx context.Context, paymentID string) (bool, error) {
	var resp paymentResponse
	err := c.do(ctx, http.MethodPost, "/payments/"+paymentID+"/cancel", paymentID+"_cancel", struct{}{}, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == "invalid_request" {
			return false, nil
		}
		return false, err
	}
	return resp.Status == "canceled", nil
}

// Refund refunds a captured payment, fully when amount is nil.
func (c *Client) Refund(ctx context.Context, paymentID string, amount *money.Money) (bool, error) {
	req := struct {
		PaymentID string  `json:"payment_id"`
		Amount    *Amount `json:"amount,omitempty"`
	}{PaymentID: paymentID}
	if amount != nil {
		a := amountFromMoney(*amount)
		req.Amount = &a
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/refunds", paymentID+"_refund", req, &resp); err != nil {
		return false, err
	}
	return resp.Status == "succeeded", nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotence-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "call provider")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return errors.Errorf("provider returned status %d", resp.StatusCode)
		}
		return &apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
