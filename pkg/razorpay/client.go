package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUnavailable marks transient failures (network errors, timeouts,
	// 5xx) that are safe to retry.
	ErrUnavailable = errors.New("razorpay: gateway unavailable")
	// ErrRejected marks 4xx responses; retrying the same request will not
	// help.
	ErrRejected = errors.New("razorpay: request rejected")
)

// Client issues authenticated calls to the Razorpay REST API.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewClient(baseURL, keyID, keySecret string) *Client {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

type createOrderReq struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

// CreateOrder opens a gateway order for the given amount in paise.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*OrderHandle, error) {
	body, _ := json.Marshal(createOrderReq{
		Amount:         amountPaise,
		Currency:       currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	})
	var out OrderHandle
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchPayment returns the canonical payment object for a payment id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*PaymentSnapshot, error) {
	var out PaymentSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type refundReq struct {
	Amount int64 `json:"amount,omitempty"`
}

// Refund refunds a payment. amountPaise == 0 requests a full refund.
func (c *Client) Refund(ctx context.Context, paymentID string, amountPaise int64) (*Refund, error) {
	body, _ := json.Marshal(refundReq{Amount: amountPaise})
	var out Refund
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+paymentID+"/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("razorpay: decode response: %w", err)
	}
	return nil
}
