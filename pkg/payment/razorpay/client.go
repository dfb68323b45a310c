package razorpay

import (
	"context"
	"fmt"

	rzp "github.com/razorpay/razorpay-go"
)

// Client wraps the Razorpay SDK. Every call is bounded by the configured
// timeout and by the caller's context.
type Client struct {
	config Config
	rz     *rzp.Client
}

// NewClient creates a new Razorpay client with the given configuration
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		rz:     rzp.NewClient(config.KeyID, config.KeySecret),
	}, nil
}

// Currency returns the configured settlement currency.
func (c *Client) Currency() string {
	return c.config.Currency
}

// KeyID returns the public key id handed to checkout clients.
func (c *Client) KeyID() string {
	return c.config.KeyID
}

// CreateOrder mints a remote payment order and returns its id.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	if amountMinor <= 0 || receipt == "" {
		return "", ErrInvalidRequest
	}
	if currency == "" {
		currency = c.config.Currency
	}

	data := map[string]interface{}{
		"amount":          amountMinor,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
		"notes":           notes,
	}

	resp, err := c.call(ctx, func() (map[string]interface{}, error) {
		return c.rz.Order.Create(data, nil)
	})
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	id, ok := resp["id"].(string)
	if !ok || id == "" {
		return "", ErrInvalidResponse
	}
	return id, nil
}

// Refund issues a refund against a captured payment and returns the refund id.
func (c *Client) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	if paymentID == "" || amountMinor <= 0 {
		return "", ErrInvalidRequest
	}

	data := map[string]interface{}{
		"notes": notes,
	}
	resp, err := c.call(ctx, func() (map[string]interface{}, error) {
		return c.rz.Payment.Refund(paymentID, int(amountMinor), data, nil)
	})
	if err != nil {
		return "", fmt.Errorf("refund payment %s: %w", paymentID, err)
	}

	id, ok := resp["id"].(string)
	if !ok || id == "" {
		return "", ErrInvalidResponse
	}
	return id, nil
}

// VerifyPaymentSignature checks the checkout signature over "order_id|payment_id".
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return VerifySignature([]byte(orderID+"|"+paymentID), signature, c.config.KeySecret)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header over the raw body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.config.WebhookSecret == "" {
		return false
	}
	return VerifySignature(body, signature, c.config.WebhookSecret)
}

type sdkResult struct {
	resp map[string]interface{}
	err  error
}

// call runs a blocking SDK request and abandons it once the deadline passes.
func (c *Client) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	done := make(chan sdkResult, 1)
	go func() {
		resp, err := fn()
		done <- sdkResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ErrTimeout
	case res := <-done:
		return res.resp, res.err
	}
}
