package razorpay

import "time"

// Config holds the credentials for the Razorpay API.
type Config struct {
	// KeyID is the public API key id
	KeyID string

	// KeySecret signs checkout responses and authenticates API calls
	KeySecret string

	// WebhookSecret signs webhook deliveries
	WebhookSecret string

	// Currency is the ISO code used for every order, e.g. INR
	Currency string

	// Timeout bounds a single API call
	Timeout time.Duration
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.KeyID == "" || c.KeySecret == "" {
		return ErrInvalidConfig
	}
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}
