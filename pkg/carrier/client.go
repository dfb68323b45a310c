// Package carrier is a client for the courier REST API used for forward
// shipments, reverse pickups and tracking.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ikkim/storefront-backend/pkg/logger"
)

type Config struct {
	Name           string
	BaseURL        string
	APIToken       string
	PickupLocation string
	Timeout        time.Duration
}

func (c *Config) Validate() error {
	if c.BaseURL == "" || c.APIToken == "" {
		return ErrInvalidRequest
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// Client represents a courier API client
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new courier client with the given configuration
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid carrier config: %w", err)
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (c *Client) Name() string {
	return c.config.Name
}

// CreatePickup books a pickup at addr. Reverse pickups collect returns from the customer.
func (c *Client) CreatePickup(ctx context.Context, addr Address, typ PickupType, reference string) (*PickupResult, error) {
	req := pickupRequest{
		Type:           typ,
		PickupLocation: c.config.PickupLocation,
		Address:        addr,
		Reference:      reference,
	}

	var res PickupResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/pickups", req, &res); err != nil {
		return nil, err
	}
	if !res.Success || res.Waybill == "" {
		return &res, fmt.Errorf("%w: %s", ErrRejected, res.Error)
	}
	return &res, nil
}

// CreateShipment manifests a forward shipment and returns its tracking number.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	if req.OrderNumber == "" || len(req.Items) == 0 {
		return nil, ErrInvalidRequest
	}
	if req.PickupLocation == "" {
		req.PickupLocation = c.config.PickupLocation
	}

	var res ShipmentResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/shipments", req, &res); err != nil {
		return nil, err
	}
	if !res.Success || res.TrackingNumber == "" {
		return &res, fmt.Errorf("%w: %s", ErrRejected, res.Error)
	}
	return &res, nil
}

// TrackShipment returns the latest normalised status of a waybill.
func (c *Client) TrackShipment(ctx context.Context, trackingNumber string) (*TrackResult, error) {
	if trackingNumber == "" {
		return nil, ErrInvalidRequest
	}

	var res TrackResult
	path := "/api/shipments/" + url.PathEscape(trackingNumber) + "/track"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return &res, fmt.Errorf("%w: %s", ErrRejected, res.Error)
	}
	res.Status = NormalizeStatus(res.RawStatus)
	return &res, nil
}

// NormalizeStatus maps courier scan statuses onto Status. Unknown scans
// are treated as still in transit.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "manifested", "pending", "not picked", "open", "scheduled":
		return StatusProcessing
	case "in transit", "picked up", "dispatched", "in_transit":
		return StatusInTransit
	case "out for delivery", "out_for_delivery":
		return StatusOutForDelivery
	case "delivered":
		return StatusDelivered
	case "rto", "returned", "rto delivered":
		return StatusReturned
	case "lost", "cancelled", "canceled", "undelivered", "failed":
		return StatusFailed
	}
	return StatusInTransit
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		reqBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.config.APIToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("Carrier request", map[string]interface{}{
		"carrier": c.config.Name,
		"method":  method,
		"path":    path,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		msg := fmt.Sprintf("status %d: %s %s", resp.StatusCode, errResp.Error, errResp.Message)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrRejected, msg)
		default:
			return fmt.Errorf("%w: %s", ErrNetworkError, msg)
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal carrier response: %w", err)
	}
	return nil
}
