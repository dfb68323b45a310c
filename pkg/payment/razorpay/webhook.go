package razorpay

import (
	"encoding/json"
	"fmt"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
)

// WebhookEvent is one of PaymentCaptured, PaymentFailed, RefundProcessed or UnknownEvent.
type WebhookEvent interface {
	Name() string
}

type PaymentCaptured struct {
	PaymentID string
	OrderID   string
	Notes     map[string]string
}

type PaymentFailed struct {
	PaymentID        string
	OrderID          string
	ErrorDescription string
	Notes            map[string]string
}

type RefundProcessed struct {
	RefundID    string
	PaymentID   string
	AmountMinor int64
}

// UnknownEvent is any event the service does not act on.
type UnknownEvent struct {
	Event string
}

func (PaymentCaptured) Name() string { return EventPaymentCaptured }
func (PaymentFailed) Name() string   { return EventPaymentFailed }
func (RefundProcessed) Name() string { return EventRefundProcessed }
func (e UnknownEvent) Name() string  { return e.Event }

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Notes            json.RawMessage `json:"notes"`
	ErrorDescription *string         `json:"error_description"`
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// ParseWebhook decodes a verified webhook body into its typed event.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedWebhook)
	}

	switch env.Event {
	case EventPaymentCaptured, EventPaymentFailed:
		if env.Payload.Payment == nil {
			return nil, fmt.Errorf("%w: %s without payment entity", ErrMalformedWebhook, env.Event)
		}
		p := env.Payload.Payment.Entity
		if p.ID == "" || p.OrderID == "" {
			return nil, fmt.Errorf("%w: payment entity missing id or order_id", ErrMalformedWebhook)
		}
		notes := decodeNotes(p.Notes)
		if env.Event == EventPaymentCaptured {
			return PaymentCaptured{PaymentID: p.ID, OrderID: p.OrderID, Notes: notes}, nil
		}
		failed := PaymentFailed{PaymentID: p.ID, OrderID: p.OrderID, Notes: notes}
		if p.ErrorDescription != nil {
			failed.ErrorDescription = *p.ErrorDescription
		}
		return failed, nil

	case EventRefundProcessed:
		if env.Payload.Refund == nil {
			return nil, fmt.Errorf("%w: refund.processed without refund entity", ErrMalformedWebhook)
		}
		r := env.Payload.Refund.Entity
		if r.ID == "" || r.PaymentID == "" {
			return nil, fmt.Errorf("%w: refund entity missing id or payment_id", ErrMalformedWebhook)
		}
		return RefundProcessed{RefundID: r.ID, PaymentID: r.PaymentID, AmountMinor: r.Amount}, nil
	}

	return UnknownEvent{Event: env.Event}, nil
}

// decodeNotes accepts the object form of notes. Razorpay sends an empty
// array when no notes were attached.
func decodeNotes(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	notes := make(map[string]string, len(generic))
	for k, v := range generic {
		notes[k] = fmt.Sprint(v)
	}
	return notes
}
