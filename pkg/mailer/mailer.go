// Package mailer delivers customer notifications by email.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"github.com/ikkim/storefront-backend/pkg/logger"
	"gopkg.in/gomail.v2"
)

type Kind string

const (
	KindOrderConfirmed  Kind = "order_confirmed"
	KindReturnReceived  Kind = "return_received"
	KindReturnApproved  Kind = "return_approved"
	KindReturnRejected  Kind = "return_rejected"
	KindReturnCompleted Kind = "return_completed"
)

var ErrUnknownKind = errors.New("mailer: unknown notification kind")

// Notifier sends a templated notification to a single recipient.
type Notifier interface {
	Notify(ctx context.Context, recipient string, kind Kind, data map[string]interface{}) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type message struct {
	subject string
	body    *template.Template
}

var templates = map[Kind]message{
	KindOrderConfirmed: {
		subject: "Order {{.order_number}} confirmed",
		body:    template.Must(template.New("order_confirmed").Parse(`<p>Thank you! Your payment for order <b>{{.order_number}}</b> was received.</p><p>Total paid: {{.total_amount}}</p>`)),
	},
	KindReturnReceived: {
		subject: "Return request received for {{.order_number}}",
		body:    template.Must(template.New("return_received").Parse(`<p>We received your return request #{{.return_id}} for order <b>{{.order_number}}</b>. We will review it shortly.</p>`)),
	},
	KindReturnApproved: {
		subject: "Return request #{{.return_id}} approved",
		body: template.Must(template.New("return_approved").Parse(`<p>Your return for order <b>{{.order_number}}</b> was approved.</p>` +
			`{{if .pickup_waybill}}<p>Pickup waybill: {{.pickup_waybill}}</p>{{end}}` +
			`{{if .store_credit_code}}<p>Your store credit code: <b>{{.store_credit_code}}</b> worth {{.store_credit_amount}}</p>{{end}}` +
			`{{if .exchange_order_number}}<p>Replacement order: {{.exchange_order_number}}</p>{{end}}`)),
	},
	KindReturnRejected: {
		subject: "Return request #{{.return_id}} update",
		body:    template.Must(template.New("return_rejected").Parse(`<p>Your return for order <b>{{.order_number}}</b> could not be accepted.</p><p>Reason: {{.reason}}</p>`)),
	},
	KindReturnCompleted: {
		subject: "Return request #{{.return_id}} completed",
		body:    template.Must(template.New("return_completed").Parse(`<p>Your return for order <b>{{.order_number}}</b> is complete.</p>`)),
	},
}

// Render produces the subject and HTML body for a notification.
func Render(kind Kind, data map[string]interface{}) (string, string, error) {
	msg, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	subjectTpl, err := texttemplate.New("subject").Parse(msg.subject)
	if err != nil {
		return "", "", err
	}
	var subject, body bytes.Buffer
	if err := subjectTpl.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := msg.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

// SMTPNotifier sends mail through an SMTP relay.
type SMTPNotifier struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, recipient string, kind Kind, data map[string]interface{}) error {
	if recipient == "" {
		return nil
	}
	subject, body, err := Render(kind, data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send %s mail: %w", kind, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s mail: %w", kind, err)
		}
	}

	logger.Debug("Notification mail sent", map[string]interface{}{
		"kind":      kind,
		"recipient": recipient,
	})
	return nil
}

// LogNotifier only logs notifications. Used when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, recipient string, kind Kind, data map[string]interface{}) error {
	subject, _, err := Render(kind, data)
	if err != nil {
		return err
	}
	logger.Info("Notification (mail disabled)", map[string]interface{}{
		"kind":      kind,
		"recipient": recipient,
		"subject":   subject,
	})
	return nil
}
