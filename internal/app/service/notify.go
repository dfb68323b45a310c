package service

import (
	"context"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/ikkim/storefront-backend/pkg/mailer"
)

const notifyTimeout = 15 * time.Second

// orderRecipient is the address customer mail for an order goes to.
func orderRecipient(order *model.Order) string {
	if order.ContactEmail != "" {
		return order.ContactEmail
	}
	if order.User != nil {
		return order.User.Email
	}
	return ""
}

// notifyAsync sends a notification in the background; failures are only logged.
func notifyAsync(n mailer.Notifier, recipient string, kind mailer.Kind, data map[string]interface{}) {
	if n == nil || recipient == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.Notify(ctx, recipient, kind, data); err != nil {
			logger.Error("Failed to send notification", err, map[string]interface{}{
				"recipient": recipient,
				"kind":      kind,
			})
		}
	}()
}
