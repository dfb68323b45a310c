package repository

import (
	"testing"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPayment(t *testing.T, repo PaymentRepository, orderID uint, txID string) *model.Payment {
	t.Helper()
	payment := &model.Payment{
		OrderID:       orderID,
		Amount:        100,
		Currency:      "INR",
		Gateway:       "razorpay",
		TransactionID: txID,
		Status:        model.PaymentStatusPending,
	}
	require.NoError(t, repo.Create(payment))
	return payment
}

func TestPaymentRepository_MarkCompleted(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewPaymentRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusPending)
	payment := seedPayment(t, repo, order.ID, "order_1")

	ok, err := repo.MarkCompleted(payment.ID, "pay_1", time.Now(), []byte(`{"id":"pay_1"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkCompleted(payment.ID, "pay_1", time.Now(), nil)
	require.NoError(t, err)
	assert.False(t, ok, "second capture is a no-op")

	ok, err = repo.MarkFailed(payment.ID, "pay_1", "declined", nil)
	require.NoError(t, err)
	assert.False(t, ok, "completed payment cannot fail")

	found, err := repo.FindByGatewayPaymentID("pay_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, found.Status)
	assert.NotNil(t, found.PaidAt)

	completed, err := repo.FindCompletedByOrderID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, completed.ID)
}

func TestPaymentRepository_MarkRefunded(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewPaymentRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusPending)
	payment := seedPayment(t, repo, order.ID, "order_1")

	ok, err := repo.MarkRefunded(payment.ID, "rfnd_1", nil)
	require.NoError(t, err)
	assert.False(t, ok, "pending payment cannot be refunded")

	_, err = repo.MarkCompleted(payment.ID, "pay_1", time.Now(), nil)
	require.NoError(t, err)
	ok, err = repo.MarkRefunded(payment.ID, "rfnd_1", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindByTransactionID("order_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, found.Status)
	assert.Equal(t, "rfnd_1", found.RefundID)
}

func TestPaymentRepository_AppendEvent(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewPaymentRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusPending)
	payment := seedPayment(t, repo, order.ID, "order_1")

	require.NoError(t, repo.AppendEvent(payment.ID, "payment.captured", []byte(`{"a":1}`)))
	require.NoError(t, repo.AppendEvent(payment.ID, "refund.processed", []byte(`{"b":2}`)))

	var count int64
	require.NoError(t, testDB.Model(&model.PaymentEvent{}).Where("payment_id = ?", payment.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	payments, err := repo.FindByOrderID(order.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}
