package repository

import (
	"testing"
	"time"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_CreateAndFind(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)
	product := seedProduct(t, testDB, "SKU-1", 5)

	order := seedOrder(t, testDB, nil, model.OrderStatusPending, model.OrderItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		ProductSKU:  product.SKU,
		Price:       100,
		Quantity:    2,
		TotalPrice:  200,
	})

	found, err := repo.FindByNumber(order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	require.Len(t, found.OrderItems, 1)
	assert.Equal(t, "SKU-1", found.OrderItems[0].ProductSKU)
	assert.Equal(t, "A", found.ShippingAddress.Data().FullName)
	assert.Nil(t, found.Shipping)
}

func TestOrderRepository_TransitionStatus(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)
	order := seedOrder(t, testDB, nil, model.OrderStatusPending)
	paidAt := time.Now()

	ok, err := repo.TransitionStatus(order.ID, []model.OrderStatus{model.OrderStatusPending}, model.OrderStatusConfirmed,
		map[string]interface{}{"paid_at": paidAt})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(order.ID, []model.OrderStatus{model.OrderStatusPending}, model.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, found.Status)
	assert.NotNil(t, found.PaidAt)
}

func TestOrderRepository_CountCouponUses(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)
	user := &model.User{Email: "u@example.com", PasswordHash: "x", Name: "U"}
	require.NoError(t, NewUserRepository(testDB).Create(user))
	coupon := &model.Coupon{Code: "C1", DiscountType: model.DiscountFixedAmount, DiscountValue: 10, IsActive: true}
	require.NoError(t, NewCouponRepository(testDB).Create(coupon))

	for _, status := range []model.OrderStatus{
		model.OrderStatusPending,
		model.OrderStatusCancelled,
		model.OrderStatusConfirmed,
		model.OrderStatusDelivered,
	} {
		order := seedOrder(t, testDB, &user.ID, status)
		require.NoError(t, testDB.Model(order).Update("coupon_id", coupon.ID).Error)
	}

	count, err := repo.CountCouponUses(user.ID, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestOrderRepository_FindConfirmedWithoutShipment(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)

	shipped := seedOrder(t, testDB, nil, model.OrderStatusConfirmed)
	waiting := seedOrder(t, testDB, nil, model.OrderStatusConfirmed)
	seedOrder(t, testDB, nil, model.OrderStatusPending)

	_, err := NewShippingRepository(testDB).CreateIfAbsent(&model.Shipping{OrderID: shipped.ID, Carrier: "c", TrackingNumber: "T1"})
	require.NoError(t, err)

	orders, err := repo.FindConfirmedWithoutShipment(10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, waiting.ID, orders[0].ID)
}

func TestOrderRepository_List(t *testing.T) {
	testDB := setupRepoTest(t)
	repo := NewOrderRepository(testDB)
	for i := 0; i < 3; i++ {
		seedOrder(t, testDB, nil, model.OrderStatusPending)
	}
	seedOrder(t, testDB, nil, model.OrderStatusConfirmed)

	orders, total, err := repo.List(OrderFilter{Status: model.OrderStatusPending, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 2)
}
