package repository

import (
	"fmt"
	"testing"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupRepoTest(t *testing.T) *gorm.DB {
	t.Helper()
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})
	return testDB
}

func seedProduct(t *testing.T, testDB *gorm.DB, sku string, stock int) *model.Product {
	t.Helper()
	product := &model.Product{Name: "Product " + sku, SKU: sku, Price: 100, Stock: stock}
	require.NoError(t, NewProductRepository(testDB).Create(product))
	return product
}

func seedOrder(t *testing.T, testDB *gorm.DB, userID *uint, status model.OrderStatus, items ...model.OrderItem) *model.Order {
	t.Helper()
	var seq int64
	testDB.Model(&model.Order{}).Count(&seq)
	order := &model.Order{
		OrderNumber:     fmt.Sprintf("ORD-20260101-%06d", seq+1),
		UserID:          userID,
		ContactEmail:    "buyer@example.com",
		Subtotal:        100,
		TotalAmount:     100,
		Status:          status,
		ShippingAddress: datatypes.NewJSONType(model.AddressSnapshot{FullName: "A", Line1: "B", City: "C", PostalCode: "1"}),
		BillingAddress:  datatypes.NewJSONType(model.AddressSnapshot{FullName: "A", Line1: "B", City: "C", PostalCode: "1"}),
		OrderItems:      items,
	}
	require.NoError(t, NewOrderRepository(testDB).Create(order))
	return order
}
