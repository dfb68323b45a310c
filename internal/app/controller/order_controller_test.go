package controller

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderController_CreateOrder_Guest(t *testing.T) {
	s := newTestServer(t)
	product := s.createProduct(t, "SKU-1", 200, 5)

	w := s.do(t, http.MethodPost, "/api/v1/orders", "", orderPayload(product.ID, 2, "guest@example.com"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode(t, w)["order"].(map[string]interface{})
	assert.Equal(t, "PENDING", order["status"])
	assert.Equal(t, 400.0, order["subtotal"])
	assert.Equal(t, 50.0, order["shipping_cost"])
	assert.Equal(t, 450.0, order["total_amount"])
	assert.Nil(t, order["user_id"])
}

func TestOrderController_CreateOrder_Errors(t *testing.T) {
	s := newTestServer(t)
	product := s.createProduct(t, "SKU-1", 200, 1)

	tests := []struct {
		name string
		body map[string]interface{}
		code int
		want string
	}{
		{"guest without email", orderPayload(product.ID, 1, ""), http.StatusBadRequest, "VALIDATION_INVALID_INPUT"},
		{"empty items", map[string]interface{}{"items": []interface{}{}, "contact_email": "a@b.com"}, http.StatusBadRequest, "VALIDATION_INVALID_INPUT"},
		{"not enough stock", orderPayload(product.ID, 3, "a@b.com"), http.StatusConflict, "ORDER_INSUFFICIENT_STOCK"},
		{"unknown product", orderPayload(9999, 1, "a@b.com"), http.StatusNotFound, "RESOURCE_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/orders", "", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestOrderController_OwnerAccess(t *testing.T) {
	s := newTestServer(t)
	product := s.createProduct(t, "SKU-1", 200, 5)
	_, ownerToken := s.createUser(t, "owner@example.com", model.RoleUser)
	_, otherToken := s.createUser(t, "other@example.com", model.RoleUser)
	_, adminToken := s.createUser(t, "admin@example.com", model.RoleAdmin)

	number, _ := s.placeOrder(t, ownerToken, product.ID, 1)
	path := fmt.Sprintf("/api/v1/orders/%s", number)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, ownerToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, otherToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, path, "", nil).Code)

	w := s.do(t, http.MethodGet, "/api/v1/orders", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/v1/orders", otherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["count"])
}

func TestOrderController_CancelOrder(t *testing.T) {
	s := newTestServer(t)
	product := s.createProduct(t, "SKU-1", 200, 5)
	_, token := s.createUser(t, "owner@example.com", model.RoleUser)

	number, _ := s.placeOrder(t, token, product.ID, 2)
	w := s.do(t, http.MethodPost, "/api/v1/orders/"+number+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, w)["order"].(map[string]interface{})["status"])

	restored, err := s.productRepo.FindByID(product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Stock)

	w = s.do(t, http.MethodPost, "/api/v1/orders/"+number+"/cancel", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOrderController_AdminStatusAndShipment(t *testing.T) {
	s := newTestServer(t)
	product := s.createProduct(t, "SKU-1", 200, 5)
	_, token := s.createUser(t, "owner@example.com", model.RoleUser)
	_, adminToken := s.createUser(t, "admin@example.com", model.RoleAdmin)

	number, orderID := s.placeOrder(t, token, product.ID, 1)
	statusPath := fmt.Sprintf("/api/v1/admin/orders/%d/status", orderID)

	w := s.do(t, http.MethodPut, statusPath, token, map[string]interface{}{"status": "SHIPPED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, statusPath, adminToken, map[string]interface{}{"status": "SHIPPED"})
	assert.Equal(t, http.StatusConflict, w.Code, "unpaid orders cannot ship")

	s.payOrder(t, token, orderID)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+number+"/shipment", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/shipments/poll", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+number+"/shipment", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shipment := decode(t, w)["shipment"].(map[string]interface{})
	assert.Equal(t, "AWB-"+number, shipment["tracking_number"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/orders?status=processing", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total"])
}

func TestOrderController_AdminRefund(t *testing.T) {
	s := newTestServer(t)
	product := s.createProduct(t, "SKU-1", 200, 5)
	_, token := s.createUser(t, "owner@example.com", model.RoleUser)
	_, adminToken := s.createUser(t, "admin@example.com", model.RoleAdmin)

	_, orderID := s.placeOrder(t, token, product.ID, 2)
	refundPath := fmt.Sprintf("/api/v1/admin/orders/%d/refund", orderID)

	w := s.do(t, http.MethodPost, refundPath, adminToken, map[string]interface{}{"reason": "duplicate"})
	assert.Equal(t, http.StatusConflict, w.Code, "nothing captured yet")

	s.payOrder(t, token, orderID)
	w = s.do(t, http.MethodPost, refundPath, adminToken, map[string]interface{}{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "REFUNDED", decode(t, w)["order"].(map[string]interface{})["status"])

	restored, err := s.productRepo.FindByID(product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Stock)
}
