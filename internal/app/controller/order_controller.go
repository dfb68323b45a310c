package controller

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

type OrderController struct {
	orderService    service.OrderService
	paymentService  service.PaymentService
	shipmentService service.ShipmentService
}

func NewOrderController(orderService service.OrderService, paymentService service.PaymentService, shipmentService service.ShipmentService) *OrderController {
	return &OrderController{
		orderService:    orderService,
		paymentService:  paymentService,
		shipmentService: shipmentService,
	}
}

type CreateOrderRequest struct {
	Items           []service.OrderLineInput `json:"items" binding:"required,min=1,dive"`
	ContactEmail    string                   `json:"contact_email" binding:"omitempty,email"`
	ContactPhone    string                   `json:"contact_phone"`
	ShippingAddress model.AddressSnapshot    `json:"shipping_address"`
	BillingAddress  *model.AddressSnapshot   `json:"billing_address"`
	CouponCode      string                   `json:"coupon_code"`
	Notes           string                   `json:"notes" binding:"max=500"`
}

type UpdateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

type RefundOrderRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

// CreateOrder places an order for a customer or a guest
// POST /api/v1/orders
func (ctrl *OrderController) CreateOrder(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreateOrderRequest
	if !bindJSON(c, log, &req) {
		return
	}

	userID := middleware.OptionalUserID(c)
	contactEmail := strings.TrimSpace(req.ContactEmail)
	if contactEmail == "" && userID != nil {
		contactEmail, _ = middleware.GetUserEmail(c)
	}

	order, err := ctrl.orderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		UserID:          userID,
		ContactEmail:    contactEmail,
		ContactPhone:    req.ContactPhone,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
	})
	if err != nil {
		respondServiceError(c, log, "Failed to create order", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}

	log.Info("Order created", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount,
	})
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// GetOrders returns the caller's orders
// GET /api/v1/orders
func (ctrl *OrderController) GetOrders(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	orders, err := ctrl.orderService.ListUserOrders(userID)
	if err != nil {
		respondServiceError(c, log, "Failed to fetch orders", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// ownedOrder loads the order by number and checks the caller may see it.
// Orders of other customers are reported as missing.
func (ctrl *OrderController) ownedOrder(c *gin.Context) (*model.Order, bool) {
	log := middleware.GetLoggerFromContext(c)

	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}

	number := c.Param("number")
	order, err := ctrl.orderService.GetOrderByNumber(number)
	if err == nil && !middleware.IsAdmin(c) && (order.UserID == nil || *order.UserID != userID) {
		err = service.ErrOrderNotFound
	}
	if err != nil {
		respondServiceError(c, log, "Order lookup failed", err, map[string]interface{}{
			"user_id":      userID,
			"order_number": number,
		})
		return nil, false
	}
	return order, true
}

// GetOrderByNumber returns one order
// GET /api/v1/orders/:number
func (ctrl *OrderController) GetOrderByNumber(c *gin.Context) {
	order, ok := ctrl.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// GetShipment returns the shipment of an order
// GET /api/v1/orders/:number/shipment
func (ctrl *OrderController) GetShipment(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	order, ok := ctrl.ownedOrder(c)
	if !ok {
		return
	}

	shipment, err := ctrl.shipmentService.GetShipment(order.ID)
	if err != nil {
		respondServiceError(c, log, "Shipment lookup failed", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment": shipment})
}

// CancelOrder cancels the caller's unpaid order
// POST /api/v1/orders/:number/cancel
func (ctrl *OrderController) CancelOrder(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	order, ok := ctrl.ownedOrder(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)

	cancelled, err := ctrl.orderService.CancelByCustomer(c.Request.Context(), userID, order.ID)
	if err != nil {
		respondServiceError(c, log, "Failed to cancel order", err, map[string]interface{}{
			"order_id": order.ID,
		})
		return
	}

	log.Info("Order cancelled by customer", map[string]interface{}{
		"order_id": order.ID,
	})
	c.JSON(http.StatusOK, gin.H{"order": cancelled})
}

// ListOrders lists all orders for the back office
// GET /api/v1/admin/orders
func (ctrl *OrderController) ListOrders(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	limit, offset := pagination(c)
	orders, total, err := ctrl.orderService.ListOrders(repository.OrderFilter{
		Status: model.OrderStatus(strings.ToUpper(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(c, log, "Failed to list orders", err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// UpdateOrderStatus advances an order along the fulfilment chain
// PUT /api/v1/admin/orders/:id/status
func (ctrl *OrderController) UpdateOrderStatus(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if !bindJSON(c, log, &req) {
		return
	}

	order, err := ctrl.orderService.AdvanceStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondServiceError(c, log, "Failed to update order status", err, map[string]interface{}{
			"order_id": orderID,
			"status":   req.Status,
		})
		return
	}

	log.Info("Order status updated", map[string]interface{}{
		"order_id": orderID,
		"status":   order.Status,
	})
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// RefundOrder refunds a paid order through the gateway
// POST /api/v1/admin/orders/:id/refund
func (ctrl *OrderController) RefundOrder(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req RefundOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, log, &req) {
		return
	}

	order, err := ctrl.paymentService.RefundOrder(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		respondServiceError(c, log, "Failed to refund order", err, map[string]interface{}{
			"order_id": orderID,
		})
		return
	}

	log.Info("Order refunded", map[string]interface{}{
		"order_id": orderID,
	})
	c.JSON(http.StatusOK, gin.H{"order": order})
}
