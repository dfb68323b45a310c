package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/events"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/ikkim/storefront-backend/pkg/util"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderLineInput struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

type CreateOrderInput struct {
	UserID          *uint
	ContactEmail    string
	ContactPhone    string
	Items           []OrderLineInput
	ShippingAddress model.AddressSnapshot
	BillingAddress  *model.AddressSnapshot
	CouponCode      string
	Notes           string
}

// PriceBreakdown is the monetary summary of a cart.
type PriceBreakdown struct {
	Subtotal       float64 `json:"subtotal"`
	Tax            float64 `json:"tax"`
	ShippingCost   float64 `json:"shipping_cost"`
	DiscountAmount float64 `json:"discount_amount"`
	TotalAmount    float64 `json:"total_amount"`
}

// CartQuote is a priced cart with the coupon verdict, if a code was given.
type CartQuote struct {
	PriceBreakdown
	Coupon *CouponQuote `json:"coupon,omitempty"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*model.Order, error)
	QuoteCart(items []OrderLineInput, couponCode string, userID *uint) (*CartQuote, error)
	GetOrder(id uint) (*model.Order, error)
	GetOrderByNumber(number string) (*model.Order, error)
	ListUserOrders(userID uint) ([]model.Order, error)
	ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error)
	CancelOrRefund(ctx context.Context, orderID uint, target model.OrderStatus, note string) (*model.Order, error)
	CancelByCustomer(ctx context.Context, userID, orderID uint) (*model.Order, error)
	AdvanceStatus(ctx context.Context, orderID uint, to model.OrderStatus) (*model.Order, error)
	CreateReplacementOrder(ctx context.Context, original *model.Order, note string) (*model.Order, error)
}

type orderService struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	couponSvc   CouponService
	publisher   events.Publisher
	pricing     config.PricingConfig
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	couponSvc CouponService,
	publisher events.Publisher,
	pricing config.PricingConfig,
) OrderService {
	return &orderService{
		db:          db,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		couponSvc:   couponSvc,
		publisher:   publisher,
		pricing:     pricing,
	}
}

// ComputePricing applies coupon, shipping and tax rules to a subtotal.
// Discounts never exceed the subtotal; tax is charged on the discounted subtotal.
func ComputePricing(subtotal float64, quote *CouponQuote, pricing config.PricingConfig) PriceBreakdown {
	b := PriceBreakdown{Subtotal: util.RoundMoney(subtotal)}

	if quote != nil && quote.Valid {
		b.DiscountAmount = quote.DiscountAmount
		if b.DiscountAmount > b.Subtotal {
			b.DiscountAmount = b.Subtotal
		}
	}

	freeShipping := quote != nil && quote.Valid && quote.FreeShipping
	if pricing.FreeShippingThreshold > 0 && b.Subtotal >= pricing.FreeShippingThreshold {
		freeShipping = true
	}
	if !freeShipping {
		b.ShippingCost = util.RoundMoney(pricing.FlatShippingCost)
	}

	b.Tax = util.RoundMoney((b.Subtotal - b.DiscountAmount) * pricing.TaxRate)
	b.TotalAmount = util.RoundMoney(b.Subtotal + b.Tax + b.ShippingCost - b.DiscountAmount)
	return b
}

func validateAddress(addr model.AddressSnapshot) error {
	var missing []string
	if strings.TrimSpace(addr.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(addr.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if len(missing) > 0 {
		return validationf("shipping address missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// mergeLines folds repeated products into one line and orders them by product
// id so concurrent checkouts touch stock rows in the same order.
func mergeLines(items []OrderLineInput) ([]OrderLineInput, error) {
	qty := make(map[uint]int, len(items))
	for _, item := range items {
		if item.ProductID == 0 || item.Quantity < 1 {
			return nil, validationf("each item needs a product and a quantity of at least 1")
		}
		qty[item.ProductID] += item.Quantity
	}

	merged := make([]OrderLineInput, 0, len(qty))
	for id, q := range qty {
		merged = append(merged, OrderLineInput{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func generateOrderNumber(now time.Time) (string, error) {
	suffix, err := util.RandomCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix), nil
}

// priceLines snapshots current product prices for each merged line.
func (s *orderService) priceLines(lines []OrderLineInput) ([]model.OrderItem, []CartLine, float64, error) {
	ids := make([]uint, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.productRepo.FindByIDs(ids)
	if err != nil {
		return nil, nil, 0, err
	}
	byID := make(map[uint]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		subtotal  float64
		items     []model.OrderItem
		cartLines []CartLine
	)
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, nil, 0, fmt.Errorf("%w: %d", ErrProductNotFound, l.ProductID)
		}
		lineTotal := util.RoundMoney(p.Price * float64(l.Quantity))
		subtotal += lineTotal
		items = append(items, model.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductSKU:   p.SKU,
			ProductImage: p.ImageURL,
			CategoryID:   p.CategoryID,
			Price:        p.Price,
			Quantity:     l.Quantity,
			TotalPrice:   lineTotal,
		})
		cartLines = append(cartLines, CartLine{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			Quantity:   l.Quantity,
			UnitPrice:  p.Price,
		})
	}

	return items, cartLines, util.RoundMoney(subtotal), nil
}

// QuoteCart prices a prospective cart, including an optional coupon, without
// reserving stock. A rejected coupon is reported in the quote, not as an error.
func (s *orderService) QuoteCart(items []OrderLineInput, couponCode string, userID *uint) (*CartQuote, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	lines, err := mergeLines(items)
	if err != nil {
		return nil, err
	}
	_, cartLines, subtotal, err := s.priceLines(lines)
	if err != nil {
		return nil, err
	}

	result := &CartQuote{}
	var quote *CouponQuote
	if code := strings.TrimSpace(couponCode); code != "" {
		quote, err = s.couponSvc.ValidateAndPrice(code, subtotal, cartLines, userID)
		if err != nil {
			return nil, err
		}
		result.Coupon = quote
	}
	result.PriceBreakdown = ComputePricing(subtotal, quote, s.pricing)
	return result, nil
}

func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*model.Order, error) {
	logger.Info("Creating order", map[string]interface{}{
		"user_id":    input.UserID,
		"item_count": len(input.Items),
		"coupon":     input.CouponCode,
	})

	if len(input.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if input.UserID == nil && strings.TrimSpace(input.ContactEmail) == "" {
		return nil, validationf("guest checkout requires a contact email")
	}
	if err := validateAddress(input.ShippingAddress); err != nil {
		return nil, err
	}
	lines, err := mergeLines(input.Items)
	if err != nil {
		return nil, err
	}

	items, cartLines, subtotal, err := s.priceLines(lines)
	if err != nil {
		return nil, err
	}

	var quote *CouponQuote
	if code := strings.TrimSpace(input.CouponCode); code != "" {
		quote, err = s.couponSvc.ValidateAndPrice(code, subtotal, cartLines, input.UserID)
		if err != nil {
			return nil, err
		}
		if !quote.Valid {
			logger.Warn("Order rejected: coupon not applicable", map[string]interface{}{
				"code":   code,
				"reason": quote.Reason,
			})
			return nil, &CouponRejectedError{Code: quote.Reason}
		}
	}

	price := ComputePricing(subtotal, quote, s.pricing)
	billing := input.ShippingAddress
	if input.BillingAddress != nil {
		billing = *input.BillingAddress
	}

	order := &model.Order{
		UserID:          input.UserID,
		ContactEmail:    strings.TrimSpace(input.ContactEmail),
		ContactPhone:    util.NormalizePhone(input.ContactPhone),
		Subtotal:        price.Subtotal,
		Tax:             price.Tax,
		ShippingCost:    price.ShippingCost,
		DiscountAmount:  price.DiscountAmount,
		TotalAmount:     price.TotalAmount,
		Status:          model.OrderStatusPending,
		ShippingAddress: datatypes.NewJSONType(input.ShippingAddress),
		BillingAddress:  datatypes.NewJSONType(billing),
		Notes:           strings.TrimSpace(input.Notes),
		OrderItems:      items,
	}
	if quote != nil {
		order.CouponID = &quote.Coupon.ID
		order.CouponCode = quote.Coupon.Code
	}

	if err := s.persistWithStock(order, lines); err != nil {
		return nil, err
	}

	logger.Info("Order created", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total_amount": order.TotalAmount,
		"discount":     order.DiscountAmount,
	})
	return s.orderRepo.FindByID(order.ID)
}

// persistWithStock reserves stock and inserts the order in one transaction.
// A clashing order number is retried with a fresh one.
func (s *orderService) persistWithStock(order *model.Order, lines []OrderLineInput) error {
	const attempts = 3
	names := make(map[uint]string, len(order.OrderItems))
	for _, it := range order.OrderItems {
		names[it.ProductID] = it.ProductName
	}
	for attempt := 1; ; attempt++ {
		number, err := generateOrderNumber(time.Now())
		if err != nil {
			return err
		}
		order.OrderNumber = number

		err = s.db.Transaction(func(tx *gorm.DB) error {
			productRepo := s.productRepo.WithTx(tx)
			for _, l := range lines {
				ok, err := productRepo.DecrementStock(l.ProductID, l.Quantity)
				if err != nil {
					return err
				}
				if !ok {
					logger.Warn("Order creation failed: insufficient stock", map[string]interface{}{
						"product_id": l.ProductID,
						"requested":  l.Quantity,
					})
					return insufficientStock(l.ProductID, names[l.ProductID])
				}
			}
			return s.orderRepo.WithTx(tx).Create(order)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == attempts {
			order.ID = 0
			return err
		}
		order.ID = 0
		for i := range order.OrderItems {
			order.OrderItems[i].ID = 0
			order.OrderItems[i].OrderID = 0
		}
	}
}

func (s *orderService) GetOrder(id uint) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(number string) (*model.Order, error) {
	order, err := s.orderRepo.FindByNumber(strings.TrimSpace(number))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListUserOrders(userID uint) ([]model.Order, error) {
	return s.orderRepo.FindByUserID(userID)
}

func (s *orderService) ListOrders(filter repository.OrderFilter) ([]model.Order, int64, error) {
	return s.orderRepo.List(filter)
}

func (s *orderService) CancelOrRefund(ctx context.Context, orderID uint, target model.OrderStatus, note string) (*model.Order, error) {
	if target != model.OrderStatusCancelled && target != model.OrderStatusRefunded {
		return nil, validationf("target status must be CANCELLED or REFUNDED")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return closeOrderTx(tx, s.orderRepo, s.productRepo, orderID, model.NonTerminalOrderStatuses(), target)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order closed and stock restored", map[string]interface{}{
		"order_id": orderID,
		"status":   target,
		"note":     note,
	})
	return s.GetOrder(orderID)
}

// CancelByCustomer lets the owner cancel an order that has not been paid yet.
func (s *orderService) CancelByCustomer(ctx context.Context, userID, orderID uint) (*model.Order, error) {
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, ErrOrderNotOwned
	}
	if order.Status != model.OrderStatusPending {
		return nil, conflictf("order %s is %s; paid orders are refunded by support", order.OrderNumber, order.Status)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return closeOrderTx(tx, s.orderRepo, s.productRepo, orderID,
			[]model.OrderStatus{model.OrderStatusPending}, model.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order cancelled by customer", map[string]interface{}{
		"order_id": orderID,
		"user_id":  userID,
	})
	return s.GetOrder(orderID)
}

// AdvanceStatus moves an order forward along the fulfillment chain.
func (s *orderService) AdvanceStatus(ctx context.Context, orderID uint, to model.OrderStatus) (*model.Order, error) {
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	// PENDING leaves only through payment capture or cancellation.
	if order.Status == model.OrderStatusPending {
		return nil, conflictf("order %d is awaiting payment", orderID)
	}
	if !order.Status.CanAdvanceTo(to) {
		return nil, conflictf("cannot move order from %s to %s", order.Status, to)
	}

	ok, err := s.orderRepo.TransitionStatus(orderID, []model.OrderStatus{order.Status}, to, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictf("order %d changed concurrently", orderID)
	}

	logger.Info("Order status advanced", map[string]interface{}{
		"order_id": orderID,
		"from":     order.Status,
		"to":       to,
	})
	return s.GetOrder(orderID)
}

// CreateReplacementOrder opens a zero-total CONFIRMED order repeating the
// original items, used to ship an exchange.
func (s *orderService) CreateReplacementOrder(ctx context.Context, original *model.Order, note string) (*model.Order, error) {
	if len(original.OrderItems) == 0 {
		return nil, ErrEmptyOrder
	}

	var subtotal float64
	items := make([]model.OrderItem, 0, len(original.OrderItems))
	lines := make([]OrderLineInput, 0, len(original.OrderItems))
	for _, it := range original.OrderItems {
		subtotal += it.TotalPrice
		items = append(items, model.OrderItem{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductSKU:   it.ProductSKU,
			ProductImage: it.ProductImage,
			CategoryID:   it.CategoryID,
			Price:        it.Price,
			Quantity:     it.Quantity,
			TotalPrice:   it.TotalPrice,
		})
		lines = append(lines, OrderLineInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	subtotal = util.RoundMoney(subtotal)

	now := time.Now()
	replacement := &model.Order{
		UserID:          original.UserID,
		ContactEmail:    original.ContactEmail,
		ContactPhone:    original.ContactPhone,
		Subtotal:        subtotal,
		DiscountAmount:  subtotal,
		TotalAmount:     0,
		Status:          model.OrderStatusConfirmed,
		ShippingAddress: original.ShippingAddress,
		BillingAddress:  original.BillingAddress,
		Notes:           note,
		PaidAt:          &now,
		OrderItems:      items,
	}

	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}
	if err := s.persistWithStock(replacement, merged); err != nil {
		return nil, err
	}

	logger.Info("Replacement order created", map[string]interface{}{
		"order_id":       replacement.ID,
		"order_number":   replacement.OrderNumber,
		"original_order": original.OrderNumber,
	})

	if err := s.publisher.PublishOrderConfirmed(ctx, events.OrderConfirmed{
		OrderID:     replacement.ID,
		OrderNumber: replacement.OrderNumber,
		Source:      "exchange",
		ConfirmedAt: now,
	}); err != nil {
		logger.Error("Failed to publish replacement order confirmation", err, map[string]interface{}{
			"order_id": replacement.ID,
		})
	}
	return replacement, nil
}
