package model

import (
	"time"

	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// orderFlow is the forward fulfillment chain. CANCELLED and REFUNDED are side exits.
var orderFlow = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanAdvanceTo reports whether next is strictly later in the fulfillment chain.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, ok := orderFlow[s]
	if !ok {
		return false
	}
	to, ok := orderFlow[next]
	return ok && to > from
}

// NonTerminalOrderStatuses lists every status a cancellation or refund may leave.
func NonTerminalOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped}
}

// AddressSnapshot is an immutable copy of an address taken at checkout.
type AddressSnapshot struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Order struct {
	ID              uint                                `gorm:"primarykey" json:"id"`
	OrderNumber     string                              `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_number"`
	UserID          *uint                               `gorm:"index" json:"user_id,omitempty"` // nil for guest checkout
	ContactEmail    string                              `gorm:"type:varchar(255)" json:"contact_email"`
	ContactPhone    string                              `gorm:"type:varchar(20)" json:"contact_phone"`
	Subtotal        float64                             `gorm:"not null" json:"subtotal"`
	Tax             float64                             `gorm:"not null;default:0" json:"tax"`
	ShippingCost    float64                             `gorm:"not null;default:0" json:"shipping_cost"`
	DiscountAmount  float64                             `gorm:"not null;default:0" json:"discount_amount"`
	TotalAmount     float64                             `gorm:"not null" json:"total_amount"`
	Status          OrderStatus                         `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	CouponID        *uint                               `gorm:"index" json:"coupon_id,omitempty"`
	CouponCode      string                              `gorm:"type:varchar(40)" json:"coupon_code,omitempty"`
	ShippingAddress datatypes.JSONType[AddressSnapshot] `json:"shipping_address"`
	BillingAddress  datatypes.JSONType[AddressSnapshot] `json:"billing_address"`
	Notes           string                              `gorm:"type:text" json:"notes,omitempty"`
	PaidAt          *time.Time                          `json:"paid_at,omitempty"` // set once, at capture
	CreatedAt       time.Time                           `json:"created_at"`
	UpdatedAt       time.Time                           `json:"updated_at"`

	User       *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Coupon     *Coupon     `gorm:"foreignKey:CouponID" json:"-"`
	OrderItems []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"order_items,omitempty"`
	Payments   []Payment   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
	Shipping   *Shipping   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"shipping,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	OrderID      uint      `gorm:"not null;index" json:"order_id"`
	ProductID    uint      `gorm:"not null;index" json:"product_id"`
	ProductName  string    `gorm:"not null" json:"product_name"`
	ProductSKU   string    `gorm:"type:varchar(64)" json:"product_sku"`
	ProductImage string    `json:"product_image,omitempty"`
	CategoryID   *uint     `json:"category_id,omitempty"`
	Price        float64   `gorm:"not null" json:"price"`
	Quantity     int       `gorm:"not null;check:quantity >= 1" json:"quantity"`
	TotalPrice   float64   `gorm:"not null" json:"total_price"`
	CreatedAt    time.Time `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
