package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a placed order. Lines carry the prices frozen in the cart.
type Order struct {
	ID             string
	Items          []OrderItem
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	DeliveryCharge decimal.Decimal
	Discounts      decimal.Decimal
	Total          decimal.Decimal
	CouponCode     string
	CreatedAt      time.Time
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductID string
	Name      string
	Size      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
}
