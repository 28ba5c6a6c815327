package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
)

// ErrEmptyCart is returned when checking out a cart without lines.
var ErrEmptyCart = fmt.Errorf("cart is empty")

// InvalidLineError indicates a cart line that cannot be ordered, such as a
// line restored from a damaged saved cart.
type InvalidLineError struct {
	ProductID string
	Size      string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("cart line %s/%s cannot be ordered", e.ProductID, e.Size)
}

// Cart is the part of a cart ledger checkout needs.
type Cart interface {
	Items() []cart.LineItem
	Totals() cart.Totals
	Clear()
}

// Service places orders from cart contents.
type Service struct {
	coupons coupon.Validator
	orders  Repository
	now     func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(coupons coupon.Validator, orders Repository) *Service {
	return &Service{
		coupons: coupons,
		orders:  orders,
		now:     time.Now,
	}
}

// PlaceOrder turns the cart into an order at the cart's frozen prices,
// applies couponCode when set, persists the order, and only then records the
// coupon use and clears the cart. On any error the cart is left as it was and
// no coupon use is recorded.
func (s *Service) PlaceOrder(ctx context.Context, c Cart, couponCode string) (*Order, error) {
	lines := c.Items()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]OrderItem, len(lines))
	couponItems := make([]coupon.Item, len(lines))
	for i, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 || line.UnitPrice.IsNegative() {
			return nil, &InvalidLineError{ProductID: line.ProductID, Size: line.Size}
		}
		items[i] = OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Size:      line.Size,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
		couponItems[i] = coupon.Item{
			ProductID: line.ProductID,
			Size:      line.Size,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
		}
	}

	totals := c.Totals()

	discount := decimal.Zero
	if couponCode != "" {
		d, err := s.coupons.Validate(ctx, couponCode, couponItems)
		if err != nil {
			return nil, fmt.Errorf("validate coupon: %w", err)
		}
		discount = d.Amount
	}

	total := totals.Total.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		ID:             uuid.New().String(),
		Items:          items,
		Subtotal:       totals.Subtotal.Round(2),
		Tax:            totals.Tax.Round(2),
		DeliveryCharge: totals.DeliveryCharge.Round(2),
		Discounts:      discount.Round(2),
		Total:          total.Round(2),
		CouponCode:     couponCode,
		CreatedAt:      s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// The order stands even if the use cannot be recorded.
	if couponCode != "" {
		if err := s.coupons.Redeem(ctx, couponCode); err != nil {
			zctx.From(ctx).Warn("Record coupon use failed",
				zap.String("order_id", o.ID),
				zap.String("coupon", couponCode),
				zap.Error(err),
			)
		}
	}

	c.Clear()
	return o, nil
}
