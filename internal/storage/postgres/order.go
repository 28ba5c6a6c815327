package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-cart/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, items, subtotal, tax, delivery_charge,
	discounts, total, coupon_code, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order lines are stored in a JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, encodeOrderItems(o.Items), o.Subtotal, o.Tax, o.DeliveryCharge,
		o.Discounts, o.Total, o.CouponCode, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func encodeOrderItems(items []order.OrderItem) []byte {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
				e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
				e.Field("unitPrice", func(e *jx.Encoder) { e.Str(it.UnitPrice.String()) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			})
		}
	})
	return e.Bytes()
}
