package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. The catalog is
// read-only from the point of view of the cart.
type Product struct {
	ID       string
	Name     string
	Category string
	// BasePrice applies to every size without a positive PriceBySize entry.
	BasePrice   decimal.Decimal
	PriceBySize map[string]decimal.Decimal
	// DiscountPercent is in the range [0, 100].
	DiscountPercent decimal.Decimal
	Sizes           []string
	Images          []string
}

// HasSize reports whether size is one of the product's sizes.
func (p Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// PrimaryImage returns the first image or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
