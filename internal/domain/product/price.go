package product

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectivePrice returns the undiscounted price for size. A missing or
// non-positive per-size entry falls back to BasePrice.
func (p Product) EffectivePrice(size string) decimal.Decimal {
	if price, ok := p.PriceBySize[size]; ok && price.IsPositive() {
		return price
	}
	return p.BasePrice
}

// ResolveUnitPrice returns the price a customer pays for one unit of p in the
// given size: the effective price with the product discount applied, rounded
// to 2 decimal places.
//
// Size membership is not checked; callers validate it with HasSize first.
func ResolveUnitPrice(p Product, size string) decimal.Decimal {
	price := p.EffectivePrice(size)

	discount := clampPercent(p.DiscountPercent)
	if discount.IsZero() {
		return price.Round(2)
	}
	return price.Mul(hundred.Sub(discount)).Div(hundred).Round(2)
}

func clampPercent(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// SizePriceError reports a per-size price that is zero or negative.
type SizePriceError struct {
	ProductID string
	Size      string
}

func (e *SizePriceError) Error() string {
	return fmt.Sprintf("product %s: price for size %q must be greater than 0", e.ProductID, e.Size)
}

// ValidateSizePrices checks the catalog rules enforced when products are
// written: every per-size price must be positive, a base price must exist
// when some size has no explicit price, and the discount must be in [0, 100].
func ValidateSizePrices(p Product) error {
	for size, price := range p.PriceBySize {
		if size == "" || !price.IsPositive() {
			return &SizePriceError{ProductID: p.ID, Size: size}
		}
	}

	if !p.BasePrice.IsPositive() {
		for _, size := range p.Sizes {
			if _, ok := p.PriceBySize[size]; !ok {
				return &SizePriceError{ProductID: p.ID, Size: size}
			}
		}
		if len(p.Sizes) == 0 {
			return errors.Errorf("product %s: base price must be greater than 0", p.ID)
		}
	}

	if p.DiscountPercent.IsNegative() || p.DiscountPercent.GreaterThan(hundred) {
		return errors.Errorf("product %s: discount %s%% out of range", p.ID, p.DiscountPercent)
	}
	return nil
}
