package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is one (product, size) row in the cart. Name and Image are a
// snapshot of the catalog taken when the line was created, and UnitPrice is
// frozen at that moment as well.
type LineItem struct {
	ProductID string
	Name      string
	Image     string
	Size      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Key identifies a line within a ledger.
type Key struct {
	ProductID string
	Size      string
}

// Key returns the identity of the line.
func (li LineItem) Key() Key {
	return Key{ProductID: li.ProductID, Size: li.Size}
}

// LineTotal returns UnitPrice × Quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Totals is the derived price summary of a ledger. It is never stored.
type Totals struct {
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	DeliveryCharge decimal.Decimal
	Total          decimal.Decimal
	ItemCount      int
}

// Policy holds the pricing parameters used to derive Totals.
type Policy struct {
	// TaxRate is a fraction, e.g. 0.05 for 5%.
	TaxRate               decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

// ComputeTotals derives the totals of items under policy.
func ComputeTotals(items []LineItem, policy Policy) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
		count += item.Quantity
	}

	delivery := policy.DeliveryFee
	if subtotal.GreaterThanOrEqual(policy.FreeDeliveryThreshold) {
		delivery = decimal.Zero
	}

	tax := subtotal.Mul(policy.TaxRate)

	return Totals{
		Subtotal:       subtotal,
		Tax:            tax,
		DeliveryCharge: delivery,
		Total:          subtotal.Add(tax).Add(delivery),
		ItemCount:      count,
	}
}

// Snapshot is the state handed to observers after a change.
type Snapshot struct {
	Items  []LineItem
	Totals Totals
}

// InvalidQuantityError is returned by AddItem for quantities below 1.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s, got %d", e.ProductID, e.Quantity)
}

// QuantityLimitError is returned by AddItem when a line would exceed Limit.
type QuantityLimitError struct {
	ProductID string
	Size      string
	Quantity  int
	Limit     int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("adding %d of product %s size %s exceeds the line limit of %d",
		e.Quantity, e.ProductID, e.Size, e.Limit)
}
