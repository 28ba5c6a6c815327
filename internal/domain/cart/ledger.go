// Package cart implements the shopping cart ledger: an ordered list of line
// items keyed by (product, size) with derived totals and best-effort
// persistence to a size-bounded key-value store.
//
// A Ledger is single-writer and not safe for concurrent use. Callers that
// share one between goroutines must serialize access themselves.
package cart

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

const (
	// DefaultKey is the store key used when Config.Key is empty.
	DefaultKey = "cart"
	// DefaultMaxPayloadBytes is the serialized size ceiling (5 MiB).
	DefaultMaxPayloadBytes = 5 << 20
	// MaxLineQuantity bounds the quantity of a single line.
	MaxLineQuantity = 1_000_000
)

// Config holds non-dependency configuration for a Ledger.
type Config struct {
	// Key is the single store key the ledger owns.
	Key string
	// MaxPayloadBytes caps the serialized ledger. Larger payloads are not
	// written and the stored value is removed.
	MaxPayloadBytes int
	Policy          Policy
}

type subscription struct {
	id int
	fn func(Snapshot)
}

// Ledger owns the cart line items and is the only component that reads or
// writes the cart's store key.
type Ledger struct {
	lg         *zap.Logger
	store      Store
	key        string
	maxPayload int
	policy     Policy

	items []LineItem

	subs   []subscription
	nextID int
}

// NewLedger creates a Ledger and restores its lines from store. A missing or
// unreadable stored value yields an empty ledger. A nil store keeps the
// ledger in memory only.
func NewLedger(cfg Config, store Store, lg *zap.Logger) *Ledger {
	if lg == nil {
		lg = zap.NewNop()
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}

	l := &Ledger{
		lg:         lg.With(zap.String("cart_key", cfg.Key)),
		store:      store,
		key:        cfg.Key,
		maxPayload: cfg.MaxPayloadBytes,
		policy:     cfg.Policy,
	}
	l.load()
	return l
}

// AddItem adds quantity units of p in size. The unit price is resolved now
// and frozen into a new line; when the (product, size) line already exists
// only its quantity grows and its original price is kept.
//
// Quantities below 1 are rejected with *InvalidQuantityError. A line that
// would grow past MaxLineQuantity is rejected with *QuantityLimitError. Both
// leave the ledger untouched.
func (l *Ledger) AddItem(p product.Product, size string, quantity int) error {
	if quantity < 1 {
		return &InvalidQuantityError{ProductID: p.ID, Quantity: quantity}
	}

	i := l.index(p.ID, size)
	existing := 0
	if i >= 0 {
		existing = l.items[i].Quantity
	}
	if quantity > MaxLineQuantity-existing {
		return &QuantityLimitError{ProductID: p.ID, Size: size, Quantity: quantity, Limit: MaxLineQuantity}
	}

	if i >= 0 {
		l.items[i].Quantity += quantity
	} else {
		l.items = append(l.items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.PrimaryImage(),
			Size:      size,
			UnitPrice: product.ResolveUnitPrice(p, size),
			Quantity:  quantity,
		})
	}

	l.commit()
	return nil
}

// UpdateQuantity sets the quantity of an existing line. It does nothing when
// the line is absent or quantity is outside [1, MaxLineQuantity]; lowering a
// line to zero goes through RemoveItem.
func (l *Ledger) UpdateQuantity(productID, size string, quantity int) {
	i := l.index(productID, size)
	if i < 0 || quantity < 1 || quantity > MaxLineQuantity {
		return
	}
	if l.items[i].Quantity == quantity {
		return
	}
	l.items[i].Quantity = quantity
	l.commit()
}

// RemoveItem deletes the line if present. Removing an absent line is a no-op.
func (l *Ledger) RemoveItem(productID, size string) {
	i := l.index(productID, size)
	if i < 0 {
		return
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.commit()
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.items = nil
	l.commit()
}

// Items returns a copy of the lines in insertion order.
func (l *Ledger) Items() []LineItem {
	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of lines.
func (l *Ledger) Len() int {
	return len(l.items)
}

// Totals derives the current totals. Nothing is cached.
func (l *Ledger) Totals() Totals {
	return ComputeTotals(l.items, l.policy)
}

// Snapshot returns the current lines and totals.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{Items: l.Items(), Totals: l.Totals()}
}

// Subscribe registers fn to be called synchronously after every change of
// the ledger. The returned function removes the subscription.
func (l *Ledger) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription{id: id, fn: fn})

	return func() {
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

func (l *Ledger) index(productID, size string) int {
	for i, item := range l.items {
		if item.ProductID == productID && item.Size == size {
			return i
		}
	}
	return -1
}

// commit persists the new state and notifies observers.
func (l *Ledger) commit() {
	l.persist()
	l.notify()
}

func (l *Ledger) notify() {
	if len(l.subs) == 0 {
		return
	}
	snap := l.Snapshot()
	subs := make([]subscription, len(l.subs))
	copy(subs, l.subs)
	for _, s := range subs {
		s.fn(snap)
	}
}

// persist writes the ledger to the store. Failures are logged, never
// returned: an oversized payload clears the stored value and keeps memory,
// a quota failure clears both.
func (l *Ledger) persist() {
	if l.store == nil {
		return
	}

	payload := EncodeItems(l.items)
	if len(payload) > l.maxPayload {
		l.lg.Warn("Cart payload exceeds size limit, clearing saved cart",
			zap.Int("size", len(payload)),
			zap.Int("limit", l.maxPayload),
		)
		l.removeStored()
		return
	}

	err := l.store.Set(l.key, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrQuotaExceeded):
		l.lg.Warn("Storage quota exceeded, resetting cart",
			zap.Int("lines", len(l.items)),
			zap.Error(err),
		)
		l.removeStored()
		l.items = nil
	default:
		l.lg.Warn("Save cart failed", zap.Error(err))
	}
}

func (l *Ledger) removeStored() {
	if err := l.store.Remove(l.key); err != nil {
		l.lg.Warn("Remove saved cart failed", zap.Error(err))
	}
}

func (l *Ledger) load() {
	if l.store == nil {
		return
	}

	raw, err := l.store.Get(l.key)
	if err != nil {
		if !errors.Is(err, ErrNoValue) {
			l.lg.Warn("Read saved cart failed", zap.Error(err))
		}
		return
	}

	items, err := DecodeItems(raw)
	if err != nil {
		l.lg.Warn("Ignoring unreadable saved cart", zap.Error(err))
		return
	}

	// Loaded lines are kept as stored; damaged ones are only reported.
	damaged := 0
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice.IsNegative() {
			damaged++
		}
	}
	if damaged > 0 {
		l.lg.Warn("Saved cart contains damaged lines",
			zap.Int("damaged", damaged),
			zap.Int("lines", len(items)),
		)
	}

	l.items = items
}
