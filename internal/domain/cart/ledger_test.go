package cart

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-faster/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

// --- Mock implementations ---

type mockStore struct {
	values  map[string][]byte
	setErr  error
	sets    int
	removes int
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string][]byte)}
}

func (m *mockStore) Get(key string) ([]byte, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNoValue
	}
	return v, nil
}

func (m *mockStore) Set(key string, value []byte) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *mockStore) Remove(key string) error {
	m.removes++
	delete(m.values, key)
	return nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var testPolicy = Policy{
	TaxRate:               d("0.05"),
	FreeDeliveryThreshold: d("500"),
	DeliveryFee:           d("50"),
}

func newTestLedger(t *testing.T, store Store) (*Ledger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	l := NewLedger(Config{Key: "cart", Policy: testPolicy}, store, zap.New(core))
	return l, logs
}

func productA() product.Product {
	return product.Product{
		ID:              "A",
		Name:            "Linen Shirt",
		BasePrice:       d("120"),
		PriceBySize:     map[string]decimal.Decimal{"Small": d("100")},
		DiscountPercent: d("10"),
		Sizes:           []string{"Small", "Large"},
		Images:          []string{"a.jpg"},
	}
}

func productB() product.Product {
	return product.Product{
		ID:        "B",
		Name:      "Wool Coat",
		BasePrice: d("500"),
		Sizes:     []string{"Large"},
		Images:    []string{"b.jpg"},
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s: expected %s, got %s", msg, want, got)
}

var decimalComparer = cmp.Comparer(func(x, y decimal.Decimal) bool { return x.Equal(y) })

// --- Tests ---

func TestLedger_EndToEnd(t *testing.T) {
	l, _ := newTestLedger(t, newMockStore())

	require.NoError(t, l.AddItem(productA(), "Small", 2))
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	totals := l.Totals()
	assertDecimal(t, "680", totals.Subtotal, "subtotal")
	assertDecimal(t, "34", totals.Tax, "tax")
	assertDecimal(t, "0", totals.DeliveryCharge, "delivery")
	assertDecimal(t, "714", totals.Total, "total")
	assert.Equal(t, 3, totals.ItemCount)
}

func TestLedger_AddItemMergesAndFreezesPrice(t *testing.T) {
	l, _ := newTestLedger(t, newMockStore())
	p := productA()

	require.NoError(t, l.AddItem(p, "Small", 2))

	// Catalog price changes after the first add.
	p.PriceBySize = map[string]decimal.Decimal{"Small": d("300")}
	p.DiscountPercent = decimal.Zero
	require.NoError(t, l.AddItem(p, "Small", 3))

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assertDecimal(t, "90", items[0].UnitPrice, "frozen price")
}

func TestLedger_AddItemSnapshotsCatalogFields(t *testing.T) {
	l, _ := newTestLedger(t, nil)

	require.NoError(t, l.AddItem(productA(), "Large", 1))

	want := []LineItem{{
		ProductID: "A",
		Name:      "Linen Shirt",
		Image:     "a.jpg",
		Size:      "Large",
		UnitPrice: d("108"),
		Quantity:  1,
	}}
	assert.Empty(t, cmp.Diff(want, l.Items(), decimalComparer))
}

func TestLedger_AddItemDistinctSizesAreSeparateLines(t *testing.T) {
	l, _ := newTestLedger(t, nil)

	require.NoError(t, l.AddItem(productA(), "Small", 1))
	require.NoError(t, l.AddItem(productA(), "Large", 1))

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Small", items[0].Size)
	assert.Equal(t, "Large", items[1].Size)
}

func TestLedger_AddItemRejectsInvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -1, -100} {
		t.Run(fmt.Sprintf("quantity %d", qty), func(t *testing.T) {
			store := newMockStore()
			l, _ := newTestLedger(t, store)
			require.NoError(t, l.AddItem(productB(), "Large", 1))
			setsBefore := store.sets

			err := l.AddItem(productB(), "Large", qty)

			var iqErr *InvalidQuantityError
			require.ErrorAs(t, err, &iqErr)
			assert.Equal(t, "B", iqErr.ProductID)
			assert.Equal(t, qty, iqErr.Quantity)
			assert.Equal(t, 1, l.Items()[0].Quantity)
			assert.Equal(t, setsBefore, store.sets, "rejected add must not persist")
		})
	}
}

func TestLedger_AddItemLineLimit(t *testing.T) {
	tests := []struct {
		name     string
		existing int
		add      int
		wantErr  bool
		wantQty  int
	}{
		{name: "new line at limit", add: MaxLineQuantity, wantQty: MaxLineQuantity},
		{name: "new line above limit", add: MaxLineQuantity + 1, wantErr: true},
		{name: "merge up to limit", existing: 10, add: MaxLineQuantity - 10, wantQty: MaxLineQuantity},
		{name: "merge past limit", existing: MaxLineQuantity, add: 1, wantErr: true, wantQty: MaxLineQuantity},
		{name: "merge with max int does not wrap", existing: 1, add: math.MaxInt, wantErr: true, wantQty: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			l, _ := newTestLedger(t, store)
			if tt.existing > 0 {
				require.NoError(t, l.AddItem(productB(), "Large", tt.existing))
			}
			setsBefore := store.sets

			err := l.AddItem(productB(), "Large", tt.add)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantQty, l.Items()[0].Quantity)
				return
			}
			var limitErr *QuantityLimitError
			require.ErrorAs(t, err, &limitErr)
			assert.Equal(t, "B", limitErr.ProductID)
			assert.Equal(t, MaxLineQuantity, limitErr.Limit)
			assert.Equal(t, setsBefore, store.sets, "rejected add must not persist")
			if tt.existing == 0 {
				assert.Zero(t, l.Len())
				return
			}
			assert.Equal(t, tt.wantQty, l.Items()[0].Quantity)
			assert.Positive(t, l.Totals().ItemCount)
			assert.True(t, l.Totals().Subtotal.IsPositive())
		})
	}
}

func TestLedger_UniqueKeysUnderRandomAdds(t *testing.T) {
	faker := gofakeit.New(42)
	l, _ := newTestLedger(t, nil)

	ids := []string{"p1", "p2", "p3", "p4"}
	sizes := []string{"S", "M", "L"}
	want := make(map[Key]int)

	for range 500 {
		p := product.Product{
			ID:        ids[faker.IntRange(0, len(ids)-1)],
			BasePrice: decimal.NewFromInt(int64(faker.IntRange(1, 1000))),
		}
		size := sizes[faker.IntRange(0, len(sizes)-1)]
		qty := faker.IntRange(1, 5)

		require.NoError(t, l.AddItem(p, size, qty))
		want[Key{ProductID: p.ID, Size: size}] += qty
	}

	got := make(map[Key]int)
	for _, item := range l.Items() {
		_, dup := got[item.Key()]
		require.False(t, dup, "duplicate line for %+v", item.Key())
		got[item.Key()] = item.Quantity
	}
	assert.Equal(t, want, got)
}

func TestLedger_UpdateQuantity(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		size      string
		quantity  int
		wantQty   int
		wantSaved bool
	}{
		{name: "sets quantity", productID: "A", size: "Small", quantity: 7, wantQty: 7, wantSaved: true},
		{name: "zero is a no-op", productID: "A", size: "Small", quantity: 0, wantQty: 2},
		{name: "negative is a no-op", productID: "A", size: "Small", quantity: -3, wantQty: 2},
		{name: "absent size is a no-op", productID: "A", size: "Large", quantity: 4, wantQty: 2},
		{name: "absent product is a no-op", productID: "Z", size: "Small", quantity: 4, wantQty: 2},
		{name: "same quantity is a no-op", productID: "A", size: "Small", quantity: 2, wantQty: 2},
		{name: "above line limit is a no-op", productID: "A", size: "Small", quantity: MaxLineQuantity + 1, wantQty: 2},
		{name: "line limit is accepted", productID: "A", size: "Small", quantity: MaxLineQuantity, wantQty: MaxLineQuantity, wantSaved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			l, _ := newTestLedger(t, store)
			require.NoError(t, l.AddItem(productA(), "Small", 2))
			setsBefore := store.sets

			l.UpdateQuantity(tt.productID, tt.size, tt.quantity)

			items := l.Items()
			require.Len(t, items, 1)
			assert.Equal(t, tt.wantQty, items[0].Quantity)
			if tt.wantSaved {
				assert.Equal(t, setsBefore+1, store.sets)
			} else {
				assert.Equal(t, setsBefore, store.sets)
			}
		})
	}
}

func TestLedger_RemoveItemIsIdempotent(t *testing.T) {
	store := newMockStore()
	l, _ := newTestLedger(t, store)
	require.NoError(t, l.AddItem(productA(), "Small", 1))
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	l.RemoveItem("A", "Small")
	afterFirst := l.Items()
	setsAfterFirst := store.sets

	l.RemoveItem("A", "Small")

	assert.Empty(t, cmp.Diff(afterFirst, l.Items(), decimalComparer))
	assert.Equal(t, setsAfterFirst, store.sets)
	require.Len(t, afterFirst, 1)
	assert.Equal(t, "B", afterFirst[0].ProductID)
}

func TestLedger_Clear(t *testing.T) {
	store := newMockStore()
	l, _ := newTestLedger(t, store)
	require.NoError(t, l.AddItem(productA(), "Small", 1))

	l.Clear()

	assert.Zero(t, l.Len())
	assert.Equal(t, "[]", string(store.values["cart"]))
	assert.Equal(t, 0, l.Totals().ItemCount)
}

func TestLedger_ItemsReturnsCopy(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	items := l.Items()
	items[0].Quantity = 99

	assert.Equal(t, 1, l.Items()[0].Quantity)
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name         string
		items        []LineItem
		wantSubtotal string
		wantTax      string
		wantDelivery string
		wantTotal    string
		wantCount    int
	}{
		{
			name:         "empty ledger pays the flat fee",
			wantSubtotal: "0",
			wantTax:      "0",
			wantDelivery: "50",
			wantTotal:    "50",
		},
		{
			name:         "below threshold",
			items:        []LineItem{{UnitPrice: d("99.99"), Quantity: 2}},
			wantSubtotal: "199.98",
			wantTax:      "9.999",
			wantDelivery: "50",
			wantTotal:    "259.979",
			wantCount:    2,
		},
		{
			name:         "exactly at threshold is free",
			items:        []LineItem{{UnitPrice: d("250"), Quantity: 2}},
			wantSubtotal: "500",
			wantTax:      "25",
			wantDelivery: "0",
			wantTotal:    "525",
			wantCount:    2,
		},
		{
			name: "several lines",
			items: []LineItem{
				{UnitPrice: d("90"), Quantity: 2},
				{UnitPrice: d("500"), Quantity: 1},
			},
			wantSubtotal: "680",
			wantTax:      "34",
			wantDelivery: "0",
			wantTotal:    "714",
			wantCount:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.items, testPolicy)

			assertDecimal(t, tt.wantSubtotal, got.Subtotal, "subtotal")
			assertDecimal(t, tt.wantTax, got.Tax, "tax")
			assertDecimal(t, tt.wantDelivery, got.DeliveryCharge, "delivery")
			assertDecimal(t, tt.wantTotal, got.Total, "total")
			assert.Equal(t, tt.wantCount, got.ItemCount)
		})
	}
}

func TestLedger_PersistenceRoundTrip(t *testing.T) {
	store := newMockStore()
	l, _ := newTestLedger(t, store)
	require.NoError(t, l.AddItem(productA(), "Small", 3))
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	reloaded, logs := newTestLedger(t, store)

	assert.Empty(t, cmp.Diff(l.Items(), reloaded.Items(), decimalComparer))
	assert.Zero(t, logs.Len())
}

func TestLedger_OversizedPayloadClearsStoreKeepsMemory(t *testing.T) {
	store := newMockStore()
	core, logs := observer.New(zapcore.WarnLevel)
	l := NewLedger(Config{Key: "cart", MaxPayloadBytes: 200, Policy: testPolicy}, store, zap.New(core))

	require.NoError(t, l.AddItem(productB(), "Large", 1))
	require.Contains(t, store.values, "cart")

	big := productA()
	big.Name = strings.Repeat("x", 300)
	require.NoError(t, l.AddItem(big, "Small", 1))

	assert.NotContains(t, store.values, "cart", "stored value must be cleared")
	assert.Equal(t, 2, l.Len(), "memory keeps both lines")
	assert.Equal(t, 1, logs.FilterMessage("Cart payload exceeds size limit, clearing saved cart").Len())
}

func TestLedger_QuotaExceededResetsMemory(t *testing.T) {
	store := newMockStore()
	l, logs := newTestLedger(t, store)
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	var seen []Snapshot
	l.Subscribe(func(s Snapshot) { seen = append(seen, s) })

	store.setErr = errors.Wrap(ErrQuotaExceeded, "local storage")
	require.NoError(t, l.AddItem(productA(), "Small", 1))

	assert.Zero(t, l.Len())
	assert.NotContains(t, store.values, "cart")
	assert.Equal(t, 1, logs.FilterMessage("Storage quota exceeded, resetting cart").Len())
	require.Len(t, seen, 1)
	assert.Empty(t, seen[0].Items, "observers see the reset")
}

func TestLedger_OtherWriteErrorKeepsMemory(t *testing.T) {
	store := newMockStore()
	l, logs := newTestLedger(t, store)
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	store.setErr = errors.New("disk full")
	require.NoError(t, l.AddItem(productA(), "Small", 1))

	assert.Equal(t, 2, l.Len())
	assert.Contains(t, store.values, "cart", "previous value is left in place")
	assert.Equal(t, 1, logs.FilterMessage("Save cart failed").Len())
}

func TestLedger_Load(t *testing.T) {
	tests := []struct {
		name        string
		stored      string
		wantLines   int
		wantWarning string
	}{
		{
			name:        "malformed JSON starts empty",
			stored:      `[{"productId":"A"`,
			wantWarning: "Ignoring unreadable saved cart",
		},
		{
			name:        "wrong top-level type starts empty",
			stored:      `{"productId":"A"}`,
			wantWarning: "Ignoring unreadable saved cart",
		},
		{
			name:        "trailing data starts empty",
			stored:      `[{"productId":"A","size":"S","unitPrice":"10","quantity":1}] junk`,
			wantWarning: "Ignoring unreadable saved cart",
		},
		{
			name:        "fractional quantity starts empty",
			stored:      `[{"productId":"A","size":"S","unitPrice":"10","quantity":1.9}]`,
			wantWarning: "Ignoring unreadable saved cart",
		},
		{
			name:   "null starts empty",
			stored: `null`,
		},
		{
			name:      "numeric prices are accepted",
			stored:    `[{"productId":"A","size":"S","unitPrice":12.5,"quantity":2}]`,
			wantLines: 1,
		},
		{
			name:        "partial lines are kept as-is",
			stored:      `[{"productId":"A","unitPrice":"10"},{"size":"M","quantity":1}]`,
			wantLines:   2,
			wantWarning: "Saved cart contains damaged lines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			store.values["cart"] = []byte(tt.stored)

			l, logs := newTestLedger(t, store)

			assert.Equal(t, tt.wantLines, l.Len())
			assert.Equal(t, tt.stored, string(store.values["cart"]), "load never rewrites the stored value")
			if tt.wantWarning != "" {
				assert.Equal(t, 1, logs.FilterMessage(tt.wantWarning).Len())
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}

func TestLedger_PartialLinesFlowIntoTotals(t *testing.T) {
	store := newMockStore()
	store.values["cart"] = []byte(`[{"productId":"A","unitPrice":"10"},{"productId":"B","unitPrice":"20","quantity":2}]`)

	l, _ := newTestLedger(t, store)

	totals := l.Totals()
	assertDecimal(t, "40", totals.Subtotal, "subtotal")
	assert.Equal(t, 2, totals.ItemCount)
}

func TestLedger_Subscribe(t *testing.T) {
	l, _ := newTestLedger(t, nil)

	var counts []int
	unsubscribe := l.Subscribe(func(s Snapshot) { counts = append(counts, s.Totals.ItemCount) })

	require.NoError(t, l.AddItem(productA(), "Small", 2))
	l.UpdateQuantity("A", "Small", 0) // no-op, no notification
	l.UpdateQuantity("A", "Small", 4)
	l.RemoveItem("Z", "Small") // no-op, no notification
	l.RemoveItem("A", "Small")

	unsubscribe()
	require.NoError(t, l.AddItem(productB(), "Large", 1))

	assert.Equal(t, []int{2, 4, 0}, counts)
}
