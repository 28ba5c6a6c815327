package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestResolveUnitPrice(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		size    string
		want    decimal.Decimal
	}{
		{
			name:    "base price without discount",
			product: Product{ID: "p1", BasePrice: d("200"), Sizes: []string{"Small"}},
			size:    "Small",
			want:    d("200"),
		},
		{
			name: "per-size price wins over base price",
			product: Product{
				ID:          "p1",
				BasePrice:   d("200"),
				PriceBySize: map[string]decimal.Decimal{"Large": d("260")},
				Sizes:       []string{"Small", "Large"},
			},
			size: "Large",
			want: d("260"),
		},
		{
			name: "zero per-size price falls back to base price",
			product: Product{
				ID:          "p1",
				BasePrice:   d("200"),
				PriceBySize: map[string]decimal.Decimal{"Large": decimal.Zero},
				Sizes:       []string{"Large"},
			},
			size: "Large",
			want: d("200"),
		},
		{
			name: "missing per-size entry falls back to base price",
			product: Product{
				ID:          "p1",
				BasePrice:   d("200"),
				PriceBySize: map[string]decimal.Decimal{"Small": d("150")},
				Sizes:       []string{"Small", "Large"},
			},
			size: "Large",
			want: d("200"),
		},
		{
			name: "discount applies to per-size price",
			product: Product{
				ID:              "a",
				BasePrice:       d("120"),
				PriceBySize:     map[string]decimal.Decimal{"Small": d("100")},
				DiscountPercent: d("10"),
				Sizes:           []string{"Small"},
			},
			size: "Small",
			want: d("90"),
		},
		{
			name: "fractional discount rounds to 2 dp",
			product: Product{
				ID:              "p1",
				BasePrice:       d("9.99"),
				DiscountPercent: d("15"),
			},
			size: "M",
			// 9.99 * 0.85 = 8.4915
			want: d("8.49"),
		},
		{
			name:    "discount above 100 is clamped",
			product: Product{ID: "p1", BasePrice: d("50"), DiscountPercent: d("150")},
			size:    "M",
			want:    decimal.Zero,
		},
		{
			name:    "negative discount is ignored",
			product: Product{ID: "p1", BasePrice: d("50"), DiscountPercent: d("-5")},
			size:    "M",
			want:    d("50"),
		},
		{
			name:    "unknown size still resolves",
			product: Product{ID: "p1", BasePrice: d("75"), Sizes: []string{"S"}},
			size:    "XXL",
			want:    d("75"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveUnitPrice(tt.product, tt.size)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestHasSize(t *testing.T) {
	p := Product{Sizes: []string{"Small", "Large"}}

	assert.True(t, p.HasSize("Small"))
	assert.False(t, p.HasSize("small"))
	assert.False(t, p.HasSize(""))
}

func TestPrimaryImage(t *testing.T) {
	assert.Empty(t, Product{}.PrimaryImage())
	assert.Equal(t, "a.jpg", Product{Images: []string{"a.jpg", "b.jpg"}}.PrimaryImage())
}

func TestValidateSizePrices(t *testing.T) {
	tests := []struct {
		name     string
		product  Product
		wantSize string
		wantErr  string
	}{
		{
			name:    "base price only",
			product: Product{ID: "p1", BasePrice: d("10"), Sizes: []string{"S", "M"}},
		},
		{
			name: "every size priced without base price",
			product: Product{
				ID:          "p1",
				PriceBySize: map[string]decimal.Decimal{"S": d("10"), "M": d("12")},
				Sizes:       []string{"S", "M"},
			},
		},
		{
			name: "zero size price rejected",
			product: Product{
				ID:          "p1",
				BasePrice:   d("10"),
				PriceBySize: map[string]decimal.Decimal{"M": decimal.Zero},
				Sizes:       []string{"M"},
			},
			wantSize: "M",
		},
		{
			name: "size without price and no base price",
			product: Product{
				ID:          "p1",
				PriceBySize: map[string]decimal.Decimal{"S": d("10")},
				Sizes:       []string{"S", "L"},
			},
			wantSize: "L",
		},
		{
			name:    "no sizes and no base price",
			product: Product{ID: "p1"},
			wantErr: "base price must be greater than 0",
		},
		{
			name:    "discount out of range",
			product: Product{ID: "p1", BasePrice: d("10"), DiscountPercent: d("101")},
			wantErr: "out of range",
		},
		{
			name:    "negative discount",
			product: Product{ID: "p1", BasePrice: d("10"), DiscountPercent: d("-1")},
			wantErr: "product p1: discount -1% out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSizePrices(tt.product)

			switch {
			case tt.wantSize != "":
				var spErr *SizePriceError
				require.ErrorAs(t, err, &spErr)
				assert.Equal(t, tt.wantSize, spErr.Size)
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
			}
		})
	}
}
