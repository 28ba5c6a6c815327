package cart

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeItems(t *testing.T) {
	got := EncodeItems([]LineItem{{
		ProductID: "A",
		Name:      "Shirt \"Blue\"",
		Image:     "a.jpg",
		Size:      "Small",
		UnitPrice: d("90.50"),
		Quantity:  2,
	}})

	assert.JSONEq(t,
		`[{"productId":"A","name":"Shirt \"Blue\"","image":"a.jpg","size":"Small","unitPrice":"90.5","quantity":2}]`,
		string(got),
	)
}

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []LineItem
		wantErr bool
	}{
		{
			name:  "empty array",
			input: `[]`,
		},
		{
			name:  "unknown fields are skipped",
			input: `[{"productId":"A","extra":{"nested":[1,2]},"quantity":"3","unitPrice":"1.25"}]`,
			want:  []LineItem{{ProductID: "A", Quantity: 3, UnitPrice: d("1.25")}},
		},
		{
			name:  "null fields stay zero",
			input: `[{"productId":"A","name":null,"unitPrice":null,"quantity":null}]`,
			want:  []LineItem{{ProductID: "A"}},
		},
		{
			name:    "price of wrong type",
			input:   `[{"productId":"A","unitPrice":true}]`,
			wantErr: true,
		},
		{
			name:    "unparsable price",
			input:   `[{"productId":"A","unitPrice":"ten"}]`,
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   ``,
			wantErr: true,
		},
		{
			name:    "fractional quantity",
			input:   `[{"productId":"A","quantity":1.9}]`,
			wantErr: true,
		},
		{
			name:    "quantity beyond int range",
			input:   `[{"productId":"A","quantity":1e30}]`,
			wantErr: true,
		},
		{
			name:  "integral quantity in exponent form",
			input: `[{"productId":"A","quantity":2e1}]`,
			want:  []LineItem{{ProductID: "A", Quantity: 20}},
		},
		{
			name:  "negative quantity is kept as loaded",
			input: `[{"productId":"A","quantity":-2}]`,
			want:  []LineItem{{ProductID: "A", Quantity: -2}},
		},
		{
			name:    "trailing data",
			input:   `[{"productId":"A","quantity":1}] trailing`,
			wantErr: true,
		},
		{
			name:    "second value",
			input:   `[] []`,
			wantErr: true,
		},
		{
			name:  "surrounding whitespace",
			input: " \n[{\"productId\":\"A\",\"quantity\":1}]\n ",
			want:  []LineItem{{ProductID: "A", Quantity: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeItems([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.want, got, decimalComparer))
		})
	}
}

func TestEncodeDecodeItems(t *testing.T) {
	items := []LineItem{
		{ProductID: "A", Name: "Shirt", Image: "a.jpg", Size: "Small", UnitPrice: d("90"), Quantity: 3},
		{ProductID: "B", Name: "Coat", Image: "b.jpg", Size: "Large", UnitPrice: d("500"), Quantity: 1},
	}

	got, err := DecodeItems(EncodeItems(items))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(items, got, decimalComparer))
}
