package cart

import (
	"math"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeItems serializes lines into the JSON array stored under the ledger key.
// Prices are written as strings to keep them exact.
func EncodeItems(items []LineItem) []byte {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, item := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
				e.Field("image", func(e *jx.Encoder) { e.Str(item.Image) })
				e.Field("size", func(e *jx.Encoder) { e.Str(item.Size) })
				e.Field("unitPrice", func(e *jx.Encoder) { e.Str(item.UnitPrice.String()) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
			})
		}
	})
	return e.Bytes()
}

// DecodeItems parses a stored ledger. Lines are taken as they are: missing
// fields stay at their zero value and unknown fields are skipped. Prices and
// quantities may be JSON strings or numbers; a quantity must be an integer
// that fits in an int. A top-level null decodes to an empty ledger. Trailing
// data after the value makes the whole payload invalid.
func DecodeItems(data []byte) ([]LineItem, error) {
	if err := jx.DecodeBytes(data).Validate(); err != nil {
		return nil, errors.Wrap(err, "decode cart items")
	}

	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return nil, d.Null()
	}

	var items []LineItem
	if err := d.Arr(func(d *jx.Decoder) error {
		item, err := decodeItem(d)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart items")
	}
	return items, nil
}

func decodeItem(d *jx.Decoder) (LineItem, error) {
	var item LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = decodeString(d)
		case "name":
			item.Name, err = decodeString(d)
		case "image":
			item.Image, err = decodeString(d)
		case "size":
			item.Size, err = decodeString(d)
		case "unitPrice":
			item.UnitPrice, err = decodeDecimal(d)
		case "quantity":
			item.Quantity, err = decodeQuantity(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return item, err
}

var (
	minQuantity = decimal.NewFromInt(math.MinInt)
	maxQuantity = decimal.NewFromInt(math.MaxInt)
)

func decodeQuantity(d *jx.Decoder) (int, error) {
	q, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	if !q.IsInteger() {
		return 0, errors.Errorf("quantity %s is not an integer", q)
	}
	if q.LessThan(minQuantity) || q.GreaterThan(maxQuantity) {
		return 0, errors.Errorf("quantity %s out of range", q)
	}
	return int(q.IntPart()), nil
}

func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", tt)
	}
}
