package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// catalog is the seed file layout:
//
//	{"products": [...], "coupons": [...]}
type catalog struct {
	Products []product.Product
	Coupons  []coupon.Rule
}

// parseCatalog decodes and validates a seed file. Amounts may be JSON
// strings or numbers.
func parseCatalog(data []byte) (*catalog, error) {
	var c catalog
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return errors.Wrapf(err, "product %d", len(c.Products))
				}
				c.Products = append(c.Products, p)
				return nil
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				r, err := decodeRule(d)
				if err != nil {
					return errors.Wrapf(err, "coupon %d", len(c.Coupons))
				}
				c.Coupons = append(c.Coupons, r)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" {
			return nil, errors.New("product without id")
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errors.Errorf("duplicate product %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		if err := product.ValidateSizePrices(p); err != nil {
			return nil, err
		}
	}
	for _, r := range c.Coupons {
		if err := validateRule(r); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "basePrice":
			p.BasePrice, err = decodeDecimal(d)
		case "discountPercent":
			p.DiscountPercent, err = decodeDecimal(d)
		case "priceBySize":
			p.PriceBySize = make(map[string]decimal.Decimal)
			err = d.Obj(func(d *jx.Decoder, size string) error {
				v, err := decodeDecimal(d)
				p.PriceBySize[size] = v
				return err
			})
		case "sizes":
			p.Sizes, err = decodeStrings(d)
		case "images":
			p.Images, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return p, err
}

func decodeRule(d *jx.Decoder) (coupon.Rule, error) {
	r := coupon.Rule{DiscountType: coupon.DiscountPercentage}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			var s string
			s, err = d.Str()
			r.Code = coupon.NormalizeCode(s)
		case "discountType":
			var s string
			s, err = d.Str()
			r.DiscountType = coupon.DiscountType(s)
		case "value":
			r.Value, err = decodeDecimal(d)
		case "maxDiscount":
			r.MaxDiscount, err = decodeDecimal(d)
		case "minItems":
			r.MinItems, err = d.Int()
		case "maxUses":
			r.MaxUses, err = d.Int()
		case "description":
			r.Description, err = d.Str()
		case "validFrom":
			r.ValidFrom, err = decodeTime(d)
		case "validUntil":
			r.ValidUntil, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return r, err
}

func validateRule(r coupon.Rule) error {
	if r.Code == "" {
		return errors.New("coupon without code")
	}
	switch r.DiscountType {
	case coupon.DiscountPercentage, coupon.DiscountFixed, coupon.DiscountFreeLowest:
	default:
		return errors.Errorf("coupon %s: unknown discount type %q", r.Code, r.DiscountType)
	}
	if r.Value.IsNegative() {
		return errors.Errorf("coupon %s: negative value", r.Code)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return errors.Errorf("coupon %s: validUntil before validFrom", r.Code)
	}
	return nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
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
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", tt)
	}
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
