package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/product"
)

// DecodeError reports a malformed request body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "invalid request body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func (h *Handler) encodeProducts(products []product.Product) *jx.Encoder {
	e := new(jx.Encoder)
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			h.writeProduct(e, p)
		}
	})
	return e
}

func (h *Handler) encodeProduct(p product.Product) *jx.Encoder {
	e := new(jx.Encoder)
	h.writeProduct(e, p)
	return e
}

// writeProduct lists each size with the unit price a cart would freeze for
// it right now.
func (h *Handler) writeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("basePrice", func(e *jx.Encoder) { money(e, p.BasePrice) })
		e.Field("discountPercent", func(e *jx.Encoder) { e.Str(p.DiscountPercent.String()) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(h.cfg.Currency) })
		e.Field("sizes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, size := range p.Sizes {
					e.Obj(func(e *jx.Encoder) {
						e.Field("size", func(e *jx.Encoder) { e.Str(size) })
						e.Field("price", func(e *jx.Encoder) { money(e, product.ResolveUnitPrice(p, size)) })
					})
				}
			})
		})
		e.Field("images", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, img := range p.Images {
					e.Str(h.cfg.ImageBaseURL + img)
				}
			})
		})
	})
}

func (h *Handler) encodeCart(id uuid.UUID, snap cart.Snapshot) *jx.Encoder {
	e := new(jx.Encoder)
	e.Obj(func(e *jx.Encoder) {
		e.Field("cartId", func(e *jx.Encoder) { e.Str(id.String()) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(h.cfg.Currency) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range snap.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("image", func(e *jx.Encoder) { e.Str(h.imageURL(it.Image)) })
						e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
						e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("lineTotal", func(e *jx.Encoder) { money(e, it.LineTotal()) })
					})
				}
			})
		})
		e.Field("totals", func(e *jx.Encoder) {
			t := snap.Totals
			e.Obj(func(e *jx.Encoder) {
				e.Field("subtotal", func(e *jx.Encoder) { money(e, t.Subtotal) })
				e.Field("tax", func(e *jx.Encoder) { money(e, t.Tax) })
				e.Field("deliveryCharge", func(e *jx.Encoder) { money(e, t.DeliveryCharge) })
				e.Field("total", func(e *jx.Encoder) { money(e, t.Total) })
				e.Field("itemCount", func(e *jx.Encoder) { e.Int(t.ItemCount) })
			})
		})
	})
	return e
}

func (h *Handler) imageURL(img string) string {
	if img == "" {
		return ""
	}
	return h.cfg.ImageBaseURL + img
}

func (h *Handler) encodeOrder(o *order.Order) *jx.Encoder {
	e := new(jx.Encoder)
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(h.cfg.Currency) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
						e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("tax", func(e *jx.Encoder) { money(e, o.Tax) })
		e.Field("deliveryCharge", func(e *jx.Encoder) { money(e, o.DeliveryCharge) })
		e.Field("discounts", func(e *jx.Encoder) { money(e, o.Discounts) })
		e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e
}

type addItemRequest struct {
	ProductID string
	Size      string
	Quantity  int
}

// decodeAddItem reads {"productId","size","quantity"}. quantity defaults to
// 1 when omitted.
func decodeAddItem(body []byte) (addItemRequest, error) {
	req := addItemRequest{Quantity: 1}
	err := decodeObject(body, func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			s, err := d.Str()
			req.ProductID = s
			return err
		case "size":
			s, err := d.Str()
			req.Size = s
			return err
		case "quantity":
			n, err := d.Int()
			req.Quantity = n
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, err
	}
	if req.ProductID == "" {
		return req, &DecodeError{Err: errors.New("productId is required")}
	}
	if req.Size == "" {
		return req, &DecodeError{Err: errors.New("size is required")}
	}
	return req, nil
}

// decodeQuantity reads {"quantity":n}.
func decodeQuantity(body []byte) (int, error) {
	quantity, found := 0, false
	err := decodeObject(body, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		n, err := d.Int()
		quantity, found = n, true
		return err
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &DecodeError{Err: errors.New("quantity is required")}
	}
	return quantity, nil
}

// decodeCheckout reads an optional {"couponCode":"..."}. An empty body is
// a checkout without coupon.
func decodeCheckout(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	var code string
	err := decodeObject(body, func(d *jx.Decoder, key string) error {
		if key != "couponCode" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		s, err := d.Str()
		code = s
		return err
	})
	return code, err
}

func decodeObject(body []byte, f func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return &DecodeError{Err: errors.New("expected JSON object")}
	}
	if err := d.Obj(f); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
