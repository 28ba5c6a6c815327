// Package api serves the storefront REST API: the catalog, cart sessions and
// checkout.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/coupon"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/pkg/httpmiddleware"
)

// Checkout places an order from a cart.
type Checkout interface {
	PlaceOrder(ctx context.Context, c order.Cart, couponCode string) (*order.Order, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to product image paths.
	ImageBaseURL string
	// Currency is the ISO 4217 code reported next to every amount.
	Currency string
	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64
}

// Handler serves the API routes.
type Handler struct {
	products product.Repository
	checkout Checkout
	sessions *Sessions
	cfg      HandlerConfig

	mutations metric.Int64Counter
	orders    metric.Int64Counter
}

// NewHandler constructs a Handler. Counters are registered on meter.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	checkout Checkout,
	sessions *Sessions,
	meter metric.Meter,
) (*Handler, error) {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	mutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	orders, err := meter.Int64Counter("storefront.orders",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	return &Handler{
		products:  products,
		checkout:  checkout,
		sessions:  sessions,
		cfg:       cfg,
		mutations: mutations,
		orders:    orders,
	}, nil
}

// Routes returns the API mux. Paths are rooted at /api.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/cart/items", h.addItem)
	mux.HandleFunc("PATCH /api/cart/items/{productId}/{size}", h.updateItem)
	mux.HandleFunc("DELETE /api/cart/items/{productId}/{size}", h.removeItem)
	mux.HandleFunc("POST /api/checkout", h.placeOrder)
	return mux
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeJSON(w, http.StatusOK, h.encodeProducts(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "get product"))
		return
	}
	writeJSON(w, http.StatusOK, h.encodeProduct(*p))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, "", func(*cart.Ledger) error { return nil })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, "clear", func(l *cart.Ledger) error {
		l.Clear()
		return nil
	})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeAddItem(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Quantity < 1 {
		h.fail(w, r, &cart.InvalidQuantityError{ProductID: req.ProductID, Quantity: req.Quantity})
		return
	}
	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "get product"))
		return
	}
	if !p.HasSize(req.Size) {
		h.fail(w, r, &UnknownSizeError{ProductID: p.ID, Size: req.Size})
		return
	}

	h.withCart(w, r, "add", func(l *cart.Ledger) error {
		return l.AddItem(*p, req.Size, req.Quantity)
	})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	quantity, err := decodeQuantity(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	productID, size := r.PathValue("productId"), r.PathValue("size")
	h.withCart(w, r, "update", func(l *cart.Ledger) error {
		l.UpdateQuantity(productID, size, quantity)
		return nil
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID, size := r.PathValue("productId"), r.PathValue("size")
	h.withCart(w, r, "remove", func(l *cart.Ledger) error {
		l.RemoveItem(productID, size)
		return nil
	})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	couponCode, err := decodeCheckout(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var placed *order.Order
	err = h.sessions.With(id, func(l *cart.Ledger) error {
		o, err := h.checkout.PlaceOrder(r.Context(), l, couponCode)
		placed = o
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.orders.Add(r.Context(), 1, metric.WithAttributes(
		attribute.Bool("coupon", placed.CouponCode != ""),
	))
	zctx.From(r.Context()).Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.Stringer("total", placed.Total),
		zap.Int("lines", len(placed.Items)),
	)
	writeJSON(w, http.StatusCreated, h.encodeOrder(placed))
}

// withCart runs fn on the request's cart and responds with the resulting
// cart. op names the mutation for metrics; empty means read-only.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, op string, fn func(l *cart.Ledger) error) {
	id, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var snap cart.Snapshot
	err := h.sessions.With(id, func(l *cart.Ledger) error {
		if err := fn(l); err != nil {
			return err
		}
		snap = l.Snapshot()
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if op != "" {
		h.mutations.Add(r.Context(), 1, metric.WithAttributes(attribute.String("op", op)))
	}
	writeJSON(w, http.StatusOK, h.encodeCart(id, snap))
}

// cartID reads the session id from the request or issues a new one. The id
// is echoed in the response header.
func (h *Handler) cartID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(CartIDHeader)
	if raw == "" {
		id := uuid.New()
		w.Header().Set(CartIDHeader, id.String())
		return id, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid cart id")
		return uuid.UUID{}, false
	}
	w.Header().Set(CartIDHeader, id.String())
	return id, true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpmiddleware.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		httpmiddleware.WriteError(w, http.StatusBadRequest, "read request body")
		return nil, false
	}
	return body, true
}

// UnknownSizeError is returned when adding a size the product does not offer.
type UnknownSizeError struct {
	ProductID string
	Size      string
}

func (e *UnknownSizeError) Error() string {
	return "product " + e.ProductID + " has no size " + e.Size
}

// fail maps domain errors to status codes. Anything unmapped is a 500 and is
// logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		decodeErr   *DecodeError
		sizeErr     *UnknownSizeError
		quantityErr *cart.InvalidQuantityError
		limitErr    *cart.QuantityLimitError
		lineErr     *order.InvalidLineError
	)
	switch {
	case errors.As(err, &decodeErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, decodeErr.Error())
	case errors.Is(err, product.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
	case errors.As(err, &sizeErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, sizeErr.Error())
	case errors.As(err, &quantityErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, quantityErr.Error())
	case errors.As(err, &limitErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, limitErr.Error())
	case errors.Is(err, order.ErrEmptyCart):
		httpmiddleware.WriteError(w, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &lineErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, lineErr.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, "invalid coupon code")
	case errors.Is(err, coupon.ErrCouponExpired):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, "coupon expired")
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, "coupon usage limit reached")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
