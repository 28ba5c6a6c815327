package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/product"
)

const (
	productColumns = `id, name, category, base_price, price_by_size, discount_percent, sizes, images`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			base_price = EXCLUDED.base_price,
			price_by_size = EXCLUDED.price_by_size,
			discount_percent = EXCLUDED.discount_percent,
			sizes = EXCLUDED.sizes,
			images = EXCLUDED.images`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts the product or replaces every column of an existing row.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	sizes := p.Sizes
	if sizes == nil {
		sizes = []string{}
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}

	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Name, p.Category, p.BasePrice, encodePriceBySize(p.PriceBySize),
		p.DiscountPercent, sizes, images,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p           product.Product
		priceBySize []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.BasePrice, &priceBySize,
		&p.DiscountPercent, &p.Sizes, &p.Images,
	); err != nil {
		return p, err
	}

	prices, err := decodePriceBySize(priceBySize)
	if err != nil {
		return p, errors.Wrapf(err, "product %q", p.ID)
	}
	p.PriceBySize = prices
	return p, nil
}

// encodePriceBySize writes the map as a JSON object with string amounts,
// keys sorted for stable output.
func encodePriceBySize(prices map[string]decimal.Decimal) []byte {
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		for _, k := range keys {
			e.Field(k, func(e *jx.Encoder) {
				e.Str(prices[k].String())
			})
		}
	})
	return e.Bytes()
}

func decodePriceBySize(data []byte) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	if len(data) == 0 {
		return prices, nil
	}

	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return prices, nil
	}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var raw string
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			raw = s
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			raw = n.String()
		default:
			return errors.Errorf("price for size %q: unexpected %s", key, d.Next())
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrapf(err, "price for size %q", key)
		}
		prices[key] = v
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode price_by_size")
	}
	return prices, nil
}
