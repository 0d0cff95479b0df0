package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres reads and writes the products table.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) *Postgres {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Postgres{pool: pool, logger: logger}
}

const productColumns = `id, COALESCE(seller_id, ''), name, COALESCE(description, ''), COALESCE(category, ''), price::text, offer_price::text, images, created_at`

func (r *Postgres) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Postgres) Close() {
	r.pool.Close()
}

// FetchProducts implements Source.
func (r *Postgres) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	return r.ListAll(ctx)
}

func (r *Postgres) ListAll(ctx context.Context) ([]domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		r.logger.Printf("catalog repo: list error=%v", err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("catalog repo: list rows error=%v", err)
		return nil, err
	}
	r.logger.Printf("catalog repo: list count=%d", len(result))
	return result, nil
}

func (r *Postgres) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Printf("catalog repo: get id=%s not found", id)
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("catalog repo: get id=%s error=%v", id, err)
		return nil, err
	}
	return &p, nil
}

// Upsert inserts product or replaces the row with the same id.
func (r *Postgres) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (id, seller_id, name, description, category, price, offer_price, images, created_at)
VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6::numeric, $7::numeric, COALESCE($8, '{}'::text[]), COALESCE($9, now()))
ON CONFLICT (id) DO UPDATE SET
    seller_id = EXCLUDED.seller_id,
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    category = EXCLUDED.category,
    price = EXCLUDED.price,
    offer_price = EXCLUDED.offer_price,
    images = EXCLUDED.images
RETURNING created_at
`
	if product.ID == "" {
		return nil, fmt.Errorf("catalog repo: upsert requires id (name=%q)", product.Name)
	}
	var createdAt interface{}
	if !product.CreatedAt.IsZero() {
		createdAt = product.CreatedAt
	}
	res := product
	err := r.pool.QueryRow(ctx, q,
		product.ID,
		product.SellerID,
		product.Name,
		product.Description,
		product.Category,
		product.Price.String(),
		product.OfferPrice.String(),
		product.Images,
		createdAt,
	).Scan(&res.CreatedAt)
	if err != nil {
		r.logger.Printf("catalog repo: upsert id=%s error=%v", product.ID, err)
		return nil, err
	}
	r.logger.Printf("catalog repo: upserted id=%s", res.ID)
	return &res, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p                 domain.Product
		price, offerPrice string
	)
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Category, &price, &offerPrice, &p.Images, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	if p.OfferPrice, err = decimal.NewFromString(offerPrice); err != nil {
		return domain.Product{}, fmt.Errorf("product %s offer price: %w", p.ID, err)
	}
	return p, nil
}
