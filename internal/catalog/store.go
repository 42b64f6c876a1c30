package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// DBTX is the subset of pgxpool.Pool used by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore reads and writes products in PostgreSQL.
type PGStore struct {
	DB DBTX
}

const productColumns = `id::text, title, slug, short_description, price::float8, promo_price::float8,
	price_range, quantity, category, sub_category, image_urls, best_seller, show_inquiry_form, inquiry_fields`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p         Product
		inquiries []byte
	)
	if err := row.Scan(
		&p.ID, &p.Title, &p.Slug, &p.ShortDescription, &p.Price, &p.PromoPrice,
		&p.PriceRange, &p.Quantity, &p.Category, &p.SubCategory, &p.ImageURLs,
		&p.BestSeller, &p.ShowInquiryForm, &inquiries,
	); err != nil {
		return Product{}, err
	}
	if len(inquiries) > 0 {
		if err := json.Unmarshal(inquiries, &p.InquiryFields); err != nil {
			return Product{}, fmt.Errorf("decode inquiry fields for %s: %w", p.Slug, err)
		}
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProducts returns one page of published products matching the filters and the total count.
func (s *PGStore) ListProducts(ctx context.Context, params ListParams) ([]Product, int64, error) {
	where, args := listFilter(params)
	var total int64
	if err := s.DB.QueryRow(ctx, "SELECT count(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	offset := (params.Page - 1) * params.Limit
	if offset < 0 {
		offset = 0
	}
	args = append(args, params.Limit, offset)
	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY best_seller DESC, created_at DESC, id LIMIT $%d OFFSET $%d",
		productColumns, where, len(args)-1, len(args))
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan products: %w", err)
	}
	return products, total, nil
}

func listFilter(params ListParams) (string, []any) {
	clauses := []string{"published"}
	var args []any
	if params.Category != "" {
		args = append(args, params.Category)
		clauses = append(clauses, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}
	if params.BestSeller != nil {
		args = append(args, *params.BestSeller)
		clauses = append(clauses, fmt.Sprintf("best_seller = $%d", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// GetProductBySlug loads a single published product.
func (s *PGStore) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE slug = $1 AND published", slug)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// GetProductsByIDs loads the published products with the given ids. Unknown ids are skipped.
func (s *PGStore) GetProductsByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, "SELECT "+productColumns+" FROM products WHERE id::text = ANY($1) AND published", ids)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	return collectProducts(rows)
}

// ListAllProducts returns every published product ordered by title.
func (s *PGStore) ListAllProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+productColumns+" FROM products WHERE published ORDER BY title, id")
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	return collectProducts(rows)
}

// ListCategories returns categories with their product counts.
func (s *PGStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.DB.Query(ctx, `SELECT category, count(*) FROM products
		WHERE published AND category <> '' GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.ProductCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertProduct inserts or updates a product keyed by slug and returns its id.
func (s *PGStore) UpsertProduct(ctx context.Context, p Product) (string, error) {
	fields, err := json.Marshal(p.InquiryFields)
	if err != nil {
		return "", err
	}
	if p.InquiryFields == nil {
		fields = []byte("[]")
	}
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	var id string
	err = s.DB.QueryRow(ctx, `INSERT INTO products
		(title, slug, short_description, price, promo_price, price_range, quantity, category, sub_category,
		 image_urls, best_seller, show_inquiry_form, inquiry_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			short_description = EXCLUDED.short_description,
			price = EXCLUDED.price,
			promo_price = EXCLUDED.promo_price,
			price_range = EXCLUDED.price_range,
			quantity = EXCLUDED.quantity,
			category = EXCLUDED.category,
			sub_category = EXCLUDED.sub_category,
			image_urls = EXCLUDED.image_urls,
			best_seller = EXCLUDED.best_seller,
			show_inquiry_form = EXCLUDED.show_inquiry_form,
			inquiry_fields = EXCLUDED.inquiry_fields,
			updated_at = now()
		RETURNING id::text`,
		p.Title, p.Slug, p.ShortDescription, p.Price, p.PromoPrice, p.PriceRange, p.Quantity,
		p.Category, p.SubCategory, images, p.BestSeller, p.ShowInquiryForm, string(fields),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert product %s: %w", p.Slug, err)
	}
	return id, nil
}
