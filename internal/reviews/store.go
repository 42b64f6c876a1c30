package reviews

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool used by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists reviews in PostgreSQL.
type PGStore struct {
	DB DBTX
}

const reviewColumns = `id::text, product_id::text, title, author, message, rating, approved, in_home_page, created_at`

func (s *PGStore) Create(ctx context.Context, r Review) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO reviews (id, product_id, title, author, message, rating, approved, in_home_page, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.ProductID, r.Title, r.Author, r.Message, r.Rating, r.Approved, r.InHomePage, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *PGStore) ListApproved(ctx context.Context, productID string, limit, offset int) ([]Review, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+reviewColumns+` FROM reviews
		WHERE product_id = $1::uuid AND approved
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return collectReviews(rows)
}

func (s *PGStore) Stats(ctx context.Context, productID string) (Stats, error) {
	var st Stats
	err := s.DB.QueryRow(ctx, `SELECT count(*), COALESCE(avg(rating), 0)::float8 FROM reviews
		WHERE product_id = $1::uuid AND approved`, productID).Scan(&st.Count, &st.Average)
	if err != nil {
		return Stats{}, fmt.Errorf("review stats: %w", err)
	}
	return st, nil
}

func (s *PGStore) ListFeatured(ctx context.Context, limit int) ([]Review, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+reviewColumns+` FROM reviews
		WHERE approved AND in_home_page
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list featured reviews: %w", err)
	}
	return collectReviews(rows)
}

func collectReviews(rows pgx.Rows) ([]Review, error) {
	defer rows.Close()
	out := []Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Title, &r.Author, &r.Message, &r.Rating, &r.Approved, &r.InHomePage, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
