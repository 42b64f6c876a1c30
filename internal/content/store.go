package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a document has never been saved.
var ErrNotFound = errors.New("content: document not found")

// DBTX is the subset of pgxpool.Pool used by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps site-wide JSON documents in the site_globals table.
type PGStore struct {
	DB DBTX
}

func (s *PGStore) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.DB.QueryRow(ctx, `SELECT data FROM site_globals WHERE name = $1`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get site global %s: %w", name, err)
	}
	return data, nil
}

func (s *PGStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO site_globals (name, data, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, name, data)
	if err != nil {
		return fmt.Errorf("put site global %s: %w", name, err)
	}
	return nil
}
