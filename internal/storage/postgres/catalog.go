package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

// CatalogStore reads the curated recommended_feeds table.
type CatalogStore struct {
	db *sqlx.DB
}

func NewCatalogStore(db *sqlx.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) GetByURL(ctx context.Context, feedURL string) (*domain.CatalogEntry, error) {
	query := `SELECT id, url, title, default_priority FROM recommended_feeds WHERE url = $1`

	var entry domain.CatalogEntry
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &entry, query, feedURL); err != nil {
		return nil, fmt.Errorf("get catalog entry: %w", translate(err))
	}
	return &entry, nil
}
