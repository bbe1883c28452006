package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

const articleColumns = `id, feed_id, guid, title, url, author, published_at,
	content, excerpt, image_url, fetched_at, created_at, updated_at`

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (s *ArticleStore) GetByGUID(ctx context.Context, feedID int64, guid string) (*domain.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id = $1 AND guid = $2`

	var article domain.Article
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, feedID, guid); err != nil {
		return nil, fmt.Errorf("get article %q: %w", guid, translate(err))
	}
	return &article, nil
}

// Create inserts a new article. A concurrent insert of the same (feed, guid)
// surfaces as domain.ErrConflict.
func (s *ArticleStore) Create(ctx context.Context, article *domain.Article) (*domain.Article, error) {
	query := `
		INSERT INTO articles (
			feed_id, guid, title, url, author, published_at,
			content, excerpt, image_url, fetched_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING ` + articleColumns

	var created domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &created, query,
		article.FeedID,
		article.GUID,
		article.Title,
		article.URL,
		article.Author,
		article.PublishedAt,
		article.Content,
		article.Excerpt,
		article.ImageURL,
		article.FetchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create article %q: %w", article.GUID, translate(err))
	}
	return &created, nil
}

func (s *ArticleStore) Update(ctx context.Context, id int64, changes domain.ArticleChanges) (*domain.Article, error) {
	query := `
		UPDATE articles SET
			title = $2,
			content = $3,
			excerpt = $4,
			image_url = COALESCE($5, image_url),
			fetched_at = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + articleColumns

	var updated domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &updated, query,
		id,
		changes.Title,
		changes.Content,
		changes.Excerpt,
		changes.ImageURL,
		changes.FetchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update article %d: %w", id, translate(err))
	}
	return &updated, nil
}

// GetNewIDs lists ids of articles of feedID created strictly after since.
func (s *ArticleStore) GetNewIDs(ctx context.Context, feedID int64, since time.Time) ([]int64, error) {
	query := `SELECT id FROM articles WHERE feed_id = $1 AND created_at > $2 ORDER BY id`

	ids := []int64{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query, feedID, since); err != nil {
		return nil, fmt.Errorf("get new article ids: %w", err)
	}
	return ids, nil
}
