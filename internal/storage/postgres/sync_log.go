package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type SyncLogStore struct {
	db *sqlx.DB
}

func NewSyncLogStore(db *sqlx.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

func (s *SyncLogStore) Start(ctx context.Context, entry domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (id, feed_id, status, started_at)
		VALUES (:id, :feed_id, :status, :started_at)`

	if _, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, entry); err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// Finish writes the terminal state of an attempt. It inserts the row when
// Start never made it to the database.
func (s *SyncLogStore) Finish(ctx context.Context, entry domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (
			id, feed_id, status, started_at, finished_at, http_status,
			articles_found, articles_new, articles_updated, bytes,
			etag, last_modified, error
		) VALUES (
			:id, :feed_id, :status, :started_at, :finished_at, :http_status,
			:articles_found, :articles_new, :articles_updated, :bytes,
			:etag, :last_modified, :error
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			http_status = EXCLUDED.http_status,
			articles_found = EXCLUDED.articles_found,
			articles_new = EXCLUDED.articles_new,
			articles_updated = EXCLUDED.articles_updated,
			bytes = EXCLUDED.bytes,
			etag = EXCLUDED.etag,
			last_modified = EXCLUDED.last_modified,
			error = EXCLUDED.error`

	if _, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, entry); err != nil {
		return fmt.Errorf("finish sync log: %w", err)
	}
	return nil
}

// ListByFeed returns the most recent attempts of a feed, newest first.
func (s *SyncLogStore) ListByFeed(ctx context.Context, feedID int64, limit int) ([]domain.SyncLog, error) {
	query := `
		SELECT id, feed_id, status, started_at, finished_at, http_status,
			articles_found, articles_new, articles_updated, bytes,
			etag, last_modified, error
		FROM sync_logs
		WHERE feed_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	var logs []domain.SyncLog
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &logs, query, feedID, limit); err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	return logs, nil
}
