package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"feedsync/internal/domain"
)

type EmbeddingQueue struct {
	db *sqlx.DB
}

func NewEmbeddingQueue(db *sqlx.DB) *EmbeddingQueue {
	return &EmbeddingQueue{db: db}
}

// Enqueue appends articleIDs at priority. Articles already queued are left
// as they are.
func (q *EmbeddingQueue) Enqueue(ctx context.Context, articleIDs []int64, priority int) error {
	if len(articleIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO embedding_queue (article_id, priority)
		SELECT unnest($1::bigint[]), $2
		ON CONFLICT (article_id) DO NOTHING`

	if _, err := GetExecutor(ctx, q.db).ExecContext(ctx, query, pq.Array(articleIDs), priority); err != nil {
		return fmt.Errorf("enqueue embeddings: %w", err)
	}
	return nil
}

// Pending lists unprocessed entries, highest priority and oldest first.
func (q *EmbeddingQueue) Pending(ctx context.Context, limit int) ([]domain.EmbeddingQueueEntry, error) {
	query := `
		SELECT id, article_id, priority, enqueued_at, processed_at
		FROM embedding_queue
		WHERE processed_at IS NULL
		ORDER BY priority DESC, enqueued_at, id
		LIMIT $1`

	var entries []domain.EmbeddingQueueEntry
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, q.db), &entries, query, limit); err != nil {
		return nil, fmt.Errorf("get pending embeddings: %w", err)
	}
	return entries, nil
}
