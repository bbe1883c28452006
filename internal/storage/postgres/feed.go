package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

const feedColumns = `id, url, title, priority, sync_interval_hours, last_synced_at,
	next_sync_at, etag, last_modified, status, created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) GetByID(ctx context.Context, id int64) (*domain.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = $1`

	var feed domain.Feed
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &feed, query, id); err != nil {
		return nil, fmt.Errorf("get feed %d: %w", id, translate(err))
	}
	return &feed, nil
}

// GetByIDs returns the feeds that exist among ids, in id order.
func (s *FeedStore) GetByIDs(ctx context.Context, ids []int64) ([]domain.Feed, error) {
	if len(ids) == 0 {
		return []domain.Feed{}, nil
	}

	query, args, err := psql.Select(feedColumns).From("feeds").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var feeds []domain.Feed
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &feeds, query, args...); err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}
	return feeds, nil
}

// GetDueForSync returns active feeds that never synced or whose next sync
// time has passed, high priority first and then oldest due first.
func (s *FeedStore) GetDueForSync(ctx context.Context, limit int) ([]domain.Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM feeds
		WHERE status = 'active'
		  AND (last_synced_at IS NULL OR next_sync_at <= NOW())
		ORDER BY
			CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
			next_sync_at,
			id
		LIMIT $1`

	var feeds []domain.Feed
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &feeds, query, limit); err != nil {
		return nil, fmt.Errorf("get due feeds: %w", err)
	}
	return feeds, nil
}

// UpdateSchedule writes only the fields set in update.
func (s *FeedStore) UpdateSchedule(ctx context.Context, id int64, update domain.ScheduleUpdate) (*domain.Feed, error) {
	if update.Empty() {
		return s.GetByID(ctx, id)
	}

	b := psql.Update("feeds").Set("updated_at", sq.Expr("NOW()"))
	if update.Priority != nil {
		b = b.Set("priority", string(*update.Priority))
	}
	if update.NextSyncAt != nil {
		b = b.Set("next_sync_at", *update.NextSyncAt)
	}
	if update.IntervalHours != nil {
		b = b.Set("sync_interval_hours", *update.IntervalHours)
	}
	if update.LastSyncedAt != nil {
		b = b.Set("last_synced_at", *update.LastSyncedAt)
	}

	query, args, err := b.Where(sq.Eq{"id": id}).Suffix("RETURNING " + feedColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var feed domain.Feed
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &feed, query, args...); err != nil {
		return nil, fmt.Errorf("update feed %d schedule: %w", id, translate(err))
	}
	return &feed, nil
}

func (s *FeedStore) UpdateValidators(ctx context.Context, id int64, v domain.Validators) error {
	query := `UPDATE feeds SET etag = $2, last_modified = $3, updated_at = NOW() WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, v.ETag, v.LastModified)
	if err != nil {
		return fmt.Errorf("update feed %d validators: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update feed %d validators: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *FeedStore) Insert(ctx context.Context, feed *domain.Feed) (*domain.Feed, error) {
	status := feed.Status
	if status == "" {
		status = domain.FeedStatusActive
	}
	next := feed.NextSyncAt
	if next.IsZero() {
		next = time.Now()
	}

	query := `
		INSERT INTO feeds (url, title, priority, sync_interval_hours, next_sync_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + feedColumns

	var created domain.Feed
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &created, query,
		feed.URL,
		feed.Title,
		feed.Priority,
		feed.Priority.IntervalHours(),
		next,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert feed: %w", translate(err))
	}
	return &created, nil
}
