package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/fetcher"
	"feedsync/internal/parser"
)

type FeedStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Feed, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Feed, error)
	GetDueForSync(ctx context.Context, limit int) ([]domain.Feed, error)
	UpdateSchedule(ctx context.Context, id int64, update domain.ScheduleUpdate) (*domain.Feed, error)
	UpdateValidators(ctx context.Context, id int64, v domain.Validators) error
	Insert(ctx context.Context, feed *domain.Feed) (*domain.Feed, error)
}

type ArticleStore interface {
	GetByGUID(ctx context.Context, feedID int64, guid string) (*domain.Article, error)
	Create(ctx context.Context, article *domain.Article) (*domain.Article, error)
	Update(ctx context.Context, id int64, changes domain.ArticleChanges) (*domain.Article, error)
	GetNewIDs(ctx context.Context, feedID int64, since time.Time) ([]int64, error)
}

// SyncLogStore persists the audit trail. Finish must also work when Start
// was never recorded.
type SyncLogStore interface {
	Start(ctx context.Context, entry domain.SyncLog) error
	Finish(ctx context.Context, entry domain.SyncLog) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, v domain.Validators) (*fetcher.Response, error)
}

type Parser interface {
	Parse(body []byte) (iter.Seq[parser.Entry], error)
}

// Notifier is told about every successful sync that created articles.
type Notifier interface {
	SyncCompleted(ctx context.Context, feedID int64, articleIDs []int64) error
}

// FeedSyncer runs one feed's sync attempt.
type FeedSyncer interface {
	SyncFeed(ctx context.Context, feed domain.Feed) domain.SyncResult
}

// BatchSyncer syncs many feeds and returns one result per feed, in order.
type BatchSyncer interface {
	SyncAll(ctx context.Context, feeds []domain.Feed) []domain.SyncResult
}

type Scheduler interface {
	ChangePriority(ctx context.Context, feedID int64, p domain.Priority) (*domain.Feed, error)
	DefaultPriority(ctx context.Context, feedURL string) (domain.Priority, error)
	DueFeeds(ctx context.Context, limit int) ([]domain.Feed, error)
}

type Pipeline interface {
	TriggerManualSync(ctx context.Context, feedIDs []int64) (int, error)
}
