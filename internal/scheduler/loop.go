package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feedsync/internal/domain"
)

// BatchSyncer syncs a list of feeds and returns one result per feed.
type BatchSyncer interface {
	SyncAll(ctx context.Context, feeds []domain.Feed) []domain.SyncResult
}

// DueLister returns the feeds currently due. IsDue re-checks one feed
// against the lister's own clock.
type DueLister interface {
	DueFeeds(ctx context.Context, limit int) ([]domain.Feed, error)
	IsDue(feed domain.Feed) bool
}

// Loop periodically pulls due feeds and hands them to the batch syncer.
type Loop struct {
	due      DueLister
	syncer   BatchSyncer
	interval time.Duration
	limit    int
	timeout  time.Duration
	logger   *slog.Logger
}

func NewLoop(due DueLister, syncer BatchSyncer, interval time.Duration, limit int, logger *slog.Logger) *Loop {
	return &Loop{
		due:      due,
		syncer:   syncer,
		interval: interval,
		limit:    limit,
		timeout:  30 * time.Minute,
		logger:   logger.With("component", "loop"),
	}
}

func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler loop started", "interval", l.interval, "due_limit", l.limit)

	l.RunOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every feed due right now and returns the results.
func (l *Loop) RunOnce(ctx context.Context) []domain.SyncResult {
	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	listed, err := l.due.DueFeeds(runCtx, l.limit)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to list due feeds", "error", err)
		return nil
	}

	// The store compares against the database clock; skip rows that are
	// not yet due by ours.
	feeds := make([]domain.Feed, 0, len(listed))
	for _, f := range listed {
		if l.due.IsDue(f) {
			feeds = append(feeds, f)
		}
	}
	if skipped := len(listed) - len(feeds); skipped > 0 {
		l.logger.DebugContext(ctx, "skipping feeds not yet due", "skipped", skipped)
	}

	if len(feeds) == 0 {
		l.logger.DebugContext(ctx, "no feeds due")
		return nil
	}

	results := l.syncer.SyncAll(runCtx, feeds)

	succeeded, failed := domain.Tally(results)
	l.logger.InfoContext(ctx, "scheduled sync finished",
		"feeds", len(feeds),
		"succeeded", succeeded,
		"failed", failed,
	)

	return results
}
