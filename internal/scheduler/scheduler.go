// Package scheduler decides when feeds are due and maintains their
// priority-driven schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
)

// FeedStore is the part of feed storage the scheduler reads and writes.
type FeedStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Feed, error)
	GetDueForSync(ctx context.Context, limit int) ([]domain.Feed, error)
	UpdateSchedule(ctx context.Context, id int64, update domain.ScheduleUpdate) (*domain.Feed, error)
}

type Scheduler struct {
	feeds    FeedStore
	resolver *PriorityResolver
	logger   *slog.Logger
	now      func() time.Time
}

func New(feeds FeedStore, resolver *PriorityResolver, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		feeds:    feeds,
		resolver: resolver,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// IsDue reports whether feed should be synced at now: it never synced, or
// now is at or past its next_sync_at.
func IsDue(feed domain.Feed, now time.Time) bool {
	return feed.NeverSynced() || !now.Before(feed.NextSyncAt)
}

// ComputeNext returns when feed becomes due again under priority p.
func ComputeNext(feed domain.Feed, p domain.Priority, now time.Time) time.Time {
	return domain.NextSyncAt(p, feed.ScheduleBase(now))
}

// IsDue applies IsDue with the scheduler's clock.
func (s *Scheduler) IsDue(feed domain.Feed) bool {
	return IsDue(feed, s.now())
}

// ChangePriority moves a feed to tier p. The next sync is recomputed from the
// feed's existing last_synced_at; only a never-synced feed is measured from
// now.
func (s *Scheduler) ChangePriority(ctx context.Context, feedID int64, p domain.Priority) (*domain.Feed, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPriority, p)
	}

	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}

	next := ComputeNext(*feed, p, s.now())
	interval := p.IntervalHours()

	updated, err := s.feeds.UpdateSchedule(ctx, feedID, domain.ScheduleUpdate{
		Priority:      &p,
		NextSyncAt:    &next,
		IntervalHours: &interval,
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	s.logger.InfoContext(ctx, "feed priority changed",
		"feed_id", feedID,
		"from", feed.Priority,
		"to", p,
		"next_sync_at", next,
	)

	return updated, nil
}

// TriggerNow makes a feed due immediately without touching its priority.
func (s *Scheduler) TriggerNow(ctx context.Context, feedID int64) error {
	now := s.now()
	if _, err := s.feeds.UpdateSchedule(ctx, feedID, domain.ScheduleUpdate{NextSyncAt: &now}); err != nil {
		return fmt.Errorf("mark feed %d due: %w", feedID, err)
	}
	return nil
}

func (s *Scheduler) DefaultPriority(ctx context.Context, feedURL string) (domain.Priority, error) {
	return s.resolver.Resolve(ctx, feedURL)
}

// DueFeeds lists up to limit due feeds, highest priority first.
func (s *Scheduler) DueFeeds(ctx context.Context, limit int) ([]domain.Feed, error) {
	feeds, err := s.feeds.GetDueForSync(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get due feeds: %w", err)
	}
	return feeds, nil
}
