package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"feedsync/internal/domain"
)

// Controller is the externally exposed surface: manual syncs, due feed
// listing, priority changes, subscriptions and new article lookups.
type Controller struct {
	feeds     FeedStore
	articles  ArticleStore
	scheduler Scheduler
	pipeline  Pipeline
	batch     BatchSyncer
	logger    *slog.Logger
	now       func() time.Time

	background sync.WaitGroup
}

func NewController(
	feeds FeedStore,
	articles ArticleStore,
	scheduler Scheduler,
	pipeline Pipeline,
	batch BatchSyncer,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		feeds:     feeds,
		articles:  articles,
		scheduler: scheduler,
		pipeline:  pipeline,
		batch:     batch,
		logger:    logger.With("component", "controller"),
		now:       time.Now,
	}
}

// SyncNow marks the feeds due and syncs them. With wait=false the sync runs
// in the background and nil results are returned.
func (c *Controller) SyncNow(ctx context.Context, feedIDs []int64, wait bool) ([]domain.SyncResult, error) {
	if len(feedIDs) == 0 {
		return nil, fmt.Errorf("no feed ids given: %w", domain.ErrNotFound)
	}

	feeds, err := c.feeds.GetByIDs(ctx, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("feeds %v: %w", feedIDs, domain.ErrNotFound)
	}

	marked, err := c.pipeline.TriggerManualSync(ctx, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("trigger manual sync: %w", err)
	}

	c.logger.InfoContext(ctx, "manual sync requested",
		"requested", len(feedIDs),
		"found", len(feeds),
		"marked", marked,
		"wait", wait,
	)

	if wait {
		return c.batch.SyncAll(ctx, feeds), nil
	}

	bg := context.WithoutCancel(ctx)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.batch.SyncAll(bg, feeds)
	}()

	return nil, nil
}

// Wait blocks until background syncs started by SyncNow have finished.
func (c *Controller) Wait() {
	c.background.Wait()
}

func (c *Controller) FeedsDue(ctx context.Context, limit int) ([]domain.Feed, error) {
	return c.scheduler.DueFeeds(ctx, limit)
}

func (c *Controller) SetPriority(ctx context.Context, feedID int64, tier string) (*domain.Feed, error) {
	p, err := domain.ParsePriority(tier)
	if err != nil {
		return nil, err
	}
	return c.scheduler.ChangePriority(ctx, feedID, p)
}

// Subscribe registers a feed URL with its default priority. The new feed is
// due immediately.
func (c *Controller) Subscribe(ctx context.Context, feedURL string) (*domain.Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, domain.ErrInvalidFeedURL
	}

	p, err := c.scheduler.DefaultPriority(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("resolve default priority: %w", err)
	}

	feed, err := c.feeds.Insert(ctx, &domain.Feed{
		URL:               feedURL,
		Priority:          p,
		SyncIntervalHours: p.IntervalHours(),
		NextSyncAt:        c.now(),
		Status:            domain.FeedStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("insert feed: %w", err)
	}

	c.logger.InfoContext(ctx, "subscribed to feed", "feed_id", feed.ID, "url", feed.URL, "priority", p)
	return feed, nil
}

// NewArticles lists ids of a feed's articles created after since.
func (c *Controller) NewArticles(ctx context.Context, feedID int64, since time.Time) ([]int64, error) {
	return c.articles.GetNewIDs(ctx, feedID, since)
}
