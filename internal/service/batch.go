package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/logger"
)

// ErrSyncInFlight is reported for a feed that another batch is already
// syncing.
var ErrSyncInFlight = errors.New("sync already in flight")

// Orchestrator syncs feeds in sequential batches of bounded width. Feeds
// inside a batch run concurrently; batches are separated by a fixed delay.
// A feed is never synced by two batches at once, so the scheduler loop and
// manual syncs can share one Orchestrator.
type Orchestrator struct {
	syncer    FeedSyncer
	batchSize int
	delay     time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewOrchestrator(syncer FeedSyncer, cfg config.SyncConfig, logger *slog.Logger) *Orchestrator {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	return &Orchestrator{
		syncer:    syncer,
		batchSize: batchSize,
		delay:     cfg.BatchDelay,
		logger:    logger.With("component", "orchestrator"),
		inFlight:  make(map[int64]struct{}),
	}
}

// SyncAll returns exactly one result per input feed, in input order. A
// cancelled context stops further batches from starting; feeds that never
// ran are reported as failed.
func (o *Orchestrator) SyncAll(ctx context.Context, feeds []domain.Feed) []domain.SyncResult {
	results := make([]domain.SyncResult, len(feeds))
	if len(feeds) == 0 {
		return results
	}

	batches := (len(feeds) + o.batchSize - 1) / o.batchSize
	o.logger.InfoContext(ctx, "starting batch sync",
		"feeds", len(feeds),
		"batches", batches,
		"batch_size", o.batchSize,
	)

	for start := 0; start < len(feeds); start += o.batchSize {
		end := min(start+o.batchSize, len(feeds))

		if start > 0 && !sleep(ctx, o.delay) {
			for i := start; i < len(feeds); i++ {
				results[i] = domain.Failed(feeds[i].ID, fmt.Errorf("sync not started: %w", ctx.Err()), 0)
			}
			break
		}

		batchCtx := logger.Ctx(ctx, slog.Int("batch", start/o.batchSize+1))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = o.syncOne(batchCtx, feeds[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	succeeded, failed := domain.Tally(results)
	o.logger.InfoContext(ctx, "batch sync finished",
		"succeeded", succeeded,
		"failed", failed,
	)

	return results
}

func (o *Orchestrator) syncOne(ctx context.Context, feed domain.Feed) (result domain.SyncResult) {
	if !o.acquire(feed.ID) {
		o.logger.InfoContext(ctx, "skipping feed already being synced", "feed_id", feed.ID)
		return domain.Failed(feed.ID, ErrSyncInFlight, 0)
	}
	defer o.release(feed.ID)

	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "panic during feed sync", "feed_id", feed.ID, "panic", r)
			result = domain.Failed(feed.ID, fmt.Errorf("panic: %v", r), 0)
		}
	}()

	result = o.syncer.SyncFeed(ctx, feed)
	result.FeedID = feed.ID
	return result
}

func (o *Orchestrator) acquire(feedID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.inFlight[feedID]; ok {
		return false
	}
	o.inFlight[feedID] = struct{}{}
	return true
}

func (o *Orchestrator) release(feedID int64) {
	o.mu.Lock()
	delete(o.inFlight, feedID)
	o.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
