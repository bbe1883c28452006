package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/fetcher"
	"feedsync/internal/retry"
)

// SyncService runs a single feed's sync attempt: conditional fetch, parse,
// reconcile, schedule advance and audit log.
type SyncService struct {
	fetcher    Fetcher
	parser     Parser
	feeds      FeedStore
	syncLogs   SyncLogStore
	txManager  TransactionManager
	reconciler *Reconciler
	notifier   Notifier
	retry      *retry.Policy
	logger     *slog.Logger
	now        func() time.Time
}

func NewSyncService(
	feedFetcher Fetcher,
	feedParser Parser,
	feeds FeedStore,
	articles ArticleStore,
	syncLogs SyncLogStore,
	txManager TransactionManager,
	notifier Notifier,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	logger = logger.With("component", "sync")

	s := &SyncService{
		fetcher:    feedFetcher,
		parser:     feedParser,
		feeds:      feeds,
		syncLogs:   syncLogs,
		txManager:  txManager,
		reconciler: NewReconciler(articles, logger),
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}

	if cfg.RetryFetches {
		s.retry = &retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Retryable:   fetcher.IsTransient,
			Logger:      logger,
		}
	}

	return s
}

// SyncFeed never returns an error: every failure is folded into the result,
// and exactly one terminal audit entry is written per call.
func (s *SyncService) SyncFeed(ctx context.Context, feed domain.Feed) domain.SyncResult {
	startedAt := s.now()
	logger := s.logger.With("feed_id", feed.ID, "url", feed.URL)

	logger.InfoContext(ctx, "starting sync",
		"priority", feed.Priority,
		"last_synced_at", feed.LastSyncedAt,
	)

	entry := domain.SyncLog{
		ID:        uuid.New(),
		FeedID:    feed.ID,
		Status:    domain.SyncLogRunning,
		StartedAt: startedAt,
	}
	if err := s.syncLogs.Start(ctx, entry); err != nil {
		logger.ErrorContext(ctx, "failed to record sync start", "error", err)
	}

	result := s.sync(ctx, feed, logger)
	finishedAt := s.now()
	result.FeedID = feed.ID
	result.Duration = finishedAt.Sub(startedAt)

	// The audit entry is written even when the caller's context is gone.
	if err := s.syncLogs.Finish(context.WithoutCancel(ctx), finishedLog(entry, result, finishedAt)); err != nil {
		logger.ErrorContext(ctx, "failed to record sync result", "error", err)
	}

	if result.Success {
		logger.InfoContext(ctx, "sync completed",
			"not_modified", result.NotModified,
			"found", result.ArticlesFound,
			"new", result.ArticlesNew,
			"updated", result.ArticlesUpdated,
			"bytes", result.Bytes,
			"http_status", result.HTTPStatus,
			"duration", result.Duration,
		)
	} else {
		logger.WarnContext(ctx, "sync failed",
			"error", result.Error,
			"http_status", result.HTTPStatus,
			"duration", result.Duration,
		)
	}

	return result
}

func (s *SyncService) sync(ctx context.Context, feed domain.Feed, logger *slog.Logger) domain.SyncResult {
	resp, err := s.fetch(ctx, feed)
	if err != nil {
		return domain.Failed(feed.ID, fmt.Errorf("fetch feed: %w", err), fetcher.StatusCode(err))
	}

	result := domain.SyncResult{
		FeedID:       feed.ID,
		HTTPStatus:   resp.StatusCode,
		NotModified:  resp.NotModified,
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
		Bytes:        len(resp.Body),
	}

	if resp.NotModified {
		// Keep the stored validators unless the server sent fresh ones.
		v := domain.Validators{ETag: feed.ETag, LastModified: feed.LastModified}
		if resp.ETag != nil {
			v.ETag = resp.ETag
		}
		if resp.LastModified != nil {
			v.LastModified = resp.LastModified
		}
		return s.advance(ctx, feed, v, result)
	}

	entries, err := s.parser.Parse(resp.Body)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	fetchedAt := s.now()
	for entry := range entries {
		result.ArticlesFound++

		outcome, id, err := s.reconciler.Reconcile(ctx, feed.ID, entry, fetchedAt)
		if err != nil {
			logger.WarnContext(ctx, "failed to reconcile entry",
				"guid", entry.Data().GUID,
				"error", err,
			)
			continue
		}

		switch outcome {
		case OutcomeCreated:
			result.ArticlesNew++
			result.NewArticleIDs = append(result.NewArticleIDs, id)
		case OutcomeUpdated:
			result.ArticlesUpdated++
		}
	}

	result = s.advance(ctx, feed, domain.Validators{
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
	}, result)
	if !result.Success || len(result.NewArticleIDs) == 0 || s.notifier == nil {
		return result
	}

	if err := s.notifier.SyncCompleted(ctx, feed.ID, result.NewArticleIDs); err != nil {
		logger.ErrorContext(ctx, "failed to notify pipeline", "error", err)
	}

	return result
}

func (s *SyncService) fetch(ctx context.Context, feed domain.Feed) (*fetcher.Response, error) {
	v := domain.Validators{ETag: feed.ETag, LastModified: feed.LastModified}
	if s.retry == nil {
		return s.fetcher.Fetch(ctx, feed.URL, v)
	}

	var resp *fetcher.Response
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		r, err := s.fetcher.Fetch(ctx, feed.URL, v)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// advance stores the validators and moves the schedule forward after a
// successful attempt. A failed write leaves the feed due and turns the
// attempt into a failure.
func (s *SyncService) advance(ctx context.Context, feed domain.Feed, v domain.Validators, result domain.SyncResult) domain.SyncResult {
	now := s.now()
	next := domain.NextSyncAt(feed.Priority, now)
	interval := feed.Priority.IntervalHours()

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.feeds.UpdateValidators(ctx, feed.ID, v); err != nil {
			return fmt.Errorf("update validators: %w", err)
		}

		if _, err := s.feeds.UpdateSchedule(ctx, feed.ID, domain.ScheduleUpdate{
			LastSyncedAt:  &now,
			NextSyncAt:    &next,
			IntervalHours: &interval,
		}); err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}

		return nil
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	return result
}

func finishedLog(entry domain.SyncLog, result domain.SyncResult, finishedAt time.Time) domain.SyncLog {
	entry.Status = domain.SyncLogSuccess
	if !result.Success {
		entry.Status = domain.SyncLogFailure
		msg := result.Error
		entry.Error = &msg
	}
	entry.FinishedAt = &finishedAt
	if result.HTTPStatus != 0 {
		status := result.HTTPStatus
		entry.HTTPStatus = &status
	}
	entry.ArticlesFound = result.ArticlesFound
	entry.ArticlesNew = result.ArticlesNew
	entry.ArticlesUpdated = result.ArticlesUpdated
	entry.Bytes = result.Bytes
	entry.ETag = result.ETag
	entry.LastModified = result.LastModified
	return entry
}
