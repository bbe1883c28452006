package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/parser"
)

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// Reconciler decides, per parsed entry, whether an article is created,
// updated in place or left alone. Articles are keyed by (feed, guid).
type Reconciler struct {
	articles ArticleStore
	logger   *slog.Logger
}

func NewReconciler(articles ArticleStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		articles: articles,
		logger:   logger.With("component", "reconciler"),
	}
}

// Reconcile persists entry for feedID. The returned id is the article's id
// for created and updated outcomes.
func (r *Reconciler) Reconcile(ctx context.Context, feedID int64, entry parser.Entry, fetchedAt time.Time) (Outcome, int64, error) {
	data := entry.Data()

	synthesized, ok := entry.(parser.Synthesized)
	if ok {
		r.logger.DebugContext(ctx, "entry uses synthesized fields",
			"guid", data.GUID,
			"defaults", synthesized.Defaults,
		)
	}

	existing, err := r.articles.GetByGUID(ctx, feedID, data.GUID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return OutcomeSkipped, 0, fmt.Errorf("lookup article: %w", err)
	}

	if existing == nil {
		article := newArticle(feedID, entry, fetchedAt)
		created, err := r.articles.Create(ctx, article)
		if err != nil {
			return OutcomeSkipped, 0, fmt.Errorf("create article: %w", err)
		}
		return OutcomeCreated, created.ID, nil
	}

	// A placeholder title never replaces a stored one.
	if synthesized.Has(parser.DefaultTitle) {
		data.Title = existing.Title
	}

	if !changed(existing, data) {
		return OutcomeSkipped, existing.ID, nil
	}

	updated, err := r.articles.Update(ctx, existing.ID, domain.ArticleChanges{
		Title:     data.Title,
		Content:   data.Content,
		Excerpt:   data.Excerpt,
		ImageURL:  data.ImageURL,
		FetchedAt: fetchedAt,
	})
	if err != nil {
		return OutcomeSkipped, 0, fmt.Errorf("update article: %w", err)
	}
	return OutcomeUpdated, updated.ID, nil
}

func newArticle(feedID int64, entry parser.Entry, fetchedAt time.Time) *domain.Article {
	data := entry.Data()
	published := data.PublishedAt
	return &domain.Article{
		FeedID:      feedID,
		GUID:        data.GUID,
		Title:       data.Title,
		URL:         data.Link,
		Author:      data.Author,
		PublishedAt: &published,
		Content:     data.Content,
		Excerpt:     data.Excerpt,
		ImageURL:    data.ImageURL,
		FetchedAt:   fetchedAt,
	}
}

func changed(a *domain.Article, data parser.EntryData) bool {
	return a.Title != data.Title ||
		!equalPtr(a.Content, data.Content) ||
		!equalPtr(a.Excerpt, data.Excerpt)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
