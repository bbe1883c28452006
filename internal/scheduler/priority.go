package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"feedsync/internal/domain"
)

// DefaultBreakingNewsHosts are sources that publish around the clock.
var DefaultBreakingNewsHosts = []string{
	"reuters.com",
	"apnews.com",
	"bbc.co.uk",
	"bbc.com",
	"cnn.com",
	"aljazeera.com",
	"theguardian.com",
	"npr.org",
	"bloomberg.com",
	"nytimes.com",
}

// CatalogStore looks up curated feed recommendations by URL.
type CatalogStore interface {
	GetByURL(ctx context.Context, feedURL string) (*domain.CatalogEntry, error)
}

const (
	DefaultCatalogCacheSize = 1024
	DefaultCatalogCacheTTL  = 10 * time.Minute
)

// PriorityResolver picks the starting tier of a newly subscribed feed. An
// explicit catalog default wins; otherwise breaking-news hosts get high and
// everything else medium.
//
// Only catalog hits are cached, and only for the cache TTL, so rows added or
// edited later are picked up without a restart.
type PriorityResolver struct {
	catalog  CatalogStore
	breaking []string
	cache    *expirable.LRU[string, domain.Priority]
	logger   *slog.Logger
}

func NewPriorityResolver(catalog CatalogStore, breakingHosts []string, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *PriorityResolver {
	if len(breakingHosts) == 0 {
		breakingHosts = DefaultBreakingNewsHosts
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCatalogCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCatalogCacheTTL
	}

	hosts := make([]string, 0, len(breakingHosts))
	for _, h := range breakingHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts = append(hosts, strings.TrimPrefix(h, "www."))
		}
	}

	return &PriorityResolver{
		catalog:  catalog,
		breaking: hosts,
		cache:    expirable.NewLRU[string, domain.Priority](cacheSize, nil, cacheTTL),
		logger:   logger.With("component", "priority_resolver"),
	}
}

func (r *PriorityResolver) Resolve(ctx context.Context, feedURL string) (domain.Priority, error) {
	catalogDefault, err := r.catalogDefault(ctx, feedURL)
	if err != nil {
		return "", err
	}
	if catalogDefault != nil {
		return *catalogDefault, nil
	}

	if r.IsBreakingNews(feedURL) {
		return domain.PriorityHigh, nil
	}
	return domain.PriorityMedium, nil
}

// IsBreakingNews reports whether feedURL's host is, or is a subdomain of, a
// known breaking-news host.
func (r *PriorityResolver) IsBreakingNews(feedURL string) bool {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil {
		return false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return false
	}

	for _, h := range r.breaking {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (r *PriorityResolver) catalogDefault(ctx context.Context, feedURL string) (*domain.Priority, error) {
	if p, ok := r.cache.Get(feedURL); ok {
		return &p, nil
	}

	entry, err := r.catalog.GetByURL(ctx, feedURL)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup catalog: %w", err)
	}

	if entry == nil || entry.DefaultPriority == nil {
		return nil, nil
	}

	p := *entry.DefaultPriority
	if !p.Valid() {
		r.logger.WarnContext(ctx, "catalog entry has invalid default priority",
			"url", feedURL,
			"priority", p,
		)
		return nil, nil
	}

	r.cache.Add(feedURL, p)
	return &p, nil
}
