package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"feedsync/internal/domain"
	"feedsync/internal/testutil"
)

// memoryFeeds is an in-memory FeedStore.
type memoryFeeds struct {
	mu      sync.Mutex
	feeds   map[int64]domain.Feed
	now     func() time.Time
	updates int
	failErr error
}

func newMemoryFeeds(now func() time.Time, feeds ...domain.Feed) *memoryFeeds {
	m := &memoryFeeds{feeds: make(map[int64]domain.Feed), now: now}
	for _, f := range feeds {
		m.feeds[f.ID] = f
	}
	return m
}

func (m *memoryFeeds) GetByID(_ context.Context, id int64) (*domain.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.feeds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (m *memoryFeeds) GetDueForSync(_ context.Context, limit int) ([]domain.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rank := map[domain.Priority]int{domain.PriorityHigh: 0, domain.PriorityMedium: 1, domain.PriorityLow: 2}
	now := m.now()

	var due []domain.Feed
	for _, f := range m.feeds {
		if f.Status == domain.FeedStatusActive && IsDue(f, now) {
			due = append(due, f)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if rank[due[i].Priority] != rank[due[j].Priority] {
			return rank[due[i].Priority] < rank[due[j].Priority]
		}
		return due[i].NextSyncAt.Before(due[j].NextSyncAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memoryFeeds) UpdateSchedule(_ context.Context, id int64, u domain.ScheduleUpdate) (*domain.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}

	f, ok := m.feeds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if u.Priority != nil {
		f.Priority = *u.Priority
	}
	if u.NextSyncAt != nil {
		f.NextSyncAt = *u.NextSyncAt
	}
	if u.IntervalHours != nil {
		f.SyncIntervalHours = *u.IntervalHours
	}
	if u.LastSyncedAt != nil {
		f.LastSyncedAt = u.LastSyncedAt
	}
	m.feeds[id] = f
	m.updates++
	return &f, nil
}

// memoryCatalog counts lookups so cache hits are observable.
type memoryCatalog struct {
	entries map[string]domain.CatalogEntry
	lookups int
	err     error
}

func (c *memoryCatalog) GetByURL(_ context.Context, feedURL string) (*domain.CatalogEntry, error) {
	c.lookups++
	if c.err != nil {
		return nil, c.err
	}
	e, ok := c.entries[feedURL]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

type SchedulerTestSuite struct {
	suite.Suite

	now       time.Time
	feeds     *memoryFeeds
	catalog   *memoryCatalog
	scheduler *Scheduler
}

func (s *SchedulerTestSuite) SetupTest() {
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	lastSynced := s.now.Add(-2 * time.Hour)
	s.feeds = newMemoryFeeds(clock,
		domain.Feed{ID: 1, Priority: domain.PriorityMedium, SyncIntervalHours: 24, Status: domain.FeedStatusActive, NextSyncAt: s.now},
		domain.Feed{ID: 2, Priority: domain.PriorityLow, SyncIntervalHours: 168, Status: domain.FeedStatusActive,
			LastSyncedAt: &lastSynced, NextSyncAt: lastSynced.Add(168 * time.Hour)},
		domain.Feed{ID: 3, Priority: domain.PriorityHigh, SyncIntervalHours: 1, Status: domain.FeedStatusActive,
			LastSyncedAt: &lastSynced, NextSyncAt: lastSynced.Add(time.Hour)},
		domain.Feed{ID: 4, Priority: domain.PriorityHigh, SyncIntervalHours: 1, Status: domain.FeedStatusPaused},
	)
	s.catalog = &memoryCatalog{entries: map[string]domain.CatalogEntry{}}

	resolver := NewPriorityResolver(s.catalog, nil, 16, time.Minute, testutil.DiscardLogger())

	s.scheduler = New(s.feeds, resolver, testutil.DiscardLogger())
	s.scheduler.now = clock
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) TestChangePriority_KeepsLastSyncedClock() {
	feed, err := s.scheduler.ChangePriority(context.Background(), 2, domain.PriorityHigh)

	s.Require().NoError(err)
	s.Equal(domain.PriorityHigh, feed.Priority)
	s.Equal(1, feed.SyncIntervalHours)
	// last_synced_at + 1h, not now + 1h.
	s.Equal(s.now.Add(-time.Hour), feed.NextSyncAt)
}

func (s *SchedulerTestSuite) TestChangePriority_NeverSyncedUsesNow() {
	feed, err := s.scheduler.ChangePriority(context.Background(), 1, domain.PriorityLow)

	s.Require().NoError(err)
	s.Equal(168, feed.SyncIntervalHours)
	s.Equal(s.now.Add(168*time.Hour), feed.NextSyncAt)
}

func (s *SchedulerTestSuite) TestChangePriority_InvalidTier() {
	_, err := s.scheduler.ChangePriority(context.Background(), 1, domain.Priority("urgent"))

	s.ErrorIs(err, domain.ErrInvalidPriority)
	s.Equal(0, s.feeds.updates)
}

func (s *SchedulerTestSuite) TestChangePriority_UnknownFeed() {
	_, err := s.scheduler.ChangePriority(context.Background(), 404, domain.PriorityHigh)

	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *SchedulerTestSuite) TestTriggerNow() {
	s.False(s.scheduler.IsDue(s.feeds.feeds[2]))

	s.Require().NoError(s.scheduler.TriggerNow(context.Background(), 2))

	feed := s.feeds.feeds[2]
	s.Equal(s.now, feed.NextSyncAt)
	s.Equal(domain.PriorityLow, feed.Priority)
	s.True(s.scheduler.IsDue(feed))
}

func (s *SchedulerTestSuite) TestTriggerNow_StoreError() {
	s.feeds.failErr = errors.New("db down")

	err := s.scheduler.TriggerNow(context.Background(), 1)

	s.ErrorContains(err, "mark feed 1 due")
}

func (s *SchedulerTestSuite) TestDueFeeds_PriorityOrder() {
	feeds, err := s.scheduler.DueFeeds(context.Background(), 10)

	s.Require().NoError(err)
	s.Require().Len(feeds, 2)
	s.Equal(int64(3), feeds[0].ID)
	s.Equal(int64(1), feeds[1].ID)
}

func (s *SchedulerTestSuite) TestDueFeeds_Limit() {
	feeds, err := s.scheduler.DueFeeds(context.Background(), 1)

	s.Require().NoError(err)
	s.Len(feeds, 1)
}

func (s *SchedulerTestSuite) TestDefaultPriority() {
	s.catalog.entries["https://reuters.com/world/rss"] = domain.CatalogEntry{
		URL:             "https://reuters.com/world/rss",
		DefaultPriority: testutil.Ptr(domain.PriorityLow),
	}
	s.catalog.entries["https://blog.example.org/feed"] = domain.CatalogEntry{
		URL: "https://blog.example.org/feed",
	}

	tests := []struct {
		url  string
		want domain.Priority
	}{
		{"https://feeds.apnews.com/rss/topnews", domain.PriorityHigh},
		{"https://www.bbc.co.uk/news/rss.xml", domain.PriorityHigh},
		{"https://reuters.com/world/rss", domain.PriorityLow},
		{"https://blog.example.org/feed", domain.PriorityMedium},
		{"https://notreuters.com/feed", domain.PriorityMedium},
		{"not a url", domain.PriorityMedium},
	}

	for _, tt := range tests {
		got, err := s.scheduler.DefaultPriority(context.Background(), tt.url)
		s.Require().NoError(err, tt.url)
		s.Equal(tt.want, got, tt.url)
	}
}

func (s *SchedulerTestSuite) TestDefaultPriority_CachesCatalogHits() {
	ctx := context.Background()
	s.catalog.entries["https://example.com/feed"] = domain.CatalogEntry{
		URL:             "https://example.com/feed",
		DefaultPriority: testutil.Ptr(domain.PriorityLow),
	}

	for range 3 {
		got, err := s.scheduler.DefaultPriority(ctx, "https://example.com/feed")
		s.Require().NoError(err)
		s.Equal(domain.PriorityLow, got)
	}

	s.Equal(1, s.catalog.lookups)
}

func (s *SchedulerTestSuite) TestDefaultPriority_CatalogRowAddedAfterMiss() {
	ctx := context.Background()
	const feedURL = "https://example.com/feed"

	got, err := s.scheduler.DefaultPriority(ctx, feedURL)
	s.Require().NoError(err)
	s.Equal(domain.PriorityMedium, got)

	s.catalog.entries[feedURL] = domain.CatalogEntry{
		URL:             feedURL,
		DefaultPriority: testutil.Ptr(domain.PriorityHigh),
	}

	got, err = s.scheduler.DefaultPriority(ctx, feedURL)
	s.Require().NoError(err)
	s.Equal(domain.PriorityHigh, got)
	s.Equal(2, s.catalog.lookups)
}

func TestPriorityResolver_CatalogHitsExpire(t *testing.T) {
	const feedURL = "https://example.com/feed"
	catalog := &memoryCatalog{entries: map[string]domain.CatalogEntry{
		feedURL: {URL: feedURL, DefaultPriority: testutil.Ptr(domain.PriorityLow)},
	}}
	r := NewPriorityResolver(catalog, nil, 16, 20*time.Millisecond, testutil.DiscardLogger())

	got, err := r.Resolve(context.Background(), feedURL)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityLow, got)

	catalog.entries[feedURL] = domain.CatalogEntry{URL: feedURL, DefaultPriority: testutil.Ptr(domain.PriorityHigh)}

	assert.Eventually(t, func() bool {
		got, err := r.Resolve(context.Background(), feedURL)
		return err == nil && got == domain.PriorityHigh
	}, time.Second, 10*time.Millisecond)
}

func (s *SchedulerTestSuite) TestDefaultPriority_CatalogError() {
	s.catalog.err = errors.New("timeout")

	_, err := s.scheduler.DefaultPriority(context.Background(), "https://example.com/feed")

	s.ErrorContains(err, "lookup catalog")
}

func TestIntervals(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for p, hours := range map[domain.Priority]int{
		domain.PriorityHigh:   1,
		domain.PriorityMedium: 24,
		domain.PriorityLow:    168,
	} {
		feed := domain.Feed{LastSyncedAt: &base}
		assert.Equal(t, base.Add(time.Duration(hours)*time.Hour), ComputeNext(feed, p, base.Add(time.Minute)))
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)

	for _, p := range domain.Priorities {
		assert.True(t, IsDue(domain.Feed{Priority: p, NextSyncAt: now.Add(time.Hour)}, now), "never synced %s", p)
	}

	assert.True(t, IsDue(domain.Feed{LastSyncedAt: &last, NextSyncAt: now}, now))
	assert.True(t, IsDue(domain.Feed{LastSyncedAt: &last, NextSyncAt: now.Add(-time.Second)}, now))
	assert.False(t, IsDue(domain.Feed{LastSyncedAt: &last, NextSyncAt: now.Add(time.Second)}, now))
}

func TestNewPriorityResolver_NormalizesHosts(t *testing.T) {
	r := NewPriorityResolver(&memoryCatalog{}, []string{" WWW.Example.COM ", ""}, 0, 0, testutil.DiscardLogger())

	assert.True(t, r.IsBreakingNews("https://example.com/rss"))
	assert.True(t, r.IsBreakingNews("https://news.example.com/rss"))
	assert.False(t, r.IsBreakingNews("https://reuters.com/rss"))
}
