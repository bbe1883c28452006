package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/serverutil"
	"feedsync/internal/testutil"
)

type fakeController struct {
	syncIDs  []int64
	syncWait bool
	results  []domain.SyncResult
	syncErr  error

	dueLimit int
	due      []domain.Feed

	priorityID   int64
	priorityTier string
	priorityErr  error

	subscribed   string
	subscribeErr error

	since  time.Time
	newIDs []int64
}

func (f *fakeController) SyncNow(_ context.Context, ids []int64, wait bool) ([]domain.SyncResult, error) {
	f.syncIDs, f.syncWait = ids, wait
	if !wait {
		return nil, f.syncErr
	}
	return f.results, f.syncErr
}

func (f *fakeController) FeedsDue(_ context.Context, limit int) ([]domain.Feed, error) {
	f.dueLimit = limit
	return f.due, nil
}

func (f *fakeController) SetPriority(_ context.Context, id int64, tier string) (*domain.Feed, error) {
	f.priorityID, f.priorityTier = id, tier
	if f.priorityErr != nil {
		return nil, f.priorityErr
	}
	return &domain.Feed{ID: id, Priority: domain.Priority(tier), SyncIntervalHours: domain.Priority(tier).IntervalHours()}, nil
}

func (f *fakeController) Subscribe(_ context.Context, feedURL string) (*domain.Feed, error) {
	f.subscribed = feedURL
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return &domain.Feed{ID: 7, URL: feedURL, Priority: domain.PriorityMedium, Status: domain.FeedStatusActive}, nil
}

func (f *fakeController) NewArticles(_ context.Context, _ int64, since time.Time) ([]int64, error) {
	f.since = since
	return f.newIDs, nil
}

type fakeSyncLogs struct {
	limit int
	logs  []domain.SyncLog
}

func (f *fakeSyncLogs) ListByFeed(_ context.Context, _ int64, limit int) ([]domain.SyncLog, error) {
	f.limit = limit
	return f.logs, nil
}

func newTestServer(t *testing.T) (*Server, *fakeController, *fakeSyncLogs) {
	t.Helper()

	ctrl := &fakeController{}
	logs := &fakeSyncLogs{}
	srv := NewServer(config.APIConfig{Addr: ":0"}, 100, ctrl, logs, testutil.DiscardLogger())
	return srv, ctrl, logs
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestPostSync_Wait(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	ctrl.results = []domain.SyncResult{
		{FeedID: 1, Success: true, ArticlesNew: 3},
		{FeedID: 2, Error: "fetch feed: boom"},
	}

	rec := do(srv, http.MethodPost, "/v1/sync", `{"feed_ids":[1,2],"wait":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, ctrl.syncIDs)
	assert.True(t, ctrl.syncWait)

	resp := decode[SyncResp](t, rec)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 3, resp.Results[0].ArticlesNew)
	assert.NotEmpty(t, rec.Header().Get(serverutil.RequestIDHeader))
}

func TestPostSync_Background(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)

	rec := do(srv, http.MethodPost, "/v1/sync", `{"feed_ids":[4]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, ctrl.syncWait)
	assert.Equal(t, []int64{4}, decode[SyncResp](t, rec).Accepted)
}

func TestPostSync_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		syncErr error
		want    int
	}{
		{name: "empty ids", body: `{"feed_ids":[]}`, want: http.StatusBadRequest},
		{name: "malformed body", body: `{"feed_ids":`, want: http.StatusBadRequest},
		{name: "unknown feeds", body: `{"feed_ids":[9]}`, syncErr: fmt.Errorf("feeds: %w", domain.ErrNotFound), want: http.StatusNotFound},
		{name: "store failure", body: `{"feed_ids":[9]}`, syncErr: fmt.Errorf("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ctrl, _ := newTestServer(t)
			ctrl.syncErr = tt.syncErr

			rec := do(srv, http.MethodPost, "/v1/sync", tt.body)

			assert.Equal(t, tt.want, rec.Code)
			assert.EqualValues(t, tt.want, decode[map[string]any](t, rec)["status"], "status is echoed in the body")
		})
	}
}

func TestPostFeed(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)

	rec := do(srv, http.MethodPost, "/v1/feeds", `{"url":"https://news.example.com/rss"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://news.example.com/rss", ctrl.subscribed)
	resp := decode[FeedResp](t, rec)
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "medium", resp.Priority)
}

func TestPostFeed_InvalidURL(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)

	rec := do(srv, http.MethodPost, "/v1/feeds", `{"url":"ftp://nope"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ctrl.subscribed)
}

func TestPostFeed_Duplicate(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	ctrl.subscribeErr = fmt.Errorf("insert feed: %w", domain.ErrConflict)

	rec := do(srv, http.MethodPost, "/v1/feeds", `{"url":"https://news.example.com/rss"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetDueFeeds(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	next := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	ctrl.due = []domain.Feed{{ID: 1, Priority: domain.PriorityHigh, NextSyncAt: next}}

	rec := do(srv, http.MethodGet, "/v1/feeds/due", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, ctrl.dueLimit)

	resp := decode[[]FeedResp](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, "high", resp[0].Priority)
	assert.True(t, next.Equal(resp[0].NextSyncAt))

	rec = do(srv, http.MethodGet, "/v1/feeds/due?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ctrl.dueLimit)

	rec = do(srv, http.MethodGet, "/v1/feeds/due?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDueFeeds_EmptyIsArray(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/v1/feeds/due", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPutPriority(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)

	rec := do(srv, http.MethodPut, "/v1/feeds/12/priority", `{"priority":"low"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), ctrl.priorityID)
	assert.Equal(t, "low", ctrl.priorityTier)
	assert.Equal(t, 168, decode[FeedResp](t, rec).SyncIntervalHours)
}

func TestPutPriority_InvalidTier(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)

	rec := do(srv, http.MethodPut, "/v1/feeds/12/priority", `{"priority":"urgent"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ctrl.priorityID)
}

func TestPutPriority_UnknownFeed(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	ctrl.priorityErr = fmt.Errorf("get feed 99: %w", domain.ErrNotFound)

	rec := do(srv, http.MethodPut, "/v1/feeds/99/priority", `{"priority":"high"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetNewArticles(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	ctrl.newIDs = []int64{10, 11}

	rec := do(srv, http.MethodGet, "/v1/feeds/3/articles/new?since=2024-03-01T10:00:00Z", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Equal(ctrl.since))
	resp := decode[NewArticlesResp](t, rec)
	assert.Equal(t, int64(3), resp.FeedID)
	assert.Equal(t, []int64{10, 11}, resp.ArticleIDs)
}

func TestGetNewArticles_BadSince(t *testing.T) {
	srv, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodGet, "/v1/feeds/3/articles/new", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodGet, "/v1/feeds/3/articles/new?since=yesterday", "").Code)
}

func TestGetSyncLogs(t *testing.T) {
	srv, _, logs := newTestServer(t)
	id := uuid.New()
	logs.logs = []domain.SyncLog{{ID: id, FeedID: 3, Status: domain.SyncLogSuccess, ArticlesNew: 2}}

	rec := do(srv, http.MethodGet, "/v1/feeds/3/sync-logs", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultSyncLogLimit, logs.limit)
	resp := decode[[]SyncLogResp](t, rec)
	require.Len(t, resp, 1)
	assert.Equal(t, id.String(), resp[0].ID)
	assert.Equal(t, "success", resp[0].Status)
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/v1/feeds/abc/sync-logs", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(srv, http.MethodDelete, "/v1/sync", "").Code)
}
