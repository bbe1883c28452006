package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"feedsync/internal/domain"
	"feedsync/internal/serverutil"
)

type (
	FeedResp struct {
		ID                int64      `json:"id"`
		URL               string     `json:"url"`
		Title             *string    `json:"title,omitempty"`
		Priority          string     `json:"priority"`
		SyncIntervalHours int        `json:"sync_interval_hours"`
		LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
		NextSyncAt        time.Time  `json:"next_sync_at"`
		Status            string     `json:"status"`
	}

	SyncLogResp struct {
		ID              string     `json:"id"`
		Status          string     `json:"status"`
		StartedAt       time.Time  `json:"started_at"`
		FinishedAt      *time.Time `json:"finished_at,omitempty"`
		HTTPStatus      *int       `json:"http_status,omitempty"`
		ArticlesFound   int        `json:"articles_found"`
		ArticlesNew     int        `json:"articles_new"`
		ArticlesUpdated int        `json:"articles_updated"`
		Error           *string    `json:"error,omitempty"`
	}
)

func feedResp(f domain.Feed) FeedResp {
	return FeedResp{
		ID:                f.ID,
		URL:               f.URL,
		Title:             f.Title,
		Priority:          string(f.Priority),
		SyncIntervalHours: f.SyncIntervalHours,
		LastSyncedAt:      f.LastSyncedAt,
		NextSyncAt:        f.NextSyncAt,
		Status:            string(f.Status),
	}
}

type SyncReq struct {
	FeedIDs []int64 `json:"feed_ids"`
	Wait    bool    `json:"wait"`
}

func (r SyncReq) Validate() error {
	if len(r.FeedIDs) == 0 {
		return errors.New("feed_ids must not be empty")
	}
	return nil
}

type SyncResp struct {
	Results   []domain.SyncResult `json:"results,omitempty"`
	Accepted  []int64             `json:"accepted,omitempty"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

func (s *Server) postSync(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[SyncReq](r.Body)
	if err != nil {
		return err
	}

	results, err := s.controller.SyncNow(r.Context(), req.FeedIDs, req.Wait)
	if err != nil {
		return err
	}

	if !req.Wait {
		return serverutil.WriteJSON(w, http.StatusAccepted, SyncResp{Accepted: req.FeedIDs})
	}

	succeeded, failed := domain.Tally(results)
	return serverutil.WriteJSON(w, http.StatusOK, SyncResp{
		Results:   results,
		Succeeded: succeeded,
		Failed:    failed,
	})
}

type SubscribeReq struct {
	URL string `json:"url"`
}

func (r SubscribeReq) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", domain.ErrInvalidFeedURL, r.URL)
	}
	return nil
}

func (s *Server) postFeed(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[SubscribeReq](r.Body)
	if err != nil {
		return err
	}

	feed, err := s.controller.Subscribe(r.Context(), req.URL)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, feedResp(*feed))
}

func (s *Server) getDueFeeds(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryInt(r, "limit", s.dueLimit)
	if err != nil {
		return err
	}

	feeds, err := s.controller.FeedsDue(r.Context(), limit)
	if err != nil {
		return err
	}

	resp := make([]FeedResp, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, feedResp(f))
	}
	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type PriorityReq struct {
	Priority string `json:"priority"`
}

func (r PriorityReq) Validate() error {
	_, err := domain.ParsePriority(r.Priority)
	return err
}

func (s *Server) putPriority(w http.ResponseWriter, r *http.Request) error {
	feedID, err := pathFeedID(r)
	if err != nil {
		return err
	}

	req, err := serverutil.DecodeValid[PriorityReq](r.Body)
	if err != nil {
		return err
	}

	feed, err := s.controller.SetPriority(r.Context(), feedID, req.Priority)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, feedResp(*feed))
}

type NewArticlesResp struct {
	FeedID     int64     `json:"feed_id"`
	Since      time.Time `json:"since"`
	ArticleIDs []int64   `json:"article_ids"`
}

func (s *Server) getNewArticles(w http.ResponseWriter, r *http.Request) error {
	feedID, err := pathFeedID(r)
	if err != nil {
		return err
	}

	raw := r.URL.Query().Get("since")
	if raw == "" {
		return serverutil.E(http.StatusBadRequest, "since is required")
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return serverutil.E(http.StatusBadRequest, fmt.Errorf("invalid since: %w", err))
	}

	ids, err := s.controller.NewArticles(r.Context(), feedID, since)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []int64{}
	}

	return serverutil.WriteJSON(w, http.StatusOK, NewArticlesResp{
		FeedID:     feedID,
		Since:      since,
		ArticleIDs: ids,
	})
}

func (s *Server) getSyncLogs(w http.ResponseWriter, r *http.Request) error {
	feedID, err := pathFeedID(r)
	if err != nil {
		return err
	}
	limit, err := queryInt(r, "limit", defaultSyncLogLimit)
	if err != nil {
		return err
	}

	logs, err := s.syncLogs.ListByFeed(r.Context(), feedID, limit)
	if err != nil {
		return err
	}

	resp := make([]SyncLogResp, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, SyncLogResp{
			ID:              l.ID.String(),
			Status:          string(l.Status),
			StartedAt:       l.StartedAt,
			FinishedAt:      l.FinishedAt,
			HTTPStatus:      l.HTTPStatus,
			ArticlesFound:   l.ArticlesFound,
			ArticlesNew:     l.ArticlesNew,
			ArticlesUpdated: l.ArticlesUpdated,
			Error:           l.Error,
		})
	}
	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func pathFeedID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["feedID"], 10, 64)
	if err != nil {
		return 0, serverutil.E(http.StatusBadRequest, "invalid feed id")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, serverutil.E(http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", key))
	}
	return n, nil
}
