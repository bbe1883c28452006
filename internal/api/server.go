// Package api exposes the sync controller over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/serverutil"
)

type (
	// Controller is what the HTTP surface drives.
	Controller interface {
		SyncNow(ctx context.Context, feedIDs []int64, wait bool) ([]domain.SyncResult, error)
		FeedsDue(ctx context.Context, limit int) ([]domain.Feed, error)
		SetPriority(ctx context.Context, feedID int64, tier string) (*domain.Feed, error)
		Subscribe(ctx context.Context, feedURL string) (*domain.Feed, error)
		NewArticles(ctx context.Context, feedID int64, since time.Time) ([]int64, error)
	}

	SyncLogLister interface {
		ListByFeed(ctx context.Context, feedID int64, limit int) ([]domain.SyncLog, error)
	}

	// Server serves the manual sync, scheduling and subscription endpoints.
	Server struct {
		*http.Server

		controller Controller
		syncLogs   SyncLogLister
		dueLimit   int
		logger     *slog.Logger
	}
)

const defaultSyncLogLimit = 20

func NewServer(cfg config.APIConfig, dueLimit int, controller Controller, syncLogs SyncLogLister, logger *slog.Logger) *Server {
	var (
		r   = serverutil.ErrRouter{Router: mux.NewRouter()}
		log = logger.With("component", "api")
	)

	var handler http.Handler = r
	if len(cfg.CORSOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"content-type"}),
		)(handler)
	}
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(log.Handler(), slog.LevelError)),
	)(handler)

	srvr := Server{
		controller: controller,
		syncLogs:   syncLogs,
		dueLimit:   dueLimit,
		logger:     log,
		Server: &http.Server{
			Addr:         cfg.Addr,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Handler:      handler,
		},
	}

	r.Use(serverutil.RequestIDMiddleware, serverutil.AccessLogMiddleware(log))

	r.HandleFuncE("/v1/sync", srvr.postSync).Methods(http.MethodPost)
	r.HandleFuncE("/v1/feeds", srvr.postFeed).Methods(http.MethodPost)
	r.HandleFuncE("/v1/feeds/due", srvr.getDueFeeds).Methods(http.MethodGet)
	r.HandleFuncE("/v1/feeds/{feedID:[0-9]+}/priority", srvr.putPriority).Methods(http.MethodPut)
	r.HandleFuncE("/v1/feeds/{feedID:[0-9]+}/articles/new", srvr.getNewArticles).Methods(http.MethodGet)
	r.HandleFuncE("/v1/feeds/{feedID:[0-9]+}/sync-logs", srvr.getSyncLogs).Methods(http.MethodGet)

	log.Debug("configured api server", "addr", cfg.Addr)

	return &srvr
}

// ServeUntil serves until ctx is done, then drains requests in flight for
// up to timeout.
func (s *Server) ServeUntil(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.Addr)
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != http.ErrServerClosed {
		return err
	}
	return nil
}
