package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedsync/internal/api"
	"feedsync/internal/broker"
	"feedsync/internal/config"
	"feedsync/internal/fetcher"
	"feedsync/internal/parser"
	"feedsync/internal/pipeline"
	"feedsync/internal/scheduler"
	"feedsync/internal/service"
	"feedsync/internal/storage/postgres"
)

// app holds everything wired from the configuration. Commands that only
// touch the database use openDB; the rest use openApp.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sqlx.DB
	broker   *broker.RabbitMQ
	feeds    *postgres.FeedStore
	syncLogs *postgres.SyncLogStore
	queue    *postgres.EmbeddingQueue

	scheduler  *scheduler.Scheduler
	manager    *pipeline.Manager
	batch      *service.Orchestrator
	controller *service.Controller
}

func openDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	return db, nil
}

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rabbitMQ, err := broker.NewRabbitMQ(broker.Config{
		URL:             cfg.RabbitMQ.URL,
		Exchange:        cfg.RabbitMQ.Exchange,
		SignalKey:       cfg.RabbitMQ.SignalKey,
		SignalQueue:     cfg.RabbitMQ.SignalQueue,
		EmbeddingsKey:   cfg.RabbitMQ.EmbeddingsKey,
		EmbeddingsQueue: cfg.RabbitMQ.EmbeddingsQueue,
	}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		broker:   rabbitMQ,
		feeds:    postgres.NewFeedStore(db),
		syncLogs: postgres.NewSyncLogStore(db),
		queue:    postgres.NewEmbeddingQueue(db),
	}

	resolver := scheduler.NewPriorityResolver(
		postgres.NewCatalogStore(db),
		cfg.Scheduler.BreakingNewsHosts,
		cfg.Scheduler.CatalogCacheSize,
		cfg.Scheduler.CatalogCacheTTL,
		logger,
	)
	a.scheduler = scheduler.New(a.feeds, resolver, logger)
	a.manager = pipeline.NewManager(a.queue, rabbitMQ, a.scheduler, logger)

	articles := postgres.NewArticleStore(db)
	syncService := service.NewSyncService(
		fetcher.New(fetcher.Options{
			Timeout:             cfg.Fetcher.Timeout(),
			UserAgent:           cfg.Fetcher.UserAgent,
			RespectETag:         cfg.Fetcher.RespectETag,
			RespectLastModified: cfg.Fetcher.RespectLastModified,
		}, logger),
		parser.New(parser.Options{MaxArticlesPerFeed: cfg.Fetcher.MaxArticlesPerFeed}, logger),
		a.feeds,
		articles,
		a.syncLogs,
		postgres.NewTransactionManager(db),
		a.manager,
		logger,
		cfg.Sync,
	)

	a.batch = service.NewOrchestrator(syncService, cfg.Sync, logger)
	a.controller = service.NewController(a.feeds, articles, a.scheduler, a.manager, a.batch, logger)

	return a, nil
}

func (a *app) loop() *scheduler.Loop {
	return scheduler.NewLoop(a.scheduler, a.batch, a.cfg.Sync.TickInterval, a.cfg.Sync.DueLimit, a.logger)
}

func (a *app) server() *api.Server {
	return api.NewServer(a.cfg.API, a.cfg.Sync.DueLimit, a.controller, a.syncLogs, a.logger)
}

// Close waits for background syncs before releasing connections.
func (a *app) Close() {
	if a.controller != nil {
		a.controller.Wait()
	}
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}
