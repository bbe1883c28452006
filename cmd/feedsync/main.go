package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"feedsync/internal/api"
	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/logger"
	"feedsync/internal/pipeline"
	"feedsync/internal/storage/postgres"
	"feedsync/migrations"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
	log        *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "feedsync",
	Short:         "Synchronize syndication feeds on a priority schedule",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Context(), configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			return err
		}

		log = logger.New(os.Stdout, cfg.LogLevel)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	syncCmd.Flags().BoolVar(&syncBackground, "background", false, "Return once the feeds are marked instead of waiting for results")
	syncCmd.Flags().StringVar(&syncServer, "server", "", "Base URL of the running service (defaults to one derived from api.addr)")
	dueCmd.Flags().IntVar(&dueLimit, "limit", 0, "Maximum number of feeds to list (defaults to sync.due_limit)")
	queueCmd.Flags().IntVar(&queueLimit, "limit", 50, "Maximum number of entries to list")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(runCmd, syncCmd, dueCmd, priorityCmd, subscribeCmd, migrateCmd, queueCmd)
}

// fail logs err and hands it back to cobra for the exit code.
func fail(msg string, err error) error {
	log.Error(msg, "error", err)
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler loop, pipeline consumer and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx, cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer a.Close()

		log.Info("starting feedsync",
			"version", version,
			"tick_interval", cfg.Sync.TickInterval,
			"batch_size", cfg.Sync.BatchSize,
			"api_addr", cfg.API.Addr,
		)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return a.loop().Start(ctx)
		})
		g.Go(func() error {
			return a.manager.Run(ctx)
		})
		g.Go(func() error {
			return a.broker.ConsumeEmbeddingsCompleted(ctx, func(ctx context.Context, done domain.EmbeddingBatchCompleted) error {
				return a.manager.Submit(ctx, pipeline.EmbeddingsCompleted{EmbeddingBatchCompleted: done})
			})
		})
		g.Go(func() error {
			return a.server().ServeUntil(ctx, 10*time.Second)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return fail("feedsync stopped", err)
		}
		log.Info("feedsync stopped")
		return nil
	},
}

var (
	syncBackground bool
	syncServer     string
)

// syncCmd goes through the running service: the clustering flag a manual
// sync arms lives in that process's pipeline manager.
var syncCmd = &cobra.Command{
	Use:   "sync FEED_ID...",
	Short: "Ask the running service to sync the given feeds now",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		server := syncServer
		if server == "" {
			server = cfg.API.BaseURL()
		}

		resp, err := api.NewClient(server, cfg.API.WriteTimeout).Sync(cmd.Context(), ids, !syncBackground)
		if err != nil {
			return fail("manual sync failed", err)
		}
		if syncBackground {
			log.Info("manual sync accepted", "server", server, "feeds", resp.Accepted)
			return nil
		}

		log.Info("manual sync finished", "succeeded", resp.Succeeded, "failed", resp.Failed)
		return printJSON(resp.Results)
	},
}

var dueLimit int

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List feeds due for sync, highest priority first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer a.Close()

		limit := dueLimit
		if limit <= 0 {
			limit = cfg.Sync.DueLimit
		}
		feeds, err := a.controller.FeedsDue(cmd.Context(), limit)
		if err != nil {
			return fail("failed to list due feeds", err)
		}
		return printJSON(feeds)
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority FEED_ID high|medium|low",
	Short: "Change a feed's priority and reschedule it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid feed id %q: %w", args[0], err)
		}

		a, err := openApp(cmd.Context(), cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer a.Close()

		feed, err := a.controller.SetPriority(cmd.Context(), id, args[1])
		if err != nil {
			return fail("failed to change priority", err)
		}
		return printJSON(feed)
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe URL",
	Short: "Register a feed with its default priority",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer a.Close()

		feed, err := a.controller.Subscribe(cmd.Context(), args[0])
		if err != nil {
			return fail("failed to subscribe", err)
		}
		return printJSON(feed)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer db.Close()

		if err := migrations.Run(db); err != nil {
			return fail("migration failed", err)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer db.Close()

		if err := migrations.Down(db); err != nil {
			return fail("migration failed", err)
		}
		log.Info("migrations rolled back")
		return nil
	},
}

var queueLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List articles waiting for embeddings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), cfg, log)
		if err != nil {
			return fail("failed to start", err)
		}
		defer db.Close()

		entries, err := postgres.NewEmbeddingQueue(db).Pending(cmd.Context(), queueLimit)
		if err != nil {
			return fail("failed to list embedding queue", err)
		}
		return printJSON(entries)
	},
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid feed id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
