// Command feedtrack runs the dashboard data core from the command line.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"feedtrack/internal/aggregate"
	"feedtrack/internal/config"
	configfile "feedtrack/internal/config/file"
	"feedtrack/internal/hub"
	"feedtrack/internal/resolve"
	"feedtrack/internal/scheduler"
	"feedtrack/internal/snapshot"
	"feedtrack/internal/store"
	"feedtrack/internal/tracker"
	"feedtrack/internal/watch"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "feedtrack",
		Short:   "Feedback tracker data core",
		Version: version,
	}

	rootCmd.PersistentFlags().String("config", "config.json", "path to the config file")
	rootCmd.PersistentFlags().String("cache", "snapshots.db", "path to the snapshot cache database")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().String("mqtt-broker", "", "MQTT broker URL for cross-process notifications (optional)")
	rootCmd.PersistentFlags().String("mqtt-topic", "feedtrack/updates", "MQTT topic for update events")

	rootCmd.AddCommand(newRefreshCmd(), newServeCmd(), newCombineCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the base logger from the persistent flags.
func newLogger(cmd *cobra.Command) *slog.Logger {
	format, _ := cmd.Flags().GetString("log-format")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// app bundles the wired components for one command invocation.
type app struct {
	tracker   *tracker.Tracker
	conf      config.Store
	refresher *scheduler.Refresher
	notifyHub *hub.Hub
	cache     *snapshot.Cache
	logger    *slog.Logger
}

// buildApp wires the data core from the persistent flags. The returned
// cleanup func releases the cache, the scheduler, and the hub's external
// channel.
func buildApp(cmd *cobra.Command, logger *slog.Logger) (*app, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")
	cachePath, _ := cmd.Flags().GetString("cache")
	brokerURL, _ := cmd.Flags().GetString("mqtt-broker")
	topic, _ := cmd.Flags().GetString("mqtt-topic")

	conf := configfile.NewStore(configPath)

	cache, err := snapshot.Open(cachePath, tracker.CacheID, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot cache: %w", err)
	}

	refresher, err := scheduler.New(func(seconds int) error {
		return conf.PutAutoRefresh(context.Background(), seconds)
	}, logger)
	if err != nil {
		_ = cache.Close()
		return nil, nil, fmt.Errorf("create scheduler: %w", err)
	}

	var external hub.External
	if brokerURL != "" {
		external, err = hub.NewMQTTChannel(brokerURL, "feedtrack-"+hostname(), topic, logger)
		if err != nil {
			// The external channel is best-effort; run without it.
			logger.Warn("mqtt channel unavailable", "broker", brokerURL, "error", err)
		}
	}
	notifyHub := hub.New(external, logger)

	resolver := resolve.New(logger)
	a := &app{
		tracker: tracker.New(tracker.Deps{
			Config:    conf,
			Store:     store.New(resolver, nil, config.DefaultFileName, logger),
			Cache:     cache,
			Refresher: refresher,
			Hub:       notifyHub,
			Engine:    aggregate.NewEngine(resolver, logger),
			Logger:    logger,
		}),
		conf:      conf,
		refresher: refresher,
		notifyHub: notifyHub,
		cache:     cache,
		logger:    logger,
	}

	cleanup := func() {
		_ = a.refresher.Close()
		a.notifyHub.Close()
		_ = a.cache.Close()
	}
	return a, cleanup, nil
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Load the tracker data once and update the snapshot cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			a, cleanup, err := buildApp(cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.tracker.EnsureInitialized(cmd.Context()); err != nil {
				return err
			}

			coll := a.tracker.Records()
			fmt.Printf("loaded %d records from %s\n", len(coll.Errors), a.tracker.CurrentPath())
			if a.tracker.FromSample() {
				fmt.Println("warning: tracker data was malformed; showing sample data")
			}
			return nil
		},
	}
}

func newCombineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Print the combined summary for a period as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			logger := newLogger(cmd)

			a, cleanup, err := buildApp(cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.tracker.EnsureInitialized(cmd.Context()); err != nil {
				return err
			}

			sum, err := a.tracker.Combined(cmd.Context(), days)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(sum, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "period length in days (0, 3, 7, 30, 90, 180)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the data core with auto-refresh and file watching",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			a, cleanup, err := buildApp(cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.tracker.EnsureInitialized(ctx); err != nil {
				return err
			}
			logger.Info("data core running",
				"records", len(a.tracker.Records().Errors),
				"path", a.tracker.CurrentPath(),
				"refresh_seconds", a.refresher.Interval(),
			)

			g, ctx := errgroup.WithContext(ctx)

			// File watching is best-effort; the scheduler keeps refreshing
			// even when the share emits no events.
			if dir := a.tracker.CurrentPath(); dir != "" {
				cfg, err := a.conf.Load(ctx)
				if err != nil {
					return err
				}
				name := cfg.FileName(tracker.ResourceKey)
				w := watch.New(0, func() {
					if err := a.tracker.Refresh(context.Background()); err != nil &&
						!errors.Is(err, tracker.ErrRefreshInProgress) {
						logger.Warn("watch-triggered refresh failed", "error", err)
					}
				}, logger)

				g.Go(func() error {
					if err := w.Watch(ctx, dir, name); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("file watching disabled", "error", err)
					}
					<-ctx.Done()
					return nil
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down")
				return nil
			})

			return g.Wait()
		},
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
