package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/notify"
	"github.com/shanehull/resultalert/internal/pipeline"
	"github.com/shanehull/resultalert/internal/source"
	"github.com/shanehull/resultalert/internal/store"
)

const (
	roleAll    = "all"
	rolePoller = "poller"
	roleWorker = "worker"
)

var role string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the pollers, the queue, the workers and the sinks",
	Long: `Start monitoring. With the default role everything runs in one process.
With a redis queue, --role poller and --role worker split detection and
processing across processes sharing the same redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch role {
		case roleAll, rolePoller, roleWorker:
		default:
			return fmt.Errorf("unknown role %q, want all, poller or worker", role)
		}
		if role != roleAll && cfg.Pipeline.QueueBackend != "redis" {
			return fmt.Errorf("role %s needs pipeline.queue_backend = \"redis\"", role)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPipeline(ctx)
	},
}

func init() {
	runCmd.Flags().StringVar(&role, "role", roleAll, "process role: all, poller or worker")
}

func runPipeline(ctx context.Context) error {
	rdb, err := connectRedis(ctx)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	gate, err := openGate(rdb)
	if err != nil {
		return err
	}
	defer gate.Close()

	queue, err := newQueue(rdb)
	if err != nil {
		return err
	}

	var reporter rerrors.Reporter = notify.NewLogReporter(logger)
	deps := pipeline.Deps{
		Gate:  gate,
		Queue: queue,
		Observer: func(r pipeline.Run) {
			logger.Debug().
				Str("trace_id", r.TraceID).
				Str("symbol", r.Announcement.Symbol).
				Str("state", string(r.State)).
				Dur("took", r.FinishedAt.Sub(r.StartedAt)).
				Msg("run finished")
		},
	}

	if role != rolePoller {
		extractor, err := newExtractor(ctx)
		if err != nil {
			return err
		}
		deps.Extractor = extractor
		deps.Analyzer = newAnalyzer()

		if rdb != nil {
			est := store.NewEstimates(rdb, cfg.Estimates.TTL)
			deps.Estimates = est
			if cfg.Estimates.File != "" {
				reloader := store.NewReloader(cfg.Estimates.File, est, logger)
				n, err := reloader.Load(ctx)
				if err != nil {
					return err
				}
				logger.Info().Int("count", n).Str("file", cfg.Estimates.File).Msg("estimates seeded")
				if cfg.Estimates.Reload != "" {
					if err := reloader.Schedule(cfg.Estimates.Reload); err != nil {
						return err
					}
					reloader.Start()
					defer reloader.Stop()
				}
			}
		} else {
			logger.Warn().Msg("no redis configured, running without analyst estimates")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			deps.Priors = db
		}

		sinks, tg, err := newSinks(db)
		if err != nil {
			return err
		}
		if sinks.Len() == 0 {
			logger.Warn().Msg("no result sinks enabled, results will only be logged")
		}
		deps.Sink = sinks

		if tg != nil && cfg.Notify.Telegram.FailureAlerts {
			alerts := notify.NewAlertReporter(reporter, tg, logger)
			defer alerts.Wait()
			reporter = alerts
		}
	}
	deps.Reporter = reporter

	orch := pipeline.New(cfg.Pipeline, deps, logger)

	g, ctx := errgroup.WithContext(ctx)

	if role != roleWorker {
		poller := source.NewPoller(cfg.Poller, source.NewFilter(cfg.Filter), orch.Submit, reporter, logger)
		poller.UseResolver(source.NewResolver(cfg.Poller.NameLookupURL, cfg.Poller.Timeout, logger))
		for _, sc := range cfg.EnabledSources() {
			src, err := source.New(sc, logger)
			if err != nil {
				return err
			}
			poller.Add(src, sc.Interval)
		}
		g.Go(func() error {
			return poller.Run(ctx)
		})
	}

	if role != rolePoller {
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		return queue.Close()
	})

	logger.Info().
		Str("role", role).
		Int("sources", len(cfg.EnabledSources())).
		Int("workers", cfg.Pipeline.Workers).
		Str("queue", cfg.Pipeline.QueueBackend).
		Str("dedup", cfg.Dedup.Backend).
		Msg("resultalert started")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
