package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/shanehull/resultalert/internal/ai"
	"github.com/shanehull/resultalert/internal/analysis"
	"github.com/shanehull/resultalert/internal/dedup"
	"github.com/shanehull/resultalert/internal/extract"
	"github.com/shanehull/resultalert/internal/notify"
	"github.com/shanehull/resultalert/internal/pipeline"
	"github.com/shanehull/resultalert/internal/store"
)

// connectRedis returns nil when no redis URL is configured.
func connectRedis(ctx context.Context) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	rdb, err := store.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("addr", rdb.Options().Addr).Msg("connected to redis")
	return rdb, nil
}

func openGate(rdb *redis.Client) (*dedup.Gate, error) {
	var (
		st  dedup.Store
		err error
	)
	switch cfg.Dedup.Backend {
	case "memory":
		st = dedup.NewMemoryStore()
	case "file":
		st, err = dedup.NewFileStore(cfg.Dedup.Path, logger)
	case "badger":
		st, err = dedup.OpenBadgerStore(cfg.Dedup.Path)
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("dedup backend redis needs redis.url")
		}
		st = dedup.NewRedisStore(rdb)
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s dedup store: %w", cfg.Dedup.Backend, err)
	}
	logger.Debug().Str("backend", cfg.Dedup.Backend).Dur("ttl", cfg.Dedup.TTL).Msg("dedup gate ready")
	return dedup.NewGate(st, dedup.WithTTL(cfg.Dedup.TTL), dedup.WithLogger(logger)), nil
}

func newQueue(rdb *redis.Client) (pipeline.Queue, error) {
	pc := cfg.Pipeline
	policy, err := pipeline.ParsePolicy(pc.QueuePolicy)
	if err != nil {
		return nil, err
	}
	if pc.QueueBackend == "redis" {
		if rdb == nil {
			return nil, fmt.Errorf("queue backend redis needs redis.url")
		}
		return pipeline.NewRedisQueue(rdb, pc.QueueKey, pc.QueueSize, policy, pc.EnqueueTimeout), nil
	}
	return pipeline.NewChanQueue(pc.QueueSize, policy, pc.EnqueueTimeout), nil
}

func newExtractor(ctx context.Context) (*extract.Engine, error) {
	ec := cfg.Extraction
	strategies := extract.DefaultStrategies(ec.PDFToText)
	if ec.Gemini.Enabled {
		s, err := ai.NewMetricsStrategy(ctx, ec.Gemini.APIKey, ec.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to set up gemini extraction: %w", err)
		}
		strategies = append(strategies, s)
	}
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	logger.Debug().Strs("strategies", names).Float64("threshold", ec.Threshold).Msg("extraction chain")

	dl := extract.NewDownloader(ec.Download, logger)
	return extract.NewEngine(dl, strategies, ec.Threshold, logger), nil
}

func newAnalyzer() *analysis.Engine {
	return analysis.NewEngine(cfg.Analysis, logger)
}

// openDB returns nil when persistence is disabled.
func openDB() (*store.DB, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newSinks also returns the Telegram sink, nil when disabled, for failure
// alerts.
func newSinks(db *store.DB) (*notify.Multi, *notify.Telegram, error) {
	nc := cfg.Notify
	var sinks []notify.Sink
	if db != nil {
		sinks = append(sinks, db)
	}
	if nc.Console {
		sinks = append(sinks, notify.NewConsole(os.Stdout))
	}
	if nc.Email.Enabled {
		sinks = append(sinks, notify.NewEmailSink(nc.Email, logger))
	}
	var tg *notify.Telegram
	if nc.Telegram.Enabled {
		var err error
		tg, err = notify.NewTelegram(nc.Telegram, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, tg)
	}
	return notify.NewMulti(sinks...), tg, nil
}
