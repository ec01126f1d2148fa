package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reloader re-seeds estimates from a YAML file on a cron schedule, so they
// never age out of redis while the service runs.
type Reloader struct {
	cron      *cron.Cron
	path      string
	estimates *Estimates
	log       zerolog.Logger

	mu      sync.Mutex
	started bool
}

func NewReloader(path string, estimates *Estimates, log zerolog.Logger) *Reloader {
	return &Reloader{
		cron:      cron.New(cron.WithLocation(IST)),
		path:      path,
		estimates: estimates,
		log:       log,
	}
}

// Load seeds the file once.
func (r *Reloader) Load(ctx context.Context) (int, error) {
	ests, err := LoadEstimatesFile(r.path)
	if err != nil {
		return 0, err
	}
	return r.estimates.PutAll(ctx, ests)
}

// Schedule adds the reload job with a standard five-field cron spec.
func (r *Reloader) Schedule(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		n, err := r.Load(context.Background())
		if err != nil {
			r.log.Error().Err(err).Str("path", r.path).Msg("estimates reload failed")
			return
		}
		r.log.Info().Int("count", n).Msg("estimates reloaded")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule estimates reload %q: %w", spec, err)
	}
	return nil
}

func (r *Reloader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		r.cron.Start()
		r.started = true
	}
}

func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		<-r.cron.Stop().Done()
		r.started = false
	}
}
