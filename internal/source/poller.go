package source

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

type PollerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// NameLookupURL is the BSE company header API used to name scrip codes.
	// Empty turns remote lookups off.
	NameLookupURL string `mapstructure:"name_lookup_url"`
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      3 * time.Second,
		Timeout:       5 * time.Second,
		MaxBackoff:    time.Minute,
		NameLookupURL: DefaultBSEHeaderURL,
	}
}

// Handler receives each accepted announcement. It is called from the
// source's own goroutine and should return quickly.
type Handler func(ctx context.Context, ann types.Announcement)

type polled struct {
	src      Source
	interval time.Duration
}

// Poller runs every source on its own timer. A failing source backs off
// exponentially up to MaxBackoff without affecting the others.
type Poller struct {
	cfg      PollerConfig
	sources  []polled
	filter   *Filter
	handle   Handler
	resolver *Resolver
	reporter rerrors.Reporter
	log      zerolog.Logger
}

func NewPoller(cfg PollerConfig, filter *Filter, handle Handler, reporter rerrors.Reporter, log zerolog.Logger) *Poller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.Interval)
	}
	if filter == nil {
		filter = NewFilter(DefaultFilterConfig())
	}
	return &Poller{cfg: cfg, filter: filter, handle: handle, reporter: reporter, log: log}
}

// Add registers a source. A zero interval uses the poller default.
func (p *Poller) Add(src Source, interval time.Duration) {
	if interval <= 0 {
		interval = p.cfg.Interval
	}
	p.sources = append(p.sources, polled{src: src, interval: interval})
}

// UseResolver names the company on every accepted announcement before it is
// handed over.
func (p *Poller) UseResolver(r *Resolver) {
	p.resolver = r
}

func (p *Poller) Sources() int {
	return len(p.sources)
}

// Run polls until ctx is cancelled. It only returns nil: source failures
// are reported and retried, never propagated.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range p.sources {
		g.Go(func() error {
			p.loop(ctx, s)
			return nil
		})
	}
	p.log.Info().Int("sources", len(p.sources)).Msg("poller started")
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, s polled) {
	log := p.log.With().Str("source", s.src.Name()).Logger()
	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := p.PollOnce(ctx, s.src)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := NextDelay(s.interval, p.cfg.MaxBackoff, failures)
			log.Warn().Err(err).Int("failures", failures).Dur("retry_in", delay).Msg("poll failed")
			if p.reporter != nil {
				p.reporter.ReportError(rerrors.Report{
					Stage:   "poll",
					Kind:    rerrors.SourceUnavailable,
					Message: err.Error(),
					Context: map[string]string{"source": s.src.Name()},
				})
			}
			timer.Reset(delay)
			continue
		}

		if failures > 0 {
			log.Info().Int("failures", failures).Msg("source recovered")
		}
		failures = 0
		if n > 0 {
			log.Debug().Int("accepted", n).Msg("poll complete")
		}
		timer.Reset(s.interval)
	}
}

// PollOnce polls src under the configured timeout and hands every accepted
// announcement to the handler. It returns how many were handed over.
func (p *Poller) PollOnce(ctx context.Context, src Source) (int, error) {
	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	anns, err := src.Poll(pctx)
	if err != nil {
		return 0, rerrors.New("poll", rerrors.SourceUnavailable, "", err)
	}

	n := 0
	for _, ann := range anns {
		if _, ok := p.filter.Accept(ann, src.Kind()); !ok {
			continue
		}
		n++
		if p.resolver != nil {
			ann = p.resolver.Annotate(pctx, ann)
		}
		if p.handle != nil {
			p.handle(ctx, ann)
		}
	}
	return n, nil
}

// NextDelay doubles base per consecutive failure, capped at maxDelay.
func NextDelay(base, maxDelay time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures && d < maxDelay; i++ {
		d *= 2
	}
	return min(d, max(maxDelay, base))
}
