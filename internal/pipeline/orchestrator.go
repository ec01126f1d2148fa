/*
Package pipeline runs admitted announcements through extraction and analysis
on a fixed-size worker pool and hands the results to the configured sinks.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shanehull/resultalert/internal/analysis"
	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/logging"
	"github.com/shanehull/resultalert/internal/types"
)

type Admitter interface {
	// Claim fails with ErrDedupRejected when id was already admitted.
	Claim(ctx context.Context, id types.IdentityKey) error
	Release(ctx context.Context, id types.IdentityKey) error
}

type Extractor interface {
	Extract(ctx context.Context, ann types.Announcement) (types.ExtractedMetrics, error)
	LowConfidence(m types.ExtractedMetrics) bool
}

type Analyzer interface {
	Analyze(m types.ExtractedMetrics, prior *types.PriorPeriodActuals, est *types.Estimate, discoveredAt time.Time) types.AnalysisResult
}

// EstimatesLookup returns rerrors.ErrNotFound (or a nil estimate) when no
// estimate exists.
type EstimatesLookup interface {
	GetEstimate(ctx context.Context, symbol string, quarter, fiscalYear int) (*types.Estimate, error)
}

// PriorActualsLookup returns rerrors.ErrNotFound (or nil) when nothing is
// stored for the preceding periods.
type PriorActualsLookup interface {
	GetPriorActuals(ctx context.Context, symbol string, quarter, fiscalYear int) (*types.PriorPeriodActuals, error)
}

// ResultSink receives finished results. Errors are reported, never retried.
type ResultSink interface {
	Emit(ctx context.Context, r types.AnalysisResult) error
}

type TimeoutPolicy string

const (
	// TimeoutPartial analyses whatever was extracted before the deadline.
	TimeoutPartial TimeoutPolicy = "partial"
	// TimeoutFail ends the run in Failed(timeout).
	TimeoutFail TimeoutPolicy = "fail"
)

type Config struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	QueuePolicy    string        `mapstructure:"queue_policy"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	Deadline       time.Duration `mapstructure:"deadline"`
	TimeoutPolicy  string        `mapstructure:"timeout_policy"`
	// QueueBackend is "memory" or "redis".
	QueueBackend string `mapstructure:"queue_backend"`
	QueueKey     string `mapstructure:"queue_key"`
}

func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      100,
		QueuePolicy:    string(PolicyBlock),
		EnqueueTimeout: 500 * time.Millisecond,
		Deadline:       10 * time.Second,
		TimeoutPolicy:  string(TimeoutPartial),
		QueueBackend:   "memory",
		QueueKey:       DefaultQueueKey,
	}
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: pipeline.workers must be positive", rerrors.ErrConfigInvalid)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: pipeline.queue_size must be positive", rerrors.ErrConfigInvalid)
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("%w: pipeline.deadline must be positive", rerrors.ErrConfigInvalid)
	}
	if _, err := ParsePolicy(c.QueuePolicy); err != nil {
		return err
	}
	switch TimeoutPolicy(c.TimeoutPolicy) {
	case TimeoutPartial, TimeoutFail:
	default:
		return fmt.Errorf("%w: unknown timeout policy %q", rerrors.ErrConfigInvalid, c.TimeoutPolicy)
	}
	switch c.QueueBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown queue backend %q", rerrors.ErrConfigInvalid, c.QueueBackend)
	}
	return nil
}

type Deps struct {
	Gate      Admitter
	Queue     Queue
	Extractor Extractor
	Analyzer  Analyzer
	Estimates EstimatesLookup
	Priors    PriorActualsLookup
	Sink      ResultSink
	Reporter  rerrors.Reporter
	// Observer, when set, sees every run once it reaches a terminal state.
	Observer func(Run)
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time
}

func New(cfg Config, deps Deps, log zerolog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = def.Deadline
	}
	if cfg.TimeoutPolicy == "" {
		cfg.TimeoutPolicy = def.TimeoutPolicy
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// Submit is the poller's hand-off: admit through the gate, then enqueue.
// A rejected announcement is dropped silently.
func (o *Orchestrator) Submit(ctx context.Context, ann types.Announcement) {
	log := logging.WithSymbol(o.log, ann.Symbol)

	if err := types.Validate(ann); err != nil {
		o.report(rerrors.Report{Stage: "detect", Symbol: ann.Symbol, Kind: rerrors.InvalidInput, Message: err.Error()})
		return
	}

	if err := o.deps.Gate.Claim(ctx, ann.Identity); err != nil {
		if rerrors.Is(err, rerrors.ErrDedupRejected) {
			return
		}
		log.Error().Err(err).Msg("dedup gate unavailable")
		o.report(rerrors.Report{Stage: "admit", Symbol: ann.Symbol, Kind: rerrors.Unknown, Message: err.Error()})
		return
	}

	if err := o.deps.Queue.Push(ctx, ann); err != nil {
		log.Warn().Err(err).Str("identity", ann.Identity.String()).Msg("announcement dropped, queue full")
		o.report(rerrors.Report{Stage: "enqueue", Symbol: ann.Symbol, Kind: rerrors.Unknown, Message: err.Error()})
		// Let a later poll pick it up again.
		if rerr := o.deps.Gate.Release(context.WithoutCancel(ctx), ann.Identity); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to release dedup record")
		}
		return
	}
	log.Info().Str("source", ann.Source).Str("identity", ann.Identity.String()).Msg("new result detected")
}

// Run starts the worker pool and blocks until ctx is cancelled or the queue
// is closed and drained.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range o.cfg.Workers {
		g.Go(func() error {
			o.worker(ctx, i)
			return nil
		})
	}
	o.log.Info().Int("workers", o.cfg.Workers).Dur("deadline", o.cfg.Deadline).Msg("pipeline started")
	return g.Wait()
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	log := o.log.With().Int("worker", id).Logger()
	for {
		ann, err := o.deps.Queue.Pop(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, ErrQueueClosed):
			return
		default:
			log.Error().Err(err).Msg("failed to take work")
			o.report(rerrors.ReportOf("dequeue", "", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		o.Process(ctx, ann)
	}
}

// Process takes one admitted announcement to Dispatched or Failed. It never
// panics the worker and never returns an error: failures end up in the run
// record and at the reporter.
func (o *Orchestrator) Process(ctx context.Context, ann types.Announcement) (out Run) {
	run := newRun(ann, o.now())
	log := logging.WithTrace(logging.WithSymbol(o.log, ann.Symbol), run.TraceID)

	defer func() {
		if p := recover(); p != nil {
			o.fail(run, log, "pipeline", rerrors.Unknown, fmt.Errorf("panic: %v", p))
		}
		run.FinishedAt = o.now()
		out = *run
		if o.deps.Observer != nil {
			o.deps.Observer(out)
		}
	}()

	dctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()
	dctx = logging.WithContext(dctx, log)

	if !o.step(run, log, Extracting) {
		return *run
	}
	m, err := o.deps.Extractor.Extract(dctx, ann)
	partial := false
	if err != nil {
		timedOut := rerrors.KindOf(err) == rerrors.Timeout || dctx.Err() != nil
		if !timedOut || m.FieldCount() == 0 || TimeoutPolicy(o.cfg.TimeoutPolicy) != TimeoutPartial {
			kind := rerrors.KindOf(err)
			if timedOut {
				kind = rerrors.Timeout
			}
			o.fail(run, log, "extract", kind, err)
			return *run
		}
		partial = true
		log.Warn().Err(err).Msg("deadline hit, continuing with partial extraction")
	}
	if m.Symbol == "" {
		m.Symbol = ann.Symbol
	}
	if err := types.Validate(m); err != nil {
		o.fail(run, log, "extract", rerrors.InvalidInput, err)
		return *run
	}
	if !o.step(run, log, Extracted) {
		return *run
	}

	lowConfidence := o.deps.Extractor.LowConfidence(m)
	if lowConfidence {
		o.report(rerrors.Report{
			Stage: "extract", Symbol: ann.Symbol, Kind: rerrors.LowConfidenceExtraction,
			Message: fmt.Sprintf("best strategy %s scored %.2f", m.ExtractionMethod, m.Confidence),
		})
	}

	if !o.step(run, log, Analyzing) {
		return *run
	}
	est := o.estimate(dctx, log, m)
	prior := analysis.MergePrior(o.priorActuals(dctx, log, m), analysis.PriorFromDocument(m))

	r := o.deps.Analyzer.Analyze(m, prior, est, ann.DiscoveredAt)
	r.Announcement = ann
	r.LowConfidence = lowConfidence
	r.Partial = partial
	for _, kind := range analysis.Missing(r) {
		o.report(rerrors.Report{Stage: "analyze", Symbol: ann.Symbol, Kind: kind})
	}

	if dctx.Err() != nil && TimeoutPolicy(o.cfg.TimeoutPolicy) == TimeoutFail {
		o.fail(run, log, "analyze", rerrors.Timeout, dctx.Err())
		return *run
	}
	if !o.step(run, log, Analyzed) {
		return *run
	}

	// The deadline covers detection to analysis; emission runs on the
	// parent context.
	if err := o.deps.Sink.Emit(context.WithoutCancel(ctx), r); err != nil {
		log.Error().Err(err).Msg("result sink failed")
		o.report(rerrors.Report{Stage: "dispatch", Symbol: ann.Symbol, Kind: rerrors.SinkFailed, Message: err.Error()})
	}
	if !o.step(run, log, Dispatched) {
		return *run
	}

	log.Info().
		Str("sentiment", string(r.Sentiment)).
		Float64("score", r.SentimentScore).
		Float64("detection_time_sec", r.DetectionTimeSec).
		Str("method", m.ExtractionMethod).
		Float64("confidence", m.Confidence).
		Msg("result dispatched")
	return *run
}

func (o *Orchestrator) estimate(ctx context.Context, log zerolog.Logger, m types.ExtractedMetrics) *types.Estimate {
	if o.deps.Estimates == nil {
		return nil
	}
	est, err := o.deps.Estimates.GetEstimate(ctx, m.Symbol, m.Quarter, m.FiscalYear)
	if err != nil {
		if !errors.Is(err, rerrors.ErrNotFound) {
			log.Warn().Err(err).Msg("estimates lookup failed")
		}
		return nil
	}
	return est
}

func (o *Orchestrator) priorActuals(ctx context.Context, log zerolog.Logger, m types.ExtractedMetrics) *types.PriorPeriodActuals {
	if o.deps.Priors == nil {
		return nil
	}
	p, err := o.deps.Priors.GetPriorActuals(ctx, m.Symbol, m.Quarter, m.FiscalYear)
	if err != nil {
		if !errors.Is(err, rerrors.ErrNotFound) {
			log.Warn().Err(err).Msg("prior actuals lookup failed")
		}
		return nil
	}
	return p
}

// step advances run and reports the failure when the move is out of
// sequence.
func (o *Orchestrator) step(run *Run, log zerolog.Logger, to State) bool {
	from := run.State
	if run.advance(to) {
		return true
	}
	if !from.Terminal() && run.State == Failed {
		log.Error().Err(run.Err).Str("from", string(from)).Str("to", string(to)).Msg("announcement failed")
		rep := rerrors.ReportOf(run.FailedStage, run.Announcement.Symbol, run.Err)
		rep.Kind = run.FailedKind
		o.reportFailure(run, rep)
	}
	return false
}

func (o *Orchestrator) fail(run *Run, log zerolog.Logger, stage string, kind rerrors.Kind, err error) {
	run.fail(stage, kind, err)
	log.Error().Err(err).Str("stage", stage).Str("kind", string(kind)).Msg("announcement failed")
	rep := rerrors.ReportOf(stage, run.Announcement.Symbol, err)
	rep.Kind = kind
	o.reportFailure(run, rep)
}

// reportFailure reports a failed run with its announcement details.
func (o *Orchestrator) reportFailure(run *Run, rep rerrors.Report) {
	ann := run.Announcement
	rep.Context = map[string]string{
		rerrors.CtxTraceID:       run.TraceID,
		rerrors.CtxIdentity:      ann.Identity.String(),
		rerrors.CtxDescription:   ann.Description,
		rerrors.CtxAttachmentURL: ann.AttachmentURL,
	}
	if ann.CompanyName != "" {
		rep.Context[rerrors.CtxCompanyName] = ann.CompanyName
	}
	if !ann.DiscoveredAt.IsZero() {
		rep.Context[rerrors.CtxDetectedIn] = o.now().Sub(ann.DiscoveredAt).Round(100 * time.Millisecond).String()
	}
	o.report(rep)
}

func (o *Orchestrator) report(r rerrors.Report) {
	if o.deps.Reporter != nil {
		o.deps.Reporter.ReportError(r)
	}
}
