/*
Package extract downloads result attachments and turns them into structured
metrics by running an ordered chain of extraction strategies.
*/
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

// ErrNotApplicable is returned by a strategy that does not handle the
// document's format. The engine skips it without counting it as a failure.
var ErrNotApplicable = errors.New("strategy not applicable to document")

// Strategy locates metrics in a document. Implementations must not mutate
// the document or keep state between calls.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, doc *Document) (types.ExtractedMetrics, float64, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

const DefaultAcceptThreshold = 0.6

type Engine struct {
	fetcher    Fetcher
	strategies []Strategy
	threshold  float64
	log        zerolog.Logger
	now        func() time.Time
}

func NewEngine(fetcher Fetcher, strategies []Strategy, threshold float64, log zerolog.Logger) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAcceptThreshold
	}
	return &Engine{
		fetcher:    fetcher,
		strategies: strategies,
		threshold:  threshold,
		log:        log,
		now:        time.Now,
	}
}

func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Extract downloads the announcement's attachment and runs the strategy chain.
func (e *Engine) Extract(ctx context.Context, ann types.Announcement) (types.ExtractedMetrics, error) {
	start := e.now()

	doc, err := e.fetcher.Fetch(ctx, ann.AttachmentURL)
	if err != nil {
		kind := rerrors.DownloadFailed
		if ctx.Err() != nil {
			kind = rerrors.Timeout
		}
		return types.ExtractedMetrics{}, rerrors.New("download", kind, ann.Symbol, err)
	}
	doc.Hint = HintFor(ann)
	doc.ListingText = ann.AttachmentText

	m, err := e.run(ctx, doc, ann.Symbol)
	m.ExtractionTimeMs = e.now().Sub(start).Milliseconds()
	return m, err
}

// ExtractDocument runs the strategy chain over an already loaded document.
func (e *Engine) ExtractDocument(ctx context.Context, doc *Document) (types.ExtractedMetrics, error) {
	start := e.now()
	m, err := e.run(ctx, doc, doc.Hint.Symbol)
	m.ExtractionTimeMs = e.now().Sub(start).Milliseconds()
	return m, err
}

// run stops at the first strategy meeting the threshold, otherwise returns
// the best scoring partial. Ties keep the earlier strategy. On cancellation
// the best partial so far is returned alongside a Timeout error.
func (e *Engine) run(ctx context.Context, doc *Document, symbol string) (types.ExtractedMetrics, error) {
	var (
		best      types.ExtractedMetrics
		bestScore = -1.0
		found     bool
	)

	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}

		m, conf, err := attempt(ctx, s, doc)
		if err != nil {
			if !errors.Is(err, ErrNotApplicable) && ctx.Err() == nil {
				e.log.Debug().Err(err).Str("strategy", s.Name()).Str("symbol", symbol).Msg("strategy failed")
			}
			continue
		}
		if m.FieldCount() == 0 {
			continue
		}

		conf = clamp(conf)
		m.ExtractionMethod = s.Name()
		m.Confidence = conf
		if m.Symbol == "" {
			m.Symbol = symbol
		}
		e.log.Debug().Str("strategy", s.Name()).Float64("confidence", conf).Int("fields", m.FieldCount()).Msg("strategy result")

		if conf > bestScore {
			best, bestScore, found = m, conf, true
		}
		if conf >= e.threshold {
			return m, nil
		}
	}

	if err := ctx.Err(); err != nil {
		if !found {
			best = types.ExtractedMetrics{}
		}
		return best, rerrors.New("extract", rerrors.Timeout, symbol, err)
	}
	if !found {
		return types.ExtractedMetrics{}, rerrors.New("extract", rerrors.ExtractionFailed, symbol,
			fmt.Errorf("%w (%d strategies)", rerrors.ErrNoUsableFields, len(e.strategies)))
	}
	return best, nil
}

type attemptResult struct {
	m    types.ExtractedMetrics
	conf float64
	err  error
}

// attempt runs one strategy in its own goroutine and gives up on it when ctx
// is done, whether or not the strategy itself watches ctx. An abandoned
// strategy runs to completion in the background.
func attempt(ctx context.Context, s Strategy, doc *Document) (types.ExtractedMetrics, float64, error) {
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptResult{err: fmt.Errorf("strategy %s panicked: %v", s.Name(), p)}
			}
		}()
		m, conf, err := s.Attempt(ctx, doc)
		done <- attemptResult{m: m, conf: conf, err: err}
	}()

	select {
	case r := <-done:
		return r.m, r.conf, r.err
	case <-ctx.Done():
		return types.ExtractedMetrics{}, 0, ctx.Err()
	}
}

// LowConfidence reports whether m was returned below the acceptance threshold.
func (e *Engine) LowConfidence(m types.ExtractedMetrics) bool {
	return m.Confidence < e.threshold
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
