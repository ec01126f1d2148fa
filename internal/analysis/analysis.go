/*
Package analysis compares extracted metrics with prior periods and analyst
estimates and classifies the result into a sentiment band.
*/
package analysis

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Bands are the lower edges (exclusive) of each sentiment category. A score
// at or below Negative is strong_negative.
type Bands struct {
	StrongPositive float64 `mapstructure:"strong_positive"`
	Positive       float64 `mapstructure:"positive"`
	Neutral        float64 `mapstructure:"neutral"`
	Negative       float64 `mapstructure:"negative"`
}

type Weights struct {
	Profit  float64 `mapstructure:"profit"`
	Revenue float64 `mapstructure:"revenue"`
	EPS     float64 `mapstructure:"eps"`
}

type Config struct {
	Bands   Bands   `mapstructure:"bands"`
	Weights Weights `mapstructure:"weights"`
	// YoY profit growth above StrongGrowth or below Decline is called out in
	// the action text.
	StrongGrowth float64 `mapstructure:"strong_growth"`
	Decline      float64 `mapstructure:"decline"`
}

func DefaultConfig() Config {
	return Config{
		Bands:        Bands{StrongPositive: 10, Positive: 2, Neutral: -2, Negative: -10},
		Weights:      Weights{Profit: 0.5, Revenue: 0.3, EPS: 0.2},
		StrongGrowth: 20,
		Decline:      -10,
	}
}

// Validate checks that the band edges are strictly decreasing and the
// weights are usable.
func (c Config) Validate() error {
	b := c.Bands
	if !(b.StrongPositive > b.Positive && b.Positive > b.Neutral && b.Neutral > b.Negative) {
		return fmt.Errorf("%w: sentiment bands must be strictly decreasing, got %+v", rerrors.ErrConfigInvalid, b)
	}
	w := c.Weights
	if w.Profit < 0 || w.Revenue < 0 || w.EPS < 0 || w.Profit+w.Revenue+w.EPS == 0 {
		return fmt.Errorf("%w: sentiment weights must be non-negative and not all zero, got %+v", rerrors.ErrConfigInvalid, w)
	}
	return nil
}

type Engine struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log, now: time.Now}
}

// Analyze builds the result for one announcement. prior and est may be nil;
// the fields depending on them are then left nil and everything else is
// still computed.
func (e *Engine) Analyze(m types.ExtractedMetrics, prior *types.PriorPeriodActuals, est *types.Estimate, discoveredAt time.Time) types.AnalysisResult {
	r := types.AnalysisResult{
		Symbol:     m.Symbol,
		Quarter:    m.Quarter,
		FiscalYear: m.FiscalYear,
		Metrics:    m,
	}

	if prior != nil {
		r.YoYRevenueGrowth = Growth(m.Revenue, prior.RevenuePrevYear)
		r.YoYProfitGrowth = Growth(m.ProfitAfterTax, prior.ProfitPrevYear)
		r.QoQRevenueGrowth = Growth(m.Revenue, prior.RevenuePrevQuarter)
		r.QoQProfitGrowth = Growth(m.ProfitAfterTax, prior.ProfitPrevQuarter)
	}

	if est != nil {
		r.HasEstimate = true
		r.RevenueBeatPct = Beat(m.Revenue, est.RevenueEst)
		r.ProfitBeatPct = Beat(m.ProfitAfterTax, est.ProfitEst)
		r.EPSBeatPct = Beat(m.EPS, est.EPSEst)
	}

	r.SentimentScore = e.Score(r)
	r.Sentiment = e.Classify(r.SentimentScore)
	r.ActionText = e.ActionText(r)

	r.AnalyzedAt = e.now()
	if !discoveredAt.IsZero() {
		r.DetectionTimeSec = r.AnalyzedAt.Sub(discoveredAt).Seconds()
	}

	e.log.Debug().
		Str("symbol", r.Symbol).
		Str("sentiment", string(r.Sentiment)).
		Float64("score", r.SentimentScore).
		Msg("analysis complete")
	return r
}

// Growth is (current - prior) / |prior| * 100, rounded to two places. It is
// nil when either side is missing or prior is zero.
func Growth(current, prior decimal.NullDecimal) *float64 {
	if !current.Valid || !prior.Valid || prior.Decimal.IsZero() {
		return nil
	}
	g := current.Decimal.Sub(prior.Decimal).
		DivRound(prior.Decimal.Abs(), 8).
		Mul(hundred).
		Round(2).
		InexactFloat64()
	return &g
}

// Beat is the percentage by which actual exceeds the estimate. Same rules as
// Growth.
func Beat(actual, estimate decimal.NullDecimal) *float64 {
	return Growth(actual, estimate)
}

// Score is the weighted mean of the available beat percentages. Without any
// beat it falls back to YoY profit growth, then to zero.
func (e *Engine) Score(r types.AnalysisResult) float64 {
	w := e.cfg.Weights
	var score, total float64
	for _, p := range []struct {
		v *float64
		w float64
	}{
		{r.ProfitBeatPct, w.Profit},
		{r.RevenueBeatPct, w.Revenue},
		{r.EPSBeatPct, w.EPS},
	} {
		if p.v == nil || p.w <= 0 {
			continue
		}
		score += *p.v * p.w
		total += p.w
	}
	if total > 0 {
		return score / total
	}
	if r.YoYProfitGrowth != nil {
		return *r.YoYProfitGrowth
	}
	return 0
}

// Classify maps a score onto the configured bands. It is total and
// monotonically non-decreasing in score.
func (e *Engine) Classify(score float64) types.Sentiment {
	b := e.cfg.Bands
	switch {
	case score > b.StrongPositive:
		return types.StrongPositive
	case score > b.Positive:
		return types.Positive
	case score > b.Neutral:
		return types.Neutral
	case score > b.Negative:
		return types.Negative
	}
	return types.StrongNegative
}

var actionTexts = map[types.Sentiment]string{
	types.StrongPositive: "STRONG performance - Major beat across metrics!",
	types.Positive:       "Positive results - Above expectations",
	types.Neutral:        "Mixed results - In-line with expectations",
	types.Negative:       "Weak results - Below expectations",
	types.StrongNegative: "Poor performance - Significant miss",
}

func (e *Engine) ActionText(r types.AnalysisResult) string {
	text := r.Sentiment.Emoji() + " " + actionTexts[r.Sentiment]
	if g := r.YoYProfitGrowth; g != nil {
		switch {
		case *g > e.cfg.StrongGrowth:
			text += fmt.Sprintf(" | Strong YoY growth: %+.1f%%", *g)
		case *g < e.cfg.Decline:
			text += fmt.Sprintf(" | YoY decline: %+.1f%%", *g)
		}
	}
	return text
}

// Missing lists the informational kinds that apply to a finished result:
// EstimateMissing when no estimate was found and AnalysisInputMissing when
// no growth figure could be computed.
func Missing(r types.AnalysisResult) []rerrors.Kind {
	var kinds []rerrors.Kind
	if !r.HasEstimate {
		kinds = append(kinds, rerrors.EstimateMissing)
	}
	if r.YoYRevenueGrowth == nil && r.YoYProfitGrowth == nil && r.QoQRevenueGrowth == nil && r.QoQProfitGrowth == nil {
		kinds = append(kinds, rerrors.AnalysisInputMissing)
	}
	return kinds
}

// PriorFromDocument returns the comparison columns printed in the filing
// itself, or nil when there are none.
func PriorFromDocument(m types.ExtractedMetrics) *types.PriorPeriodActuals {
	p := types.PriorPeriodActuals{
		RevenuePrevQuarter: m.RevenuePrevQuarter,
		ProfitPrevQuarter:  m.ProfitPrevQuarter,
		RevenuePrevYear:    m.RevenuePrevYear,
		ProfitPrevYear:     m.ProfitPrevYear,
	}
	if !p.RevenuePrevQuarter.Valid && !p.ProfitPrevQuarter.Valid && !p.RevenuePrevYear.Valid && !p.ProfitPrevYear.Valid {
		return nil
	}
	return &p
}

// MergePrior fills the gaps in stored actuals from the document's own
// comparison columns. Stored values win.
func MergePrior(stored, doc *types.PriorPeriodActuals) *types.PriorPeriodActuals {
	switch {
	case stored == nil:
		return doc
	case doc == nil:
		return stored
	}
	out := *stored
	fill := func(dst *decimal.NullDecimal, src decimal.NullDecimal) {
		if !dst.Valid {
			*dst = src
		}
	}
	fill(&out.RevenuePrevQuarter, doc.RevenuePrevQuarter)
	fill(&out.ProfitPrevQuarter, doc.ProfitPrevQuarter)
	fill(&out.RevenuePrevYear, doc.RevenuePrevYear)
	fill(&out.ProfitPrevYear, doc.ProfitPrevYear)
	return &out
}
