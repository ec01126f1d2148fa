/*
Package notify delivers analysis results: console output, HTML email and a
Telegram channel. It also hosts the log-backed error reporter.
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

// Sink receives one finished result.
type Sink interface {
	Emit(ctx context.Context, r types.AnalysisResult) error
}

// Multi fans a result out to every sink concurrently. One failing sink does
// not stop the others; their errors are joined.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Multi{sinks: live}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Emit(ctx context.Context, r types.AnalysisResult) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := s.Emit(ctx, r); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%T: %w", s, err))
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Console prints each result as a block of text.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Emit(_ context.Context, r types.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprint(c.out, RenderConsole(r))
	return err
}

func RenderConsole(r types.AnalysisResult) string {
	m := r.Metrics
	var sb strings.Builder

	sb.WriteString("\n===========================================\n")
	sb.WriteString(fmt.Sprintf("%s %s Q%d FY%d RESULTS\n", r.Sentiment.Emoji(), displayName(r), r.Quarter, r.FiscalYear))
	sb.WriteString("===========================================\n")
	sb.WriteString(fmt.Sprintf("Revenue:  %s %s\n", formatCrore(m.Revenue), formatGrowth(r.YoYRevenueGrowth)))
	sb.WriteString(fmt.Sprintf("Profit:   %s %s\n", formatCrore(m.ProfitAfterTax), formatGrowth(r.YoYProfitGrowth)))
	sb.WriteString(fmt.Sprintf("EPS:      %s\n", formatRupees(m.EPS)))
	if r.QoQRevenueGrowth != nil || r.QoQProfitGrowth != nil {
		sb.WriteString(fmt.Sprintf("QoQ:      revenue %s, profit %s\n", formatPct(r.QoQRevenueGrowth), formatPct(r.QoQProfitGrowth)))
	}
	for _, b := range beats(r) {
		sb.WriteString(fmt.Sprintf("vs Est:   %s %s\n", b.Label, b.Value))
	}
	sb.WriteString(fmt.Sprintf("Sentiment: %s (%.2f)\n", r.Sentiment, r.SentimentScore))
	sb.WriteString(fmt.Sprintf("Action:   %s\n", r.ActionText))
	if r.Announcement.AttachmentURL != "" {
		sb.WriteString(fmt.Sprintf("URL:      %s\n", r.Announcement.AttachmentURL))
	}
	sb.WriteString(fmt.Sprintf("Method:   %s (confidence %.2f)%s\n", m.ExtractionMethod, m.Confidence, flags(r)))
	sb.WriteString(fmt.Sprintf("Detected in %.1fs\n", r.DetectionTimeSec))
	return sb.String()
}

func flags(r types.AnalysisResult) string {
	var f []string
	if r.LowConfidence {
		f = append(f, "low confidence")
	}
	if r.Partial {
		f = append(f, "partial")
	}
	if len(f) == 0 {
		return ""
	}
	return " [" + strings.Join(f, ", ") + "]"
}

// LogReporter is the error-reporting boundary backed by the structured log.
// It never blocks.
type LogReporter struct {
	log zerolog.Logger
}

func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (l *LogReporter) ReportError(r rerrors.Report) {
	ev := l.log.Warn()
	if r.Kind.Terminal() {
		ev = l.log.Error()
	}
	ev = ev.Str("stage", r.Stage).Str("kind", string(r.Kind))
	if r.Symbol != "" {
		ev = ev.Str("symbol", r.Symbol)
	}
	for k, v := range r.Context {
		ev = ev.Str(k, v)
	}
	ev.Msg(r.Message)
}
