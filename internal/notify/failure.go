package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

const subjectLimit = 200

// Failure is a filing the pipeline detected but could not turn into an
// analysed result.
type Failure struct {
	Kind          rerrors.Kind
	Symbol        string
	CompanyName   string
	Description   string
	AttachmentURL string
	DetectedIn    time.Duration
}

// FailureFromReport reads the announcement details a failed run puts in the
// report context.
func FailureFromReport(r rerrors.Report) Failure {
	f := Failure{
		Kind:          r.Kind,
		Symbol:        r.Symbol,
		CompanyName:   r.Context[rerrors.CtxCompanyName],
		Description:   r.Context[rerrors.CtxDescription],
		AttachmentURL: r.Context[rerrors.CtxAttachmentURL],
	}
	if d, err := time.ParseDuration(r.Context[rerrors.CtxDetectedIn]); err == nil {
		f.DetectedIn = d
	}
	return f
}

// FailureNotifier delivers the minimal alert for a failed filing.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, f Failure) error
}

// AlertReporter passes every report on to next. Filings that failed to
// download or extract also go out as a minimal alert linking the document.
type AlertReporter struct {
	next     rerrors.Reporter
	notifier FailureNotifier
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
}

func NewAlertReporter(next rerrors.Reporter, notifier FailureNotifier, log zerolog.Logger) *AlertReporter {
	return &AlertReporter{next: next, notifier: notifier, timeout: 30 * time.Second, log: log}
}

// ReportError never blocks on the notifier; alerts are sent in the
// background.
func (a *AlertReporter) ReportError(r rerrors.Report) {
	if a.next != nil {
		a.next.ReportError(r)
	}
	if a.notifier == nil || !alertable(r.Kind) {
		return
	}

	f := FailureFromReport(r)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.notifier.NotifyFailure(ctx, f); err != nil {
			a.log.Warn().Err(err).Str("symbol", f.Symbol).Str("kind", string(f.Kind)).Msg("failed to send failure alert")
		}
	}()
}

// Wait blocks until every alert in flight has been sent.
func (a *AlertReporter) Wait() {
	a.wg.Wait()
}

func alertable(k rerrors.Kind) bool {
	return k == rerrors.ExtractionFailed || k == rerrors.DownloadFailed
}

// failureTitle classifies the filing from its description.
func failureTitle(desc string) string {
	d := strings.ToLower(desc)
	switch {
	case containsAny(d, "earning", "transcript", "conference"):
		return "🎤 Earnings Call/Transcript"
	case containsAny(d, "acquisition", "merger", "buyback"):
		return "🔔 Corporate Action"
	case containsAny(d, "result", "financial"):
		return "📊 Financial Results"
	}
	return "📋 Announcement"
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// FormatFailure renders the minimal alert in Telegram's HTML subset.
func FormatFailure(f Failure) string {
	name := types.Announcement{Symbol: f.Symbol, CompanyName: f.CompanyName}.DisplayName()
	reason := "PDF extraction failed"
	if f.Kind == rerrors.DownloadFailed {
		reason = "PDF download failed"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s</b>\n\n", failureTitle(f.Description)))
	sb.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(name)))
	if f.Description != "" {
		sb.WriteString(fmt.Sprintf("<b>Subject:</b> %s\n", html.EscapeString(truncate(f.Description, subjectLimit))))
	}
	sb.WriteString(fmt.Sprintf("\n⚠️ <i>Note: %s, open the filing for the figures</i>\n", reason))
	sb.WriteString(fmt.Sprintf("⏱️ Detected in %.1fs", f.DetectedIn.Seconds()))
	return sb.String()
}

// NotifyFailure sends the minimal alert with the chart and filing links.
func (t *Telegram) NotifyFailure(_ context.Context, f Failure) error {
	msg := t.message(FormatFailure(f))
	msg.ReplyMarkup = links(f.Symbol, f.AttachmentURL)

	sent, err := t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send telegram failure alert for %s: %w", f.Symbol, err)
	}
	t.log.Info().Str("symbol", f.Symbol).Str("kind", string(f.Kind)).Int("message_id", sent.MessageID).Msg("sent telegram failure alert")
	return nil
}
