package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/shanehull/resultalert/internal/errors"
)

type recordingNotifier struct {
	mu       sync.Mutex
	failures []Failure
	err      error
}

func (r *recordingNotifier) NotifyFailure(_ context.Context, f Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
	return r.err
}

type countingReporter struct {
	mu sync.Mutex
	n  int
}

func (c *countingReporter) ReportError(rerrors.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func failedReport(kind rerrors.Kind) rerrors.Report {
	return rerrors.Report{
		Stage:  "extract",
		Symbol: "500325",
		Kind:   kind,
		Context: map[string]string{
			rerrors.CtxDescription:   "Un-audited Financial Results for the quarter ended 31st December, 2024",
			rerrors.CtxAttachmentURL: "https://www.bseindia.com/xml-data/corpfiling/AttachLive/a1b2.pdf",
			rerrors.CtxCompanyName:   "Reliance Industries Ltd",
			rerrors.CtxDetectedIn:    "3.2s",
		},
	}
}

func TestAlertReporterSendsOnlyTerminalDocumentFailures(t *testing.T) {
	next := &countingReporter{}
	n := &recordingNotifier{}
	rep := NewAlertReporter(next, n, zerolog.Nop())

	rep.ReportError(failedReport(rerrors.ExtractionFailed))
	rep.ReportError(failedReport(rerrors.DownloadFailed))
	rep.ReportError(failedReport(rerrors.Timeout))
	rep.ReportError(rerrors.Report{Stage: "analyze", Symbol: "TCS", Kind: rerrors.EstimateMissing})
	rep.Wait()

	assert.Equal(t, 4, next.n)
	require.Len(t, n.failures, 2)

	f := n.failures[0]
	assert.Equal(t, "500325", f.Symbol)
	assert.Equal(t, "Reliance Industries Ltd", f.CompanyName)
	assert.Equal(t, "https://www.bseindia.com/xml-data/corpfiling/AttachLive/a1b2.pdf", f.AttachmentURL)
	assert.Equal(t, 3200*time.Millisecond, f.DetectedIn)
}

func TestAlertReporterSwallowsNotifierErrors(t *testing.T) {
	next := &countingReporter{}
	rep := NewAlertReporter(next, &recordingNotifier{err: errors.New("429")}, zerolog.Nop())

	rep.ReportError(failedReport(rerrors.ExtractionFailed))
	rep.Wait()
	assert.Equal(t, 1, next.n)
}

func TestFormatFailure(t *testing.T) {
	f := FailureFromReport(failedReport(rerrors.ExtractionFailed))
	text := FormatFailure(f)

	assert.True(t, strings.HasPrefix(text, "<b>📊 Financial Results</b>"))
	assert.Contains(t, text, "<b>Reliance Industries Ltd (500325)</b>")
	assert.Contains(t, text, "<b>Subject:</b> Un-audited Financial Results")
	assert.Contains(t, text, "PDF extraction failed")
	assert.Contains(t, text, "Detected in 3.2s")

	f.Kind = rerrors.DownloadFailed
	f.CompanyName = ""
	f.Description = strings.Repeat("x", 300) + " <script>"
	text = FormatFailure(f)
	assert.Contains(t, text, "PDF download failed")
	assert.Contains(t, text, "<b>500325</b>")
	assert.Contains(t, text, strings.Repeat("x", 200)+"…")
	assert.NotContains(t, text, "<script>")
}

func TestFailureTitle(t *testing.T) {
	tests := map[string]string{
		"Transcript of Q3 earnings call":             "🎤 Earnings Call/Transcript",
		"Intimation of buyback of equity shares":     "🔔 Corporate Action",
		"Financial Results for the quarter ended":    "📊 Financial Results",
		"Outcome of Board Meeting":                   "📋 Announcement",
		"Analyst conference call on audited results": "🎤 Earnings Call/Transcript",
	}
	for desc, want := range tests {
		assert.Equal(t, want, failureTitle(desc), desc)
	}
}

func TestTelegramNotifyFailure(t *testing.T) {
	bot := &fakeBot{}
	tg, err := NewTelegramWith(bot, TelegramConfig{ChannelID: "@resultalerts"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tg.NotifyFailure(context.Background(), FailureFromReport(failedReport(rerrors.ExtractionFailed))))
	require.Len(t, bot.sent, 1)
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "Reliance Industries Ltd (500325)")

	markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "https://www.bseindia.com/xml-data/corpfiling/AttachLive/a1b2.pdf", *markup.InlineKeyboard[0][1].URL)
	require.Len(t, markup.InlineKeyboard[1], 1, "no kite link for scrip codes")
	assert.Equal(t, "https://www.screener.in/company/500325/", *markup.InlineKeyboard[1][0].URL)
	assert.Empty(t, bot.requests)
}
