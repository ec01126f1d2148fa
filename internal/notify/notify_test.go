package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

func pct(v float64) *float64 { return &v }

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func relianceResult() types.AnalysisResult {
	return types.AnalysisResult{
		Symbol:           "RELIANCE",
		Quarter:          3,
		FiscalYear:       2025,
		YoYRevenueGrowth: pct(16.67),
		YoYProfitGrowth:  pct(23.6),
		QoQRevenueGrowth: pct(2.94),
		RevenueBeatPct:   pct(2.51),
		ProfitBeatPct:    pct(-1.2),
		Sentiment:        types.StrongPositive,
		SentimentScore:   12.4,
		DetectionTimeSec: 4.27,
		ActionText:       "Strong beat, watch for gap up. Strong growth: +23.6% YoY",
		Metrics: types.ExtractedMetrics{
			Symbol:           "RELIANCE",
			Quarter:          3,
			FiscalYear:       2025,
			Revenue:          amount("245000"),
			ProfitAfterTax:   amount("18540"),
			EPS:              amount("13.7"),
			ExtractionMethod: "pdf-layout",
			Confidence:       1,
		},
		Announcement: types.Announcement{Symbol: "RELIANCE", AttachmentURL: "https://example.com/r.pdf"},
		AnalyzedAt:   time.Now(),
	}
}

func TestIndianGrouping(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		18540:    "18,540",
		245000:   "2,45,000",
		12345678: "1,23,45,678",
		-1234567: "-12,34,567",
	}
	for in, want := range tests {
		assert.Equal(t, want, indianGrouping(in), in)
	}
}

func TestRenderConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsole(&buf).Emit(context.Background(), relianceResult()))

	out := buf.String()
	assert.Contains(t, out, "RELIANCE Q3 FY2025 RESULTS")
	assert.Contains(t, out, "₹2,45,000 Cr (+16.7% YoY)")
	assert.Contains(t, out, "Revenue +2.5% 🟢")
	assert.Contains(t, out, "Profit -1.2% 🔴")
	assert.Contains(t, out, "Detected in 4.3s")
	assert.NotContains(t, out, "low confidence")
}

func TestRenderEmail(t *testing.T) {
	r := relianceResult()
	r.LowConfidence = true
	msg, err := NewHTMLEmailRenderer().Render(r)
	require.NoError(t, err)

	assert.Contains(t, msg.Subject, "RELIANCE Q3 FY2025 results: strong_positive")
	assert.Contains(t, msg.HTML, "₹18,540 Cr")
	assert.Contains(t, msg.HTML, `class="beat"`)
	assert.Contains(t, msg.HTML, `class="miss"`)
	assert.Contains(t, msg.HTML, "https://example.com/r.pdf")
	assert.Contains(t, msg.Text, "VS ESTIMATES")
	assert.Contains(t, msg.Text, "[low confidence]")
}

func TestRenderEmailWithoutEstimates(t *testing.T) {
	r := relianceResult()
	r.RevenueBeatPct, r.ProfitBeatPct = nil, nil
	msg, err := NewHTMLEmailRenderer().Render(r)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "vs estimates")
	assert.NotContains(t, msg.Text, "VS ESTIMATES")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailSink(t *testing.T) {
	d := &fakeDialer{}
	sink := NewEmailSink(EmailConfig{Enabled: true, FromEmail: "alerts@example.com", ToEmail: "me@example.com"}, zerolog.Nop())
	sink.sender.dialer = d

	require.NoError(t, sink.Emit(context.Background(), relianceResult()))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"me@example.com"}, d.sent[0].GetHeader("To"))

	d.err = errors.New("smtp down")
	assert.Error(t, sink.Emit(context.Background(), relianceResult()))

	disabled := NewEmailSink(EmailConfig{}, zerolog.Nop())
	disabled.sender.dialer = d
	require.NoError(t, disabled.Emit(context.Background(), relianceResult()))
	assert.Len(t, d.sent, 2)
}

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 42}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestTelegramSendsAndPins(t *testing.T) {
	bot := &fakeBot{}
	tg, err := NewTelegramWith(bot, TelegramConfig{ChannelID: "@resultalerts", PinStrong: true}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tg.Emit(context.Background(), relianceResult()))
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "@resultalerts", msg.ChannelUsername)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.True(t, strings.HasPrefix(msg.Text, "🚀 <b>RELIANCE Q3 FY2025 Results</b>"))

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "https://www.screener.in/company/RELIANCE/", *markup.InlineKeyboard[1][0].URL)

	require.Len(t, bot.requests, 1)
	pin, ok := bot.requests[0].(tgbotapi.PinChatMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 42, pin.MessageID)
}

func TestTelegramDoesNotPinOrdinaryResults(t *testing.T) {
	bot := &fakeBot{}
	tg, err := NewTelegramWith(bot, TelegramConfig{ChannelID: "-100123", PinStrong: true}, zerolog.Nop())
	require.NoError(t, err)

	r := relianceResult()
	r.Sentiment = types.Positive
	require.NoError(t, tg.Emit(context.Background(), r))
	assert.Empty(t, bot.requests)
	assert.Equal(t, int64(-100123), bot.sent[0].(tgbotapi.MessageConfig).ChatID)
}

func TestTelegramErrors(t *testing.T) {
	_, err := NewTelegramWith(&fakeBot{}, TelegramConfig{ChannelID: "resultalerts"}, zerolog.Nop())
	assert.Error(t, err)

	tg, err := NewTelegramWith(&fakeBot{err: errors.New("429")}, TelegramConfig{ChannelID: "1"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, tg.Emit(context.Background(), relianceResult()))
}

func TestButtonsRelativeAttachment(t *testing.T) {
	r := relianceResult()
	r.Announcement.AttachmentURL = "/corporate/r.pdf"
	kb := Buttons(r)
	assert.Equal(t, "https://www.nseindia.com/corporate/r.pdf", *kb.InlineKeyboard[0][1].URL)
}

type countingSink struct {
	mu  sync.Mutex
	n   int
	err error
}

func (c *countingSink) Emit(context.Context, types.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.err
}

func TestMultiFansOut(t *testing.T) {
	ok := &countingSink{}
	bad := &countingSink{err: errors.New("boom")}
	m := NewMulti(ok, nil, bad)
	assert.Equal(t, 2, m.Len())

	err := m.Emit(context.Background(), relianceResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, ok.n)
	assert.Equal(t, 1, bad.n)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	rep := NewLogReporter(zerolog.New(&buf))

	rep.ReportError(rerrors.Report{Stage: "extract", Symbol: "TCS", Kind: rerrors.ExtractionFailed, Message: "no fields", Context: map[string]string{"trace_id": "abc"}})
	rep.ReportError(rerrors.Report{Stage: "analyze", Kind: rerrors.EstimateMissing})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"error"`)
	assert.Contains(t, lines[0], `"trace_id":"abc"`)
	assert.Contains(t, lines[1], `"level":"warn"`)
}

func TestCompanyNameInHeaders(t *testing.T) {
	r := relianceResult()
	r.Symbol = "500325"
	r.Announcement.Symbol = "500325"
	r.Announcement.CompanyName = "Reliance Industries Ltd"

	assert.True(t, strings.HasPrefix(FormatTelegram(r), "🚀 <b>Reliance Industries Ltd (500325) Q3 FY2025 Results</b>"))
	assert.Contains(t, RenderConsole(r), "Reliance Industries Ltd (500325) Q3 FY2025 RESULTS")

	msg, err := NewHTMLEmailRenderer().Render(r)
	require.NoError(t, err)
	assert.Contains(t, msg.Subject, "Reliance Industries Ltd (500325)")
	assert.Contains(t, msg.HTML, "Reliance Industries Ltd (500325)")
}

func TestButtonsForScripCode(t *testing.T) {
	r := relianceResult()
	r.Symbol = "500325"
	kb := Buttons(r)

	assert.Equal(t, "https://www.bseindia.com/stock-share-price/x/x/500325/", *kb.InlineKeyboard[0][0].URL)
	require.Len(t, kb.InlineKeyboard[1], 1)
	assert.Equal(t, "https://www.screener.in/company/500325/", *kb.InlineKeyboard[1][0].URL)

	nse := Buttons(relianceResult())
	assert.Equal(t, "https://www.tradingview.com/chart/?symbol=NSE:RELIANCE", *nse.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://kite.zerodha.com/chart/NSE/RELIANCE", *nse.InlineKeyboard[1][1].URL)
}
