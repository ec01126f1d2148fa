package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shanehull/resultalert/internal/types"
)

// NotificationData is what the email template sees.
type NotificationData struct {
	Result  types.AnalysisResult
	Name    string
	Revenue string
	Profit  string
	EPS     string
	YoY     []metricLine
	QoQ     []metricLine
	Beats   []beatLine
	Flags   string
}

type metricLine struct {
	Label string
	Value string
}

type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

func newNotificationData(r types.AnalysisResult) NotificationData {
	return NotificationData{
		Result:  r,
		Name:    displayName(r),
		Revenue: formatCrore(r.Metrics.Revenue),
		Profit:  formatCrore(r.Metrics.ProfitAfterTax),
		EPS:     formatRupees(r.Metrics.EPS),
		YoY:     growthLines(r.YoYRevenueGrowth, r.YoYProfitGrowth),
		QoQ:     growthLines(r.QoQRevenueGrowth, r.QoQProfitGrowth),
		Beats:   beats(r),
		Flags:   strings.TrimSpace(flags(r)),
	}
}

func growthLines(revenue, profit *float64) []metricLine {
	var out []metricLine
	if revenue != nil {
		out = append(out, metricLine{"Revenue", formatPct(revenue)})
	}
	if profit != nil {
		out = append(out, metricLine{"Profit", formatPct(profit)})
	}
	return out
}

// HTMLEmailRenderer renders results as HTML emails with a plain text fallback.
type HTMLEmailRenderer struct {
	tmpl *template.Template
}

func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("email").Parse(emailHTMLTemplate))
	return &HTMLEmailRenderer{tmpl: t}
}

func (r *HTMLEmailRenderer) Render(res types.AnalysisResult) (*RenderedMessage, error) {
	data := newNotificationData(res)
	subject := fmt.Sprintf("%s %s Q%d FY%d results: %s", res.Sentiment.Emoji(), displayName(res), res.Quarter, res.FiscalYear, res.Sentiment)

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: subject,
		Text:    renderPlainText(data),
		HTML:    htmlBuf.String(),
	}, nil
}

// renderPlainText is the alternative part for clients without HTML.
func renderPlainText(data NotificationData) string {
	r := data.Result
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s Q%d FY%d Results\n", data.Name, r.Quarter, r.FiscalYear))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Revenue: %s\n", data.Revenue))
	sb.WriteString(fmt.Sprintf("Profit:  %s\n", data.Profit))
	sb.WriteString(fmt.Sprintf("EPS:     %s\n\n", data.EPS))

	section := func(title string, lines []metricLine) {
		if len(lines) == 0 {
			return
		}
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, l := range lines {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", l.Label, l.Value))
		}
		sb.WriteString("\n")
	}
	section("YEAR ON YEAR", data.YoY)
	section("QUARTER ON QUARTER", data.QoQ)

	if len(data.Beats) > 0 {
		sb.WriteString("VS ESTIMATES\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, b := range data.Beats {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", b.Label, b.Value))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Action: %s\n", r.ActionText))
	if r.Announcement.AttachmentURL != "" {
		sb.WriteString(fmt.Sprintf("URL: %s\n", r.Announcement.AttachmentURL))
	}
	if data.Flags != "" {
		sb.WriteString(data.Flags + "\n")
	}
	sb.WriteString(fmt.Sprintf("Detected in %.1fs\n", r.DetectionTimeSec))
	return sb.String()
}
