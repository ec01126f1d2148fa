package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shanehull/resultalert/internal/types"
)

// displayName is the result's symbol, prefixed with the company name when the
// announcement carries one.
func displayName(r types.AnalysisResult) string {
	a := r.Announcement
	a.Symbol = r.Symbol
	return a.DisplayName()
}

// formatCrore renders an amount in crore with Indian digit grouping,
// e.g. ₹2,45,000 Cr.
func formatCrore(d decimal.NullDecimal) string {
	if !d.Valid {
		return "N/A"
	}
	return "₹" + indianGrouping(d.Decimal.Round(0).IntPart()) + " Cr"
}

func formatRupees(d decimal.NullDecimal) string {
	if !d.Valid {
		return "N/A"
	}
	return "₹" + d.Decimal.StringFixed(2)
}

func formatPct(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("%+.1f%%", *p)
}

// formatGrowth is the bracketed YoY suffix, empty when unknown.
func formatGrowth(p *float64) string {
	if p == nil {
		return ""
	}
	return "(" + formatPct(p) + " YoY)"
}

func indianGrouping(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := fmt.Sprint(n)
	if len(s) <= 3 {
		return sign + s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return sign + strings.Join(parts, ",") + "," + tail
}

type beatLine struct {
	Label string
	Value string
	Beat  bool
}

func beats(r types.AnalysisResult) []beatLine {
	var out []beatLine
	add := func(label string, p *float64) {
		if p == nil {
			return
		}
		icon := "🔴"
		if *p > 0 {
			icon = "🟢"
		}
		out = append(out, beatLine{Label: label, Value: formatPct(p) + " " + icon, Beat: *p > 0})
	}
	add("Revenue", r.RevenueBeatPct)
	add("Profit", r.ProfitBeatPct)
	add("EPS", r.EPSBeatPct)
	return out
}
