/*
Package types holds the records that flow through the detection pipeline:
announcements, extracted metrics, estimates, prior actuals and analysis results.
*/
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Announcement is a normalized upstream listing entry. It is immutable once
// created; Identity is derived from the description and date at creation.
type Announcement struct {
	Source         string    `json:"source" validate:"required"`
	Symbol         string    `json:"symbol" validate:"required,max=32"`
	Date           time.Time `json:"date"`
	Description    string    `json:"description"`
	AttachmentURL  string    `json:"attachment_url" validate:"required,url"`
	AttachmentText string    `json:"-"`
	// CompanyName is the listed company's name when the source or the
	// resolver knows it. BSE symbols are numeric scrip codes.
	CompanyName  string      `json:"company_name,omitempty"`
	DiscoveredAt time.Time   `json:"timestamp" validate:"required"`
	Identity     IdentityKey `json:"-"`
}

// DisplayName is "Name (SYMBOL)" when the company name is known, else the
// symbol.
func (a Announcement) DisplayName() string {
	if a.CompanyName == "" || a.CompanyName == a.Symbol {
		return a.Symbol
	}
	return a.CompanyName + " (" + a.Symbol + ")"
}

// IsScripCode reports whether symbol is a numeric BSE scrip code rather
// than an NSE ticker.
func IsScripCode(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, c := range symbol {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type IdentityKey struct {
	Symbol     string
	Quarter    int
	FiscalYear int
}

// Suffix is the period part of the dedup key, e.g. "Q3FY2025".
func (k IdentityKey) Suffix() string {
	return fmt.Sprintf("Q%dFY%d", k.Quarter, k.FiscalYear)
}

func (k IdentityKey) String() string {
	return k.Symbol + ":" + k.Suffix()
}

type AnnouncementType string

const (
	QuarterlyResult AnnouncementType = "QUARTERLY_RESULT"
	EarningsCall    AnnouncementType = "EARNINGS_CALL"
	CorporateAction AnnouncementType = "CORPORATE_ACTION"
	NewsArticle     AnnouncementType = "NEWS"
	OtherType       AnnouncementType = "OTHER"
)

// ExtractedMetrics holds amounts in crore (EPS in rupees). Any amount may be
// null when the document did not yield it.
type ExtractedMetrics struct {
	Symbol         string              `json:"symbol" validate:"required"`
	Quarter        int                 `json:"quarter" validate:"min=1,max=4"`
	FiscalYear     int                 `json:"fiscal_year" validate:"min=1990,max=2100"`
	Revenue        decimal.NullDecimal `json:"revenue"`
	ProfitAfterTax decimal.NullDecimal `json:"profit_after_tax"`
	EPS            decimal.NullDecimal `json:"eps"`
	EBITDA         decimal.NullDecimal `json:"ebitda"`
	// Comparison columns printed in the same document, when present.
	RevenuePrevQuarter decimal.NullDecimal `json:"revenue_prev_quarter"`
	ProfitPrevQuarter  decimal.NullDecimal `json:"profit_prev_quarter"`
	RevenuePrevYear    decimal.NullDecimal `json:"revenue_prev_year"`
	ProfitPrevYear     decimal.NullDecimal `json:"profit_prev_year"`
	ExtractionMethod   string              `json:"extraction_method"`
	Confidence         float64             `json:"confidence" validate:"gte=0,lte=1"`
	ExtractionTimeMs   int64               `json:"extraction_time_ms" validate:"gte=0"`
}

// FieldCount counts the headline fields that were found.
func (m ExtractedMetrics) FieldCount() int {
	n := 0
	for _, v := range []decimal.NullDecimal{m.Revenue, m.ProfitAfterTax, m.EPS, m.EBITDA} {
		if v.Valid {
			n++
		}
	}
	return n
}

type Estimate struct {
	Symbol          string              `json:"symbol"`
	Quarter         int                 `json:"quarter"`
	FiscalYear      int                 `json:"fiscal_year"`
	RevenueEst      decimal.NullDecimal `json:"revenue_est"`
	ProfitEst       decimal.NullDecimal `json:"profit_est"`
	EPSEst          decimal.NullDecimal `json:"eps_est"`
	ConfidenceScore float64             `json:"confidence_score"`
}

type PriorPeriodActuals struct {
	RevenuePrevQuarter decimal.NullDecimal `json:"revenue_prev_quarter"`
	ProfitPrevQuarter  decimal.NullDecimal `json:"profit_prev_quarter"`
	RevenuePrevYear    decimal.NullDecimal `json:"revenue_prev_year"`
	ProfitPrevYear     decimal.NullDecimal `json:"profit_prev_year"`
}

type Sentiment string

const (
	StrongPositive Sentiment = "strong_positive"
	Positive       Sentiment = "positive"
	Neutral        Sentiment = "neutral"
	Negative       Sentiment = "negative"
	StrongNegative Sentiment = "strong_negative"
)

// Rank orders sentiments from strong_negative (0) to strong_positive (4).
func (s Sentiment) Rank() int {
	switch s {
	case StrongNegative:
		return 0
	case Negative:
		return 1
	case Neutral:
		return 2
	case Positive:
		return 3
	case StrongPositive:
		return 4
	}
	return -1
}

func (s Sentiment) Emoji() string {
	switch s {
	case StrongPositive:
		return "🚀"
	case Positive:
		return "✅"
	case Neutral:
		return "➡️"
	case Negative:
		return "⚠️"
	case StrongNegative:
		return "🔴"
	}
	return ""
}

// AnalysisResult is the terminal artifact of one announcement's run. Growth
// and beat percentages are nil when they could not be computed.
type AnalysisResult struct {
	Symbol           string    `json:"symbol"`
	Quarter          int       `json:"quarter"`
	FiscalYear       int       `json:"fiscal_year"`
	YoYRevenueGrowth *float64  `json:"yoy_revenue_growth"`
	YoYProfitGrowth  *float64  `json:"yoy_profit_growth"`
	QoQRevenueGrowth *float64  `json:"qoq_revenue_growth"`
	QoQProfitGrowth  *float64  `json:"qoq_profit_growth"`
	RevenueBeatPct   *float64  `json:"revenue_beat_pct"`
	ProfitBeatPct    *float64  `json:"profit_beat_pct"`
	EPSBeatPct       *float64  `json:"eps_beat_pct"`
	Sentiment        Sentiment `json:"sentiment"`
	SentimentScore   float64   `json:"sentiment_score"`
	DetectionTimeSec float64   `json:"detection_time_sec"`

	ActionText    string           `json:"action_text"`
	LowConfidence bool             `json:"low_confidence"`
	Partial       bool             `json:"partial"`
	HasEstimate   bool             `json:"has_estimate"`
	Metrics       ExtractedMetrics `json:"metrics"`
	Announcement  Announcement     `json:"announcement"`
	AnalyzedAt    time.Time        `json:"analyzed_at"`
}
