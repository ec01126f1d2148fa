package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shanehull/resultalert/internal/period"
	"github.com/shanehull/resultalert/internal/types"
)

// Hint carries what is already known about a document before parsing it.
type Hint struct {
	Symbol     string
	Quarter    int
	FiscalYear int
	Reference  time.Time
}

const (
	// Indian grouping (1,23,456.78) or plain digits.
	number = `(-?\d{1,3}(?:,\d{2,3})+(?:\.\d{1,2})?|-?\d+(?:\.\d{1,2})?)`
	// Keeps "Q3" or "FY25" from being read as an amount.
	standalone = `(?:^|[^\w,])`
)

var (
	inlineRevenue = regexp.MustCompile(`(?i)(?:total\s+)?(?:income|revenue)(?:\s+from\s+operations)?.*?` + standalone + number + `\s*(crores?|cr\b|lakhs?|lacs?)`)
	inlineProfit  = regexp.MustCompile(`(?i)(?:profit\s+(?:after\s+tax|attributable)|net\s+profit|\bpat\b).*?` + standalone + number + `\s*(crores?|cr\b|lakhs?|lacs?)`)
	inlineEPS     = regexp.MustCompile(`(?i)(?:basic\s+)?(?:earnings\s+per\s+share|\beps\b).*?` + standalone + number)
	inlineEBITDA  = regexp.MustCompile(`(?i)ebitda.*?` + standalone + number + `\s*(crores?|cr\b|lakhs?|lacs?)`)

	comparisonSection = regexp.MustCompile(`(?is)(?:previous\s+year|corresponding\s+(?:quarter|period)|year\s+ago)(.*?)(?:\n\n|$)`)

	rowRevenue = regexp.MustCompile(`(?i)^[\s\divx\.\)\(a-h]{0,8}(?:revenue\s+from\s+operations|total\s+revenue|income\s+from\s+operations|net\s+sales)`)
	rowProfit  = regexp.MustCompile(`(?i)^[\s\divx\.\)\(a-h]{0,8}(?:net\s+profit(?:\s*/\s*\(loss\))?(?:\s+after\s+tax)?|profit(?:\s*/\s*\(loss\))?\s+(?:after\s+tax|for\s+the\s+(?:period|quarter)))`)
	rowEPS     = regexp.MustCompile(`(?i)^[\s\divx\.\)\(a-h]{0,8}(?:basic(?:\s+and\s+diluted)?\s+)?(?:earnings\s+per\s+(?:equity\s+)?share|eps)`)
	rowEBITDA  = regexp.MustCompile(`(?i)^[\s\divx\.\)\(a-h]{0,8}ebitda`)

	beforeTax  = regexp.MustCompile(`(?i)before\s+(?:tax|exceptional)`)
	noteParens = regexp.MustCompile(`\([^)]*[A-Za-z][^)]*\)`)
	cellNumber = regexp.MustCompile(`\(?-?\d{1,3}(?:,\d{2,3})+(?:\.\d{1,4})?\)?|\(?-?\d+(?:\.\d{1,4})?\)?`)
	unitHeader = regexp.MustCompile(`(?i)(?:in\s+|\()\s*(?:rs\.?|₹|inr)?\s*(?:in\s+)?(crores?|lakhs?|lacs?|millions?)\b`)
)

// ParseText looks for "<label> ... <amount> crore" phrases, the style used in
// press releases and board meeting outcomes.
func ParseText(text string, hint Hint) types.ExtractedMetrics {
	m := newMetrics(text, hint)
	m.Revenue = inlineAmount(inlineRevenue, text)
	m.ProfitAfterTax = inlineAmount(inlineProfit, text)
	m.EPS = inlinePlain(inlineEPS, text)
	m.EBITDA = inlineAmount(inlineEBITDA, text)

	if sec := comparisonSection.FindStringSubmatch(text); sec != nil {
		body := sec[1]
		if len(body) > 500 {
			body = body[:500]
		}
		m.RevenuePrevYear = inlineAmount(inlineRevenue, body)
		m.ProfitPrevYear = inlineAmount(inlineProfit, body)
	}

	m.Confidence = Confidence(m)
	return m
}

// ParseRows reads a results table flattened to one string per row. Amount
// columns are read in the order current quarter, preceding quarter,
// corresponding quarter of the previous year; the unit comes from the
// "(Rs. in crore)" style header and defaults to crore.
func ParseRows(rows []string, hint Hint) types.ExtractedMetrics {
	joined := strings.Join(rows, "\n")
	m := newMetrics(joined, hint)
	scale := unitScale(joined)

	for _, row := range rows {
		row = strings.TrimSpace(row)
		switch {
		case !m.Revenue.Valid && rowRevenue.MatchString(row):
			cols := rowColumns(rowRevenue, row, scale)
			m.Revenue, m.RevenuePrevQuarter, m.RevenuePrevYear = pick(cols, 0), pick(cols, 1), pick(cols, 2)
		case !m.ProfitAfterTax.Valid && rowProfit.MatchString(row) && !beforeTax.MatchString(row):
			cols := rowColumns(rowProfit, row, scale)
			m.ProfitAfterTax, m.ProfitPrevQuarter, m.ProfitPrevYear = pick(cols, 0), pick(cols, 1), pick(cols, 2)
		case !m.EPS.Valid && rowEPS.MatchString(row):
			m.EPS = pick(rowColumns(rowEPS, row, decimal.NewFromInt(1)), 0)
		case !m.EBITDA.Valid && rowEBITDA.MatchString(row):
			m.EBITDA = pick(rowColumns(rowEBITDA, row, scale), 0)
		}
	}

	m.Confidence = Confidence(m)
	return m
}

// Merge fills fields missing from primary with those found in secondary.
func Merge(primary, secondary types.ExtractedMetrics) types.ExtractedMetrics {
	fill := func(dst *decimal.NullDecimal, src decimal.NullDecimal) {
		if !dst.Valid && src.Valid {
			*dst = src
		}
	}
	fill(&primary.Revenue, secondary.Revenue)
	fill(&primary.ProfitAfterTax, secondary.ProfitAfterTax)
	fill(&primary.EPS, secondary.EPS)
	fill(&primary.EBITDA, secondary.EBITDA)
	fill(&primary.RevenuePrevQuarter, secondary.RevenuePrevQuarter)
	fill(&primary.ProfitPrevQuarter, secondary.ProfitPrevQuarter)
	fill(&primary.RevenuePrevYear, secondary.RevenuePrevYear)
	fill(&primary.ProfitPrevYear, secondary.ProfitPrevYear)
	primary.Confidence = Confidence(primary)
	return primary
}

// Confidence weights revenue and profit at 0.4 each and EPS at 0.2.
func Confidence(m types.ExtractedMetrics) float64 {
	score := 0.0
	if m.Revenue.Valid {
		score += 0.4
	}
	if m.ProfitAfterTax.Valid {
		score += 0.4
	}
	if m.EPS.Valid {
		score += 0.2
	}
	return score
}

// newMetrics labels the period from the document first (explicit markers,
// then a "quarter ended" line) and only then from the hint.
func newMetrics(text string, hint Hint) types.ExtractedMetrics {
	ref := hint.Reference
	if ref.IsZero() {
		ref = time.Now()
	}
	tq, qok := period.Quarter(text)
	tfy, fyok := period.FiscalYear(text)
	if !qok || !fyok {
		if eq, efy, ok := period.QuarterEnded(text); ok {
			if !qok {
				tq, qok = eq, true
			}
			if !fyok {
				tfy, fyok = efy, true
			}
		}
	}

	q, fy := hint.Quarter, hint.FiscalYear
	if qok {
		q = tq
	}
	if fyok {
		fy = tfy
	}
	switch {
	case q == 0:
		gq, gfy := period.Guess(text, ref)
		q = gq
		if fy == 0 {
			fy = gfy
		}
	case fy == 0:
		fy = period.LatestFiscalYear(q, ref)
	}
	return types.ExtractedMetrics{Symbol: hint.Symbol, Quarter: q, FiscalYear: fy}
}

func inlineAmount(re *regexp.Regexp, text string) decimal.NullDecimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return decimal.NullDecimal{}
	}
	if isLakh(m[2]) {
		v = v.Div(decimal.NewFromInt(100))
	}
	return decimal.NewNullDecimal(v)
}

func inlinePlain(re *regexp.Regexp, text string) decimal.NullDecimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}

func rowColumns(label *regexp.Regexp, row string, scale decimal.Decimal) []decimal.Decimal {
	loc := label.FindStringIndex(row)
	rest := noteParens.ReplaceAllString(row[loc[1]:], " ")
	var cols []decimal.Decimal
	for _, raw := range cellNumber.FindAllString(rest, -1) {
		v, ok := parseNumber(raw)
		if !ok {
			continue
		}
		cols = append(cols, v.Mul(scale))
	}
	return cols
}

func pick(cols []decimal.Decimal, i int) decimal.NullDecimal {
	if i >= len(cols) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(cols[i])
}

// unitScale converts the table unit to crore.
func unitScale(text string) decimal.Decimal {
	m := unitHeader.FindStringSubmatch(text)
	if m == nil {
		return decimal.NewFromInt(1)
	}
	unit := strings.ToLower(m[1])
	switch {
	case isLakh(unit):
		return decimal.NewFromFloat(0.01)
	case strings.HasPrefix(unit, "million"):
		return decimal.NewFromFloat(0.1)
	default:
		return decimal.NewFromInt(1)
	}
}

func isLakh(unit string) bool {
	u := strings.ToLower(unit)
	return strings.HasPrefix(u, "lakh") || strings.HasPrefix(u, "lac")
}

// parseNumber accepts grouped digits and accounting negatives "(1,234.5)".
func parseNumber(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.Trim(s, "()")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if neg {
		v = v.Neg()
	}
	return v, true
}
