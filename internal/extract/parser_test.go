package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2025, time.January, 20, 18, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected %s, got null", want)
	assert.True(t, dec(want).Equal(got.Decimal), "expected %s, got %s", want, got.Decimal)
}

func TestParseTextPressRelease(t *testing.T) {
	text := "Reliance Industries Q3 FY25 results. Revenue from operations stood at Rs.2,45,000 crore, " +
		"up 16.7% year on year. Net profit was ₹18,540 crore. EBITDA of 48,003 cr. Basic EPS of ₹13.70."

	m := ParseText(text, Hint{Symbol: "RELIANCE", Reference: ref})

	assert.Equal(t, "RELIANCE", m.Symbol)
	assert.Equal(t, 3, m.Quarter)
	assert.Equal(t, 2025, m.FiscalYear)
	assertAmount(t, "245000", m.Revenue)
	assertAmount(t, "18540", m.ProfitAfterTax)
	assertAmount(t, "48003", m.EBITDA)
	assertAmount(t, "13.70", m.EPS)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
}

func TestParseTextLakhs(t *testing.T) {
	m := ParseText("Total income of 12,500 lakhs for the quarter", Hint{Reference: ref})
	assertAmount(t, "125", m.Revenue)
	assert.InDelta(t, 0.4, m.Confidence, 1e-9)
}

func TestParseTextComparisonSection(t *testing.T) {
	text := "Revenue 1,200 crore and net profit 300 crore.\n" +
		"In the corresponding quarter revenue was 1,000 crore and net profit 250 crore.\n\nOther notes."

	m := ParseText(text, Hint{Reference: ref})
	assertAmount(t, "1200", m.Revenue)
	assertAmount(t, "300", m.ProfitAfterTax)
	assertAmount(t, "1000", m.RevenuePrevYear)
	assertAmount(t, "250", m.ProfitPrevYear)
}

func TestParseTextNoMatches(t *testing.T) {
	m := ParseText("Intimation of board meeting to consider results", Hint{Symbol: "TCS", Quarter: 2, FiscalYear: 2026, Reference: ref})
	assert.Equal(t, 0, m.FieldCount())
	assert.Zero(t, m.Confidence)
	assert.Equal(t, 2, m.Quarter)
	assert.Equal(t, 2026, m.FiscalYear)
}

func TestParseTextQuarterEndedBeatsHint(t *testing.T) {
	text := "Unaudited financial results for the quarter ended 31st December 2024. Revenue of Rs 2,45,000 crore."

	m := ParseText(text, Hint{Symbol: "RELIANCE", Quarter: 3, FiscalYear: 2024, Reference: ref})
	assert.Equal(t, 3, m.Quarter)
	assert.Equal(t, 2025, m.FiscalYear)

	m = ParseText("Revenue of Rs 2,45,000 crore.", Hint{Symbol: "RELIANCE", Quarter: 3, Reference: ref})
	assert.Equal(t, 3, m.Quarter)
	assert.Equal(t, 2025, m.FiscalYear, "missing year follows the latest ended Q3")
}

func TestParseRowsResultsTable(t *testing.T) {
	rows := []string{
		"Statement of unaudited consolidated financial results (Rs. in Lakhs)",
		"Particulars Quarter ended 31.12.2024 30.09.2024 31.12.2023",
		"1 Revenue from operations 24,500,000 23,800,000 21,000,000",
		"5 Net Profit / (Loss) for the period before tax 2,400,000 2,300,000 2,000,000",
		"7 Net Profit / (Loss) after tax 1,854,000 1,700,000 1,500,000",
		"Earnings per equity share (of Rs 10 each) (not annualised) 13.70 12.50 11.00",
	}

	m := ParseRows(rows, Hint{Symbol: "RELIANCE", Quarter: 3, FiscalYear: 2025, Reference: ref})

	assertAmount(t, "245000", m.Revenue)
	assertAmount(t, "238000", m.RevenuePrevQuarter)
	assertAmount(t, "210000", m.RevenuePrevYear)
	assertAmount(t, "18540", m.ProfitAfterTax)
	assertAmount(t, "17000", m.ProfitPrevQuarter)
	assertAmount(t, "15000", m.ProfitPrevYear)
	assertAmount(t, "13.70", m.EPS)
	assert.False(t, m.EBITDA.Valid)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
}

func TestParseRowsAccountingNegative(t *testing.T) {
	rows := []string{
		"(₹ in crore)",
		"Revenue from operations 500 450 400",
		"Net loss after tax (12.5) 3.0 4.0",
		"Profit after tax (12.5) 3.0 4.0",
	}
	m := ParseRows(rows, Hint{Reference: ref})
	assertAmount(t, "500", m.Revenue)
	assertAmount(t, "-12.5", m.ProfitAfterTax)
	assert.False(t, m.EPS.Valid)
	assert.InDelta(t, 0.8, m.Confidence, 1e-9)
}

func TestMergeFillsMissingOnly(t *testing.T) {
	a := ParseRows([]string{"Revenue from operations 500 450 400"}, Hint{Reference: ref})
	b := ParseText("Revenue 900 crore. Net profit 50 crore. EPS 2.5", Hint{Reference: ref})

	m := Merge(a, b)
	assertAmount(t, "500", m.Revenue)
	assertAmount(t, "50", m.ProfitAfterTax)
	assertAmount(t, "2.5", m.EPS)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1,23,456.78", "123456.78", true},
		{"(1,234.5)", "-1234.5", true},
		{"-42", "-42", true},
		{"", "", false},
		{"()", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, dec(tt.want).Equal(got), "got %s", got)
			}
		})
	}
}
