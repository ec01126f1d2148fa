/*
Package period guesses the fiscal quarter and fiscal year an Indian results
announcement refers to. Fiscal years run April to March and are named after
the calendar year in which they end.
*/
package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultQuarter is used when no quarter marker is present; most results
// seasons the pipeline runs through are Q3.
const DefaultQuarter = 3

var (
	quarterPattern    = regexp.MustCompile(`(?i)(?:q\s*([1-4])|quarter\s+([1-4])|([1-4])(?:st|nd|rd|th)\s+quarter)`)
	fiscalYearPattern = regexp.MustCompile(`(?i)(?:fy|f\.y\.?|fiscal\s+year)[\s\-']*(\d{4}|\d{2})`)
	quarterEndPattern = regexp.MustCompile(`(?i)(?:quarter|period|half\s+year)\s+ended\s+(?:on\s+)?(?:\d{1,2}(?:st|nd|rd|th)?\s+)?(march|june|september|december|mar|jun|sep|sept|dec)[a-z]*[\s,\.]*(?:\d{1,2}(?:st|nd|rd|th)?[\s,\.]+)?(\d{4})`)
)

// Quarter returns the first explicit quarter marker in text.
func Quarter(text string) (int, bool) {
	m := quarterPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g != "" {
			q, _ := strconv.Atoi(g)
			return q, true
		}
	}
	return 0, false
}

// FiscalYear returns the first explicit fiscal year marker in text. Two digit
// years below 50 are read as 20xx.
func FiscalYear(text string) (int, bool) {
	m := fiscalYearPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if y < 100 {
		if y < 50 {
			y += 2000
		} else {
			y += 1900
		}
	}
	return y, true
}

// QuarterEnded maps "quarter ended 31st December 2024" to (3, 2025).
func QuarterEnded(text string) (int, int, bool) {
	m := quarterEndPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	switch strings.ToLower(m[1])[:3] {
	case "jun":
		return 1, year + 1, true
	case "sep":
		return 2, year + 1, true
	case "dec":
		return 3, year + 1, true
	default:
		return 4, year, true
	}
}

// CurrentFiscalYear is the label of the fiscal year containing ref: from
// April onwards that is the next calendar year.
func CurrentFiscalYear(ref time.Time) int {
	if ref.Month() >= time.April {
		return ref.Year() + 1
	}
	return ref.Year()
}

// QuarterEnd is the first day after quarter q of fiscal year fy.
func QuarterEnd(q, fy int) time.Time {
	// Q1 ends June of the starting calendar year, Q4 ends March of fy.
	month := time.Month(3*q + 4)
	year := fy - 1
	if q == 4 {
		month, year = time.April, fy
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// LatestFiscalYear returns the fiscal year of the most recent quarter q that
// had ended by ref. Results are only published for finished quarters.
func LatestFiscalYear(q int, ref time.Time) int {
	fy := CurrentFiscalYear(ref)
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	if QuarterEnd(q, fy).After(day) {
		fy--
	}
	return fy
}

// Guess resolves (quarter, fiscal year) from text, falling back to the
// quarter-ended phrase, then to DefaultQuarter and the latest fiscal year in
// which that quarter had ended by ref.
func Guess(text string, ref time.Time) (int, int) {
	q, qok := Quarter(text)
	fy, fyok := FiscalYear(text)
	if !qok || !fyok {
		if eq, efy, ok := QuarterEnded(text); ok {
			if !qok {
				q, qok = eq, true
			}
			if !fyok {
				fy, fyok = efy, true
			}
		}
	}
	if !qok {
		q = DefaultQuarter
	}
	if !fyok {
		fy = LatestFiscalYear(q, ref)
	}
	return q, fy
}
