package ai

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shanehull/resultalert/internal/extract"
)

const systemInstruction = `
# [INSTRUCTION]

You are a financial data extraction engine for Indian listed companies.

You are given a quarterly financial results filing (a PDF, an HTML page or an exchange summary) as submitted to NSE or BSE. Extract the headline figures of the CURRENT quarter and the comparison columns printed beside them.

---

# [RULES]

- Prefer the consolidated statement. Use standalone figures only when no consolidated statement is present.
- "revenue" is Revenue from Operations. Do not use Total Income when Revenue from Operations is printed.
- "profit_after_tax" is Net Profit after tax for the period, attributable to owners where both are shown. Never use profit before tax.
- "eps" is basic earnings per share in rupees, not annualised.
- Losses and figures printed in parentheses are negative numbers.
- Report numbers exactly as printed, without the thousands separators, and name the unit from the statement header in "unit" (crore, lakh, million).
- The column order in Indian filings is: current quarter, preceding quarter, corresponding quarter of the previous year.
- Omit a field entirely when it is not printed in the document. Never estimate or compute a figure.
- "fiscal_year" is the Indian fiscal year ending in March, e.g. the quarter ended 31 December 2024 is Q3 of fiscal year 2025.
`

func prompt(hint extract.Hint) string {
	var b strings.Builder
	b.WriteString("Extract the quarterly result figures from the attached document.")
	if hint.Symbol != "" {
		fmt.Fprintf(&b, "\nCompany symbol: %s", hint.Symbol)
	}
	if hint.Quarter > 0 && hint.FiscalYear > 0 {
		fmt.Fprintf(&b, "\nExpected period: Q%d FY%d", hint.Quarter, hint.FiscalYear)
	}
	return b.String()
}

func getResponseSchema() *genai.Schema {
	number := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeNumber, Description: desc}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"quarter":              {Type: genai.TypeInteger, Description: "Fiscal quarter 1-4 of the current period."},
			"fiscal_year":          {Type: genai.TypeInteger, Description: "Four digit fiscal year ending in March."},
			"unit":                 {Type: genai.TypeString, Description: "Unit of the amounts: crore, lakh or million."},
			"revenue":              number("Revenue from operations, current quarter."),
			"profit_after_tax":     number("Net profit after tax, current quarter."),
			"eps":                  number("Basic EPS in rupees, current quarter."),
			"ebitda":               number("EBITDA, current quarter, only when printed."),
			"revenue_prev_quarter": number("Revenue from operations, preceding quarter."),
			"profit_prev_quarter":  number("Net profit after tax, preceding quarter."),
			"revenue_prev_year":    number("Revenue from operations, same quarter of the previous year."),
			"profit_prev_year":     number("Net profit after tax, same quarter of the previous year."),
		},
		Required: []string{"quarter", "fiscal_year", "unit"},
	}
}
