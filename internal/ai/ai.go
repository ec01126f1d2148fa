/*
Package ai provides the Gemini fallback strategy: the attachment is sent to
the model as-is and the headline result figures are read back as JSON. It is
the last link in the extraction chain and handles scanned filings the text
strategies cannot read.
*/
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/shanehull/resultalert/internal/extract"
	"github.com/shanehull/resultalert/internal/types"
)

const DefaultModel = "gemini-2.5-flash"

// maxInlineBytes is the request size limit for inline document data.
const maxInlineBytes = 18 << 20

// maxHTMLChars bounds the page text sent for HTML attachments.
const maxHTMLChars = 60000

// GenerateFunc runs one model call and returns the response text.
type GenerateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)

// MetricsStrategy implements extract.Strategy on top of Gemini.
type MetricsStrategy struct {
	model    string
	generate GenerateFunc
}

// NewMetricsStrategy builds the strategy around a Gemini API client.
func NewMetricsStrategy(ctx context.Context, apiKey, model string) (*MetricsStrategy, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	gen := func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return NewMetricsStrategyWith(model, gen), nil
}

// NewMetricsStrategyWith builds the strategy around an arbitrary generator.
func NewMetricsStrategyWith(model string, gen GenerateFunc) *MetricsStrategy {
	if model == "" {
		model = DefaultModel
	}
	return &MetricsStrategy{model: model, generate: gen}
}

func (s *MetricsStrategy) Name() string { return "gemini-vision" }

func (s *MetricsStrategy) Attempt(ctx context.Context, doc *extract.Document) (types.ExtractedMetrics, float64, error) {
	part, err := documentPart(doc)
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}

	userContent := &genai.Content{
		Parts: []*genai.Part{
			part,
			{Text: prompt(doc.Hint)},
		},
		Role: "user",
	}

	temperature := float32(0)
	respText, err := s.generate(ctx, s.model, []*genai.Content{userContent}, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    getResponseSchema(),
		Temperature:       &temperature,
	})
	if err != nil {
		return types.ExtractedMetrics{}, 0, fmt.Errorf("gemini API call failed: %w", err)
	}

	m, err := parseResponse(respText, doc.Hint)
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}
	return m, m.Confidence, nil
}

func documentPart(doc *extract.Document) (*genai.Part, error) {
	switch {
	case doc.IsPDF():
		if len(doc.Data) > maxInlineBytes {
			return nil, fmt.Errorf("document too large for inline upload: %d bytes", len(doc.Data))
		}
		return &genai.Part{InlineData: &genai.Blob{Data: doc.Data, MIMEType: "application/pdf"}}, nil
	case doc.IsHTML():
		text := string(doc.Data)
		if len(text) > maxHTMLChars {
			text = text[:maxHTMLChars]
		}
		return &genai.Part{Text: "Document (HTML):\n" + text}, nil
	case strings.TrimSpace(doc.ListingText) != "":
		return &genai.Part{Text: "Document (listing summary):\n" + doc.ListingText}, nil
	}
	return nil, extract.ErrNotApplicable
}

type modelMetrics struct {
	Quarter            int      `json:"quarter"`
	FiscalYear         int      `json:"fiscal_year"`
	Unit               string   `json:"unit"`
	Revenue            *float64 `json:"revenue"`
	ProfitAfterTax     *float64 `json:"profit_after_tax"`
	EPS                *float64 `json:"eps"`
	EBITDA             *float64 `json:"ebitda"`
	RevenuePrevQuarter *float64 `json:"revenue_prev_quarter"`
	ProfitPrevQuarter  *float64 `json:"profit_prev_quarter"`
	RevenuePrevYear    *float64 `json:"revenue_prev_year"`
	ProfitPrevYear     *float64 `json:"profit_prev_year"`
}

var errEmptyResponse = errors.New("gemini returned an empty response")

// parseResponse converts the model's JSON into metrics. Amounts are scaled to
// crore; the period falls back to the hint when the model left it out.
func parseResponse(respText string, hint extract.Hint) (types.ExtractedMetrics, error) {
	respText = strings.TrimSpace(respText)
	if respText == "" {
		return types.ExtractedMetrics{}, errEmptyResponse
	}
	respText = strings.TrimPrefix(strings.TrimSuffix(respText, "```"), "```json")

	var mm modelMetrics
	if err := json.Unmarshal([]byte(strings.TrimSpace(respText)), &mm); err != nil {
		return types.ExtractedMetrics{}, fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}

	scale := unitScale(mm.Unit)
	m := types.ExtractedMetrics{
		Symbol:             hint.Symbol,
		Quarter:            hint.Quarter,
		FiscalYear:         hint.FiscalYear,
		Revenue:            amount(mm.Revenue, scale),
		ProfitAfterTax:     amount(mm.ProfitAfterTax, scale),
		EPS:                amount(mm.EPS, decimal.NewFromInt(1)),
		EBITDA:             amount(mm.EBITDA, scale),
		RevenuePrevQuarter: amount(mm.RevenuePrevQuarter, scale),
		ProfitPrevQuarter:  amount(mm.ProfitPrevQuarter, scale),
		RevenuePrevYear:    amount(mm.RevenuePrevYear, scale),
		ProfitPrevYear:     amount(mm.ProfitPrevYear, scale),
	}
	if mm.Quarter >= 1 && mm.Quarter <= 4 {
		m.Quarter = mm.Quarter
	}
	if mm.FiscalYear >= 1990 && mm.FiscalYear <= 2100 {
		m.FiscalYear = mm.FiscalYear
	}
	m.Confidence = extract.Confidence(m)
	return m, nil
}

func amount(v *float64, scale decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v).Mul(scale).Round(4))
}

func unitScale(unit string) decimal.Decimal {
	u := strings.ToLower(unit)
	switch {
	case strings.Contains(u, "lakh"), strings.Contains(u, "lac"):
		return decimal.New(1, -2)
	case strings.Contains(u, "million"):
		return decimal.New(1, -1)
	case strings.Contains(u, "billion"):
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(1)
}
