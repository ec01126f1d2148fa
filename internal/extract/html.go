package extract

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/shanehull/resultalert/internal/types"
)

// HTMLTableStrategy flattens every <tr> of an HTML attachment into a row and
// parses it like a results table.
type HTMLTableStrategy struct{}

func (HTMLTableStrategy) Name() string { return "html-tables" }

func (HTMLTableStrategy) Attempt(ctx context.Context, doc *Document) (types.ExtractedMetrics, float64, error) {
	if !doc.IsHTML() {
		return types.ExtractedMetrics{}, 0, ErrNotApplicable
	}
	gdoc, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Data))
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}

	// Unit headers usually sit in a caption or paragraph above the table.
	rows := []string{strings.Join(strings.Fields(gdoc.Find("caption, p, h1, h2, h3, h4").Text()), " ")}
	gdoc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, td *goquery.Selection) {
			if c := strings.Join(strings.Fields(td.Text()), " "); c != "" {
				cells = append(cells, c)
			}
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " "))
		}
	})
	if err := ctx.Err(); err != nil {
		return types.ExtractedMetrics{}, 0, err
	}

	m := ParseRows(rows, doc.Hint)
	return m, m.Confidence, nil
}

// HTMLReadableStrategy strips page chrome with readability and parses the
// article body, for press releases published as web pages.
type HTMLReadableStrategy struct{}

func (HTMLReadableStrategy) Name() string { return "html-readable" }

func (HTMLReadableStrategy) Attempt(_ context.Context, doc *Document) (types.ExtractedMetrics, float64, error) {
	if !doc.IsHTML() {
		return types.ExtractedMetrics{}, 0, ErrNotApplicable
	}
	pageURL, err := url.Parse(doc.URL)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(doc.Data), pageURL)
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}
	m := ParseText(strings.TrimSpace(article.TextContent), doc.Hint)
	return m, m.Confidence, nil
}

// ListingTextStrategy parses the summary text some exchanges publish next to
// the attachment link. It needs no document bytes at all.
type ListingTextStrategy struct{}

func (ListingTextStrategy) Name() string { return "listing-text" }

func (ListingTextStrategy) Attempt(_ context.Context, doc *Document) (types.ExtractedMetrics, float64, error) {
	if strings.TrimSpace(doc.ListingText) == "" {
		return types.ExtractedMetrics{}, 0, ErrNotApplicable
	}
	m := ParseText(doc.ListingText, doc.Hint)
	return m, m.Confidence, nil
}

// DefaultStrategies is the standard chain, cheapest first. The LLM fallback
// is appended by the caller when an API key is configured.
func DefaultStrategies(withPDFToText bool) []Strategy {
	s := []Strategy{PDFTextStrategy{}, PDFLayoutStrategy{}}
	if withPDFToText {
		if p := (PDFToTextStrategy{}); p.Available() {
			s = append(s, p)
		}
	}
	return append(s, HTMLTableStrategy{}, HTMLReadableStrategy{}, ListingTextStrategy{})
}
