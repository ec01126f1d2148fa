package extract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/shanehull/resultalert/internal/types"
)

// Results filings put the statement within the first few pages; the rest is
// notes and auditor reports.
const maxPDFPages = 12

// PDFTextStrategy reads the content stream text in page order and looks for
// inline "<label> ... <amount> crore" phrases.
type PDFTextStrategy struct{}

func (PDFTextStrategy) Name() string { return "pdf-text" }

func (PDFTextStrategy) Attempt(ctx context.Context, doc *Document) (types.ExtractedMetrics, float64, error) {
	if !doc.IsPDF() {
		return types.ExtractedMetrics{}, 0, ErrNotApplicable
	}
	text, err := pdfPlainText(ctx, doc.Data)
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}
	m := ParseText(text, doc.Hint)
	return m, m.Confidence, nil
}

// PDFLayoutStrategy groups glyphs into visual rows so that a results table
// reads as "label col1 col2 col3", which also yields the comparison columns.
type PDFLayoutStrategy struct{}

func (PDFLayoutStrategy) Name() string { return "pdf-layout" }

func (PDFLayoutStrategy) Attempt(ctx context.Context, doc *Document) (types.ExtractedMetrics, float64, error) {
	if !doc.IsPDF() {
		return types.ExtractedMetrics{}, 0, ErrNotApplicable
	}
	rows, err := pdfRows(ctx, doc.Data)
	if err != nil {
		return types.ExtractedMetrics{}, 0, err
	}
	m := Merge(ParseRows(rows, doc.Hint), ParseText(strings.Join(rows, "\n"), doc.Hint))
	return m, m.Confidence, nil
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic opening PDF: %v", p)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func pdfPlainText(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("panic during PDF text extraction: %v", p)
		}
	}()

	r, err := openPDF(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= min(r.NumPage(), maxPDFPages); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("no text layer found, document may be scanned")
	}
	return sb.String(), nil
}

func pdfRows(ctx context.Context, data []byte) (rows []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("panic during PDF row extraction: %v", p)
		}
	}()

	r, err := openPDF(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	for i := 1; i <= min(r.NumPage(), maxPDFPages); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageRows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range pageRows {
			words := make([]pdf.Text, len(row.Content))
			copy(words, row.Content)
			sort.SliceStable(words, func(a, b int) bool { return words[a].X < words[b].X })

			var sb strings.Builder
			lastEnd := 0.0
			for j, w := range words {
				if j > 0 && w.X-lastEnd > 1.5 {
					sb.WriteString(" ")
				}
				sb.WriteString(w.S)
				lastEnd = w.X + w.W
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				rows = append(rows, line)
			}
		}
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no text rows found, document may be scanned")
	}
	return rows, nil
}
