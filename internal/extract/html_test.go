package extract

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsHTML = `<!DOCTYPE html>
<html><head><title>Results</title></head>
<body>
<h3>Unaudited consolidated financial results for Q3 FY25</h3>
<p>(Rs. in crore)</p>
<table>
  <tr><th>Particulars</th><th>31.12.2024</th><th>30.09.2024</th><th>31.12.2023</th></tr>
  <tr><td>1</td><td>Revenue from operations</td><td>2,45,000</td><td>2,38,000</td><td>2,10,000</td></tr>
  <tr><td>Net Profit after tax</td><td>18,540</td><td>17,000</td><td>15,000</td></tr>
  <tr><td>Basic EPS</td><td>13.70</td><td>12.50</td><td>11.00</td></tr>
</table>
</body></html>`

const pressReleaseHTML = `<!DOCTYPE html>
<html><head><title>Infosys Q2 FY26 results</title></head>
<body>
<nav><a href="/">Home</a> <a href="/investors">Investors</a></nav>
<article>
<h1>Infosys reports Q2 FY26 results</h1>
<p>Bengaluru, October 16. Infosys today announced Q2 FY26 results for the second quarter.
Revenue from operations for the quarter rose to Rs 44,490 crore, compared with Rs 40,986 crore a year earlier.
The company reported a net profit of Rs 7,364 crore for the period under review, supported by large deal wins
and steady demand from financial services clients across North America and Europe.</p>
<p>Basic EPS for the quarter was Rs 17.76 per share. The board declared an interim dividend of Rs 23 per share.
Management maintained its revenue growth guidance for the year and reported healthy operating margins,
with attrition stable and headcount broadly unchanged from the previous quarter.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestHTMLTableStrategy(t *testing.T) {
	doc := &Document{URL: "https://example.com/r.html", ContentType: "text/html", Data: []byte(resultsHTML), Hint: Hint{Symbol: "RELIANCE", Reference: ref}}

	m, conf, err := HTMLTableStrategy{}.Attempt(context.Background(), doc)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, conf, 1e-9)
	assertAmount(t, "245000", m.Revenue)
	assertAmount(t, "238000", m.RevenuePrevQuarter)
	assertAmount(t, "210000", m.RevenuePrevYear)
	assertAmount(t, "18540", m.ProfitAfterTax)
	assertAmount(t, "13.70", m.EPS)
}

func TestHTMLReadableStrategy(t *testing.T) {
	doc := &Document{URL: "https://example.com/news", ContentType: "text/html", Data: []byte(pressReleaseHTML), Hint: Hint{Symbol: "INFY", Reference: ref}}

	m, conf, err := HTMLReadableStrategy{}.Attempt(context.Background(), doc)
	require.NoError(t, err)

	assertAmount(t, "44490", m.Revenue)
	assertAmount(t, "7364", m.ProfitAfterTax)
	assertAmount(t, "17.76", m.EPS)
	assert.InDelta(t, 1.0, conf, 1e-9)
	assert.Equal(t, 2, m.Quarter)
	assert.Equal(t, 2026, m.FiscalYear)
}

func TestStrategiesSkipOtherFormats(t *testing.T) {
	pdfDoc := &Document{Data: []byte("%PDF-1.7\n")}
	htmlDoc := &Document{ContentType: "text/html", Data: []byte("<html></html>")}

	for _, s := range []Strategy{HTMLTableStrategy{}, HTMLReadableStrategy{}} {
		_, _, err := s.Attempt(context.Background(), pdfDoc)
		assert.ErrorIs(t, err, ErrNotApplicable, s.Name())
	}
	for _, s := range []Strategy{PDFTextStrategy{}, PDFLayoutStrategy{}, PDFToTextStrategy{}} {
		_, _, err := s.Attempt(context.Background(), htmlDoc)
		assert.ErrorIs(t, err, ErrNotApplicable, s.Name())
	}
	_, _, err := ListingTextStrategy{}.Attempt(context.Background(), htmlDoc)
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestListingTextStrategy(t *testing.T) {
	doc := &Document{ListingText: "Net profit of Rs 512 crore on revenue of Rs 4,100 crore", Hint: Hint{Reference: ref}}
	m, conf, err := ListingTextStrategy{}.Attempt(context.Background(), doc)
	require.NoError(t, err)
	assertAmount(t, "512", m.ProfitAfterTax)
	assertAmount(t, "4100", m.Revenue)
	assert.InDelta(t, 0.8, conf, 1e-9)
}

func fixturePDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	for _, l := range lines {
		pdf.Cell(0, 8, l)
		pdf.Ln(8)
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestPDFTextStrategy(t *testing.T) {
	data := fixturePDF(t,
		"Tata Consultancy Services Q2 FY26 results",
		"Revenue from operations of Rs 65,799 crore",
		"Net profit of Rs 12,075 crore",
	)
	doc := &Document{Data: data, Hint: Hint{Symbol: "TCS", Reference: ref}}
	require.True(t, doc.IsPDF())

	m, conf, err := PDFTextStrategy{}.Attempt(context.Background(), doc)
	require.NoError(t, err)
	assertAmount(t, "65799", m.Revenue)
	assertAmount(t, "12075", m.ProfitAfterTax)
	assert.InDelta(t, 0.8, conf, 1e-9)
}

func TestPDFStrategiesRejectGarbage(t *testing.T) {
	doc := &Document{Data: []byte("%PDF-1.4\nthis is not really a pdf")}
	_, _, err := PDFTextStrategy{}.Attempt(context.Background(), doc)
	assert.Error(t, err)
	_, _, err = PDFLayoutStrategy{}.Attempt(context.Background(), doc)
	assert.Error(t, err)
}

func TestLoadFileInspectsPDF(t *testing.T) {
	path := t.TempDir() + "/r.pdf"
	require.NoError(t, os.WriteFile(path, fixturePDF(t, "Revenue from operations of Rs 10 crore"), 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, 1, doc.Pages)
}
