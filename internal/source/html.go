package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/shanehull/resultalert/internal/types"
)

var whitespace = regexp.MustCompile(`[\n\t\r\s\xA0]+`)

var listingDateLayouts = []string{
	"02/01/2006 3:04 PM",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04",
	"02-01-2006 15:04",
	"02/01/2006",
	"02-Jan-2006",
}

// listingRow is an announcement under construction while its cells are read.
type listingRow struct {
	symbol string
	date   time.Time
	title  string
	href   string
}

type cellProcessorFunc func(n *html.Node, tdIndex int, row *listingRow)

// HTMLListing scrapes an exchange page that lists announcements as table
// rows inside a <tbody>: symbol, date and time, then the headline linking
// to the attachment.
type HTMLListing struct {
	name   string
	url    string
	base   string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

func NewHTMLListing(cfg Config, log zerolog.Logger) *HTMLListing {
	base := cfg.BaseURL
	if base == "" {
		base = cfg.URL
	}
	return &HTMLListing{
		name:   nameOr(cfg.Name, KindHTML),
		url:    cfg.URL,
		base:   base,
		client: &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		log:    log.With().Str("source", nameOr(cfg.Name, KindHTML)).Logger(),
		now:    time.Now,
	}
}

func (s *HTMLListing) Name() string { return s.name }

func (s *HTMLListing) Kind() string { return KindHTML }

func (s *HTMLListing) Poll(ctx context.Context) ([]types.Announcement, error) {
	body, _, err := fetch(ctx, s.client, s.url, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", s.url, err)
	}

	base, err := url.Parse(s.base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", s.base, err)
	}

	processTableCell := func(n *html.Node, tdIndex int, row *listingRow) {
		switch tdIndex {
		case 1: // Symbol
			row.symbol = strings.TrimSpace(extractText(n))
		case 2: // Date and Time
			cleanedText := strings.TrimSpace(whitespace.ReplaceAllString(extractText(n), " "))
			row.date = parseTime(strings.ToUpper(cleanedText), listingDateLayouts...)
			if row.date.IsZero() {
				s.log.Debug().Str("value", cleanedText).Msg("failed to parse listing date")
			}
		case 3: // Headline and attachment link
			aTag := findATag(n)
			if aTag == nil {
				row.title = strings.TrimSpace(whitespace.ReplaceAllString(extractText(n), " "))
				return
			}
			for _, attr := range aTag.Attr {
				if attr.Key == "href" {
					if ref, err := url.Parse(strings.TrimSpace(attr.Val)); err == nil {
						row.href = base.ResolveReference(ref).String()
					}
					break
				}
			}
			row.title = strings.TrimSpace(whitespace.ReplaceAllString(extractText(aTag), " "))
		}
	}

	now := s.now()
	var out []types.Announcement
	for _, row := range traverseAndCollect(doc, processTableCell) {
		ann, ok := newAnnouncement(s.name, row.symbol, row.date, row.title, row.href, "", now)
		if !ok {
			continue
		}
		out = append(out, ann)
	}
	return out, nil
}

func findATag(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "a" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if a := findATag(c); a != nil {
			return a
		}
	}
	return nil
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractText(c))
	}
	return sb.String()
}

func traverseAndCollect(doc *html.Node, processor cellProcessorFunc) []listingRow {
	var rows []listingRow
	var f func(*html.Node, bool)

	f = func(n *html.Node, inTableBody bool) {
		if n.Type == html.ElementNode && n.Data == "tbody" {
			inTableBody = true
		}

		if inTableBody && n.Type == html.ElementNode && n.Data == "tr" {
			var row listingRow
			tdCount := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "td" {
					tdCount++
					processor(c, tdCount, &row)
				}
			}
			if row.href != "" {
				rows = append(rows, row)
			}
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c, inTableBody)
		}
	}

	f(doc, false)
	return rows
}
