package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/shanehull/resultalert/internal/types"
)

var (
	// "TCS: Q2 results beat estimates"
	rssPrefixSymbol = regexp.MustCompile(`^([A-Z]+):`)
	rssAnySymbol    = regexp.MustCompile(`\b([A-Z][A-Z]+)\b`)
)

// RSS polls a news feed. Items carry no exchange symbol, so one is taken
// from the title; items without one are dropped.
type RSS struct {
	name   string
	url    string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

func NewRSS(cfg Config, log zerolog.Logger) *RSS {
	return &RSS{
		name:   nameOr(cfg.Name, KindRSS),
		url:    cfg.URL,
		client: &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		log:    log.With().Str("source", nameOr(cfg.Name, KindRSS)).Logger(),
		now:    time.Now,
	}
}

func (s *RSS) Name() string { return s.name }

func (s *RSS) Kind() string { return KindRSS }

func (s *RSS) Poll(ctx context.Context) ([]types.Announcement, error) {
	body, _, err := fetch(ctx, s.client, s.url, map[string]string{
		"Accept": "application/rss+xml, application/xml;q=0.9, */*;q=0.8",
	})
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse RSS XML from %s: %w", s.url, err)
	}

	now := s.now()
	var out []types.Announcement
	for _, it := range feed.Channel.Items {
		title := strings.TrimSpace(it.Title)
		symbol := symbolFromTitle(title)
		if symbol == "" {
			continue
		}
		date := parseTime(it.PubDate, time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "Mon, 2 Jan 2006 15:04:05")
		ann, ok := newAnnouncement(s.name, symbol, date, title, it.Link, plainText(it.Description), now)
		if !ok {
			continue
		}
		out = append(out, ann)
	}
	return out, nil
}

func symbolFromTitle(title string) string {
	if m := rssPrefixSymbol.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	if m := rssAnySymbol.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return ""
}

// plainText flattens an HTML fragment to its text with entities decoded. A
// bare "<" or ">" that does not open a tag stays in the text.
func plainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var (
		b    strings.Builder
		skip bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			skip = string(name) == "script" || string(name) == "style"
		case html.EndTagToken:
			skip = false
		case html.TextToken:
			if !skip {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
