/*
Package source polls upstream announcement feeds (NSE, BSE, RSS and HTML
listings) and normalizes their entries into types.Announcement.
*/
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shanehull/resultalert/internal/period"
	"github.com/shanehull/resultalert/internal/types"
)

const (
	KindNSE  = "nse"
	KindBSE  = "bse"
	KindRSS  = "rss"
	KindHTML = "html"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBody bounds a listing response.
const maxBody = 8 << 20

var ist = time.FixedZone("IST", 5*3600+1800)

// Source is one upstream feed. Poll returns every entry currently listed;
// repeated entries across polls are expected.
type Source interface {
	Name() string
	Kind() string
	Poll(ctx context.Context) ([]types.Announcement, error)
}

type Config struct {
	Name     string        `mapstructure:"name"`
	Kind     string        `mapstructure:"kind"`
	URL      string        `mapstructure:"url"`
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// BaseURL resolves relative links for HTML listings and is the cookie
	// warm-up page for NSE.
	BaseURL string `mapstructure:"base_url"`
}

// New builds the source described by cfg.
func New(cfg Config, log zerolog.Logger) (Source, error) {
	cfg.Name = nameOr(cfg.Name, strings.ToLower(cfg.Kind))
	switch strings.ToLower(cfg.Kind) {
	case KindNSE:
		return NewNSE(cfg, log)
	case KindBSE:
		return NewBSE(cfg, log), nil
	case KindRSS:
		return NewRSS(cfg, log), nil
	case KindHTML:
		return NewHTMLListing(cfg, log), nil
	}
	return nil, fmt.Errorf("unknown source kind %q for source %q", cfg.Kind, cfg.Name)
}

// nameOr is the configured source name, or the kind when none is set. The
// name is what announcements carry as their Source.
func nameOr(name, kind string) string {
	if name == "" {
		return kind
	}
	return name
}

// fetch performs a GET and returns the body of a 200 response.
func fetch(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch URL %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received non-OK status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body from %s: %w", url, err)
	}
	return body, resp.Header, nil
}

// newAnnouncement fills the derived fields of an announcement: the
// identity key and the discovery time. ok is false when the entry lacks a
// resolvable symbol or fails validation.
func newAnnouncement(src, symbol string, date time.Time, desc, attachmentURL, attachmentText string, now time.Time) (types.Announcement, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	ann := types.Announcement{
		Source:         src,
		Symbol:         symbol,
		Date:           date,
		Description:    strings.TrimSpace(desc),
		AttachmentURL:  strings.TrimSpace(attachmentURL),
		AttachmentText: strings.TrimSpace(attachmentText),
		DiscoveredAt:   now,
	}
	ref := date
	if ref.IsZero() {
		ref = now
	}
	q, fy := period.Guess(ann.Description+" "+ann.AttachmentText, ref)
	ann.Identity = types.IdentityKey{Symbol: symbol, Quarter: q, FiscalYear: fy}

	if err := types.Validate(ann); err != nil {
		return ann, false
	}
	return ann, true
}

// parseTime tries each layout in turn, interpreting zone-less layouts in IST.
func parseTime(value string, layouts ...string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, ist); err == nil {
			return t
		}
	}
	return time.Time{}
}
