package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shanehull/resultalert/internal/types"
)

const (
	DefaultNSEURL  = "https://www.nseindia.com/api/corporate-announcements?index=equities"
	defaultNSEHome = "https://www.nseindia.com"
	// cookies from the homepage are refreshed after this long
	nseCookieTTL = 10 * time.Minute
)

// NSE polls the NSE corporate announcements API. The API rejects requests
// without the session cookies set by the homepage, so the first poll (and
// every poll after the cookies age out) visits the homepage first.
type NSE struct {
	name   string
	url    string
	home   string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
	mu     sync.Mutex
	warmed time.Time
}

type nseItem struct {
	Symbol       string `json:"symbol"`
	Desc         string `json:"desc"`
	AnDt         string `json:"an_dt"`
	AttchmntFile string `json:"attchmntFile"`
	AttchmntText string `json:"attchmntText"`
	CompanyName  string `json:"sm_name"`
}

func NewNSE(cfg Config, log zerolog.Logger) (*NSE, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	url := cfg.URL
	if url == "" {
		url = DefaultNSEURL
	}
	home := cfg.BaseURL
	if home == "" {
		home = defaultNSEHome
	}
	return &NSE{
		name:   nameOr(cfg.Name, KindNSE),
		url:    url,
		home:   home,
		client: &http.Client{Timeout: timeoutOr(cfg.Timeout), Jar: jar},
		log:    log.With().Str("source", nameOr(cfg.Name, KindNSE)).Logger(),
		now:    time.Now,
	}, nil
}

func (s *NSE) Name() string { return s.name }

func (s *NSE) Kind() string { return KindNSE }

func (s *NSE) Poll(ctx context.Context) ([]types.Announcement, error) {
	s.warmup(ctx)

	body, header, err := fetch(ctx, s.client, s.url, map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  "en-US,en;q=0.9",
		"Referer":          s.home + "/",
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, err
	}
	if ct := header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		// Bot protection answers with an HTML page; drop the cookies so the
		// next poll warms up again.
		s.mu.Lock()
		s.warmed = time.Time{}
		s.mu.Unlock()
		return nil, fmt.Errorf("nse returned %s instead of JSON", ct)
	}

	items, err := decodeNSE(body)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var out []types.Announcement
	for _, it := range items {
		date := parseTime(it.AnDt, "02-Jan-2006 15:04:05", "2006-01-02 15:04:05", "02-Jan-2006")
		ann, ok := newAnnouncement(s.name, it.Symbol, date, it.Desc, it.AttchmntFile, it.AttchmntText, now)
		if !ok {
			s.log.Debug().Str("symbol", it.Symbol).Msg("dropping unusable entry")
			continue
		}
		ann.CompanyName = strings.TrimSpace(it.CompanyName)
		out = append(out, ann)
	}
	return out, nil
}

func (s *NSE) warmup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.warmed.IsZero() && s.now().Sub(s.warmed) < nseCookieTTL {
		return
	}
	if _, _, err := fetch(ctx, s.client, s.home, nil); err != nil {
		// The API call may still work with stale cookies.
		s.log.Debug().Err(err).Msg("homepage warm-up failed")
		return
	}
	s.warmed = s.now()
}

// decodeNSE accepts both the bare array and the {"data": [...]} envelope.
func decodeNSE(body []byte) ([]nseItem, error) {
	var items []nseItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var env struct {
		Data []nseItem `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode nse response: %w", err)
	}
	return env.Data, nil
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
