package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shanehull/resultalert/internal/types"
)

const DefaultBSEHeaderURL = "https://api.bseindia.com/BseIndiaAPI/api/ComHeader/w"

// Resolver maps symbols to company names. BSE scrip codes are numeric, so
// alerts would otherwise only show a number. Names are learned from the
// listings that carry them and, for unknown codes, looked up on the BSE
// company header API. Results are cached for the life of the process.
type Resolver struct {
	mu     sync.RWMutex
	names  map[string]string
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewResolver returns a resolver that looks codes up at lookupURL. An empty
// lookupURL disables remote lookups.
func NewResolver(lookupURL string, timeout time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		names:  make(map[string]string),
		url:    lookupURL,
		client: &http.Client{Timeout: timeoutOr(timeout)},
		log:    log.With().Str("component", "resolver").Logger(),
	}
}

// Learn records name for symbol. Empty values are ignored.
func (r *Resolver) Learn(symbol, name string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	name = strings.TrimSpace(name)
	if symbol == "" || name == "" {
		return
	}
	r.mu.Lock()
	r.names[symbol] = name
	r.mu.Unlock()
}

func (r *Resolver) cached(symbol string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[symbol]
	return name, ok
}

// Resolve returns the company name for symbol. Alphabetic tickers are
// already readable and come back unchanged, as does any symbol that cannot
// be resolved.
func (r *Resolver) Resolve(ctx context.Context, symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name, ok := r.cached(symbol); ok {
		return name
	}
	if !types.IsScripCode(symbol) || r.url == "" {
		return symbol
	}

	name, err := r.lookup(ctx, symbol)
	if err != nil {
		r.log.Debug().Err(err).Str("symbol", symbol).Msg("name lookup failed")
		return symbol
	}
	if name == "" {
		name = symbol
	}
	r.Learn(symbol, name)
	return name
}

// Annotate fills ann.CompanyName. A name carried by the listing is learned
// rather than looked up.
func (r *Resolver) Annotate(ctx context.Context, ann types.Announcement) types.Announcement {
	if ann.CompanyName != "" {
		r.Learn(ann.Symbol, ann.CompanyName)
		return ann
	}
	if name := r.Resolve(ctx, ann.Symbol); name != ann.Symbol {
		ann.CompanyName = name
	}
	return ann
}

func (r *Resolver) lookup(ctx context.Context, code string) (string, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("quotetype", "EQ")
	q.Set("scripcode", code)
	u.RawQuery = q.Encode()

	body, _, err := fetch(ctx, r.client, u.String(), map[string]string{
		"Accept":  "application/json, text/plain, */*",
		"Referer": "https://www.bseindia.com/",
	})
	if err != nil {
		return "", err
	}
	var header struct {
		FullName string `json:"ScrFullNm"`
	}
	if err := json.Unmarshal(body, &header); err != nil {
		return "", err
	}
	return strings.TrimSpace(header.FullName), nil
}
