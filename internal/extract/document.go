package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shanehull/resultalert/internal/types"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxDocumentBytes = 32 << 20
)

func init() {
	// Keep pdfcpu from writing a config directory under $HOME.
	model.ConfigPath = "disable"
}

// Document is a downloaded attachment. Strategies only read it.
type Document struct {
	URL         string
	ContentType string
	Data        []byte
	Pages       int
	Hint        Hint
	// Text published alongside the listing, e.g. NSE's attchmntText.
	ListingText string
}

func (d *Document) IsPDF() bool {
	return bytes.HasPrefix(bytes.TrimLeft(d.Data, " \r\n\t"), []byte("%PDF-"))
}

func (d *Document) IsHTML() bool {
	if strings.Contains(d.ContentType, "html") {
		return true
	}
	head := bytes.ToLower(d.Data[:min(len(d.Data), 512)])
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html"))
}

// HintFor builds the parse hint for an announcement.
func HintFor(ann types.Announcement) Hint {
	ref := ann.Date
	if ref.IsZero() {
		ref = ann.DiscoveredAt
	}
	return Hint{
		Symbol:     ann.Symbol,
		Quarter:    ann.Identity.Quarter,
		FiscalYear: ann.Identity.FiscalYear,
		Reference:  ref,
	}
}

type DownloaderConfig struct {
	Timeout       time.Duration `mapstructure:"download_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Timeout:       4 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  300 * time.Millisecond,
		RatePerSecond: 5,
	}
}

// Downloader fetches attachments with a per-attempt timeout, a small number
// of retries with doubling backoff, and a shared outbound rate limit.
type Downloader struct {
	client  *http.Client
	cfg     DownloaderConfig
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewDownloader(cfg DownloaderConfig, log zerolog.Logger) *Downloader {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Downloader{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}
}

func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	var lastErr error
	backoff := d.cfg.RetryBackoff

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d.log.Debug().Int("attempt", attempt).Err(lastErr).Str("url", rawURL).Msg("retrying download")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		doc, err := d.fetchOnce(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to download %s after %d attempts: %w", rawURL, d.cfg.MaxRetries+1, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL string) (*Document, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/pdf,text/html;q=0.9,*/*;q=0.8")
	if u, err := url.Parse(rawURL); err == nil {
		req.Header.Set("Referer", u.Scheme+"://"+u.Host+"/")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-OK status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	doc := &Document{URL: rawURL, ContentType: resp.Header.Get("Content-Type"), Data: data}
	d.inspect(doc)
	return doc, nil
}

// LoadFile reads a local attachment, used by the extract command.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	ct := ""
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		ct = "text/html"
	case ".pdf":
		ct = "application/pdf"
	}
	doc := &Document{URL: "file://" + path, ContentType: ct, Data: data}
	inspectPDF(doc, zerolog.Nop())
	return doc, nil
}

func (d *Downloader) inspect(doc *Document) {
	inspectPDF(doc, d.log)
}

// inspectPDF records the page count. A document pdfcpu cannot read is still
// handed to the strategies; some of them are more lenient.
func inspectPDF(doc *Document, log zerolog.Logger) {
	if !doc.IsPDF() {
		return
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(bytes.NewReader(doc.Data), conf)
	if err != nil {
		log.Debug().Err(err).Str("url", doc.URL).Msg("pdf inspection failed")
		return
	}
	doc.Pages = pdfCtx.PageCount
}
