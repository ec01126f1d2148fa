package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shanehull/resultalert/internal/types"
)

const (
	DefaultBSEURL    = "https://api.bseindia.com/BseIndiaAPI/api/AnnSubCategoryGetData/w?pageno=1&strCat=Result&strPrevDate=&strScrip=&strSearch=P&strToDate=&strType=C"
	bseAttachmentURL = "https://www.bseindia.com/xml-data/corpfiling/AttachLive/"
)

// BSE polls the BSE announcements API. Entries are keyed by scrip code.
type BSE struct {
	name   string
	url    string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// scripCode is a JSON number in some responses and a string in others.
type scripCode string

func (c *scripCode) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		return nil
	}
	*c = scripCode(b)
	return nil
}

type bseItem struct {
	ScripCode      scripCode `json:"SCRIP_CD"`
	Headline       string    `json:"HEADLINE"`
	More           string    `json:"MORE"`
	SubCategory    string    `json:"SUBCATNAME"`
	LongName       string    `json:"SLONGNAME"`
	NewsDate       string    `json:"NEWS_DT"`
	DateTime       string    `json:"DT_TM"`
	AttachmentName string    `json:"ATTACHMENTNAME"`
}

func NewBSE(cfg Config, log zerolog.Logger) *BSE {
	url := cfg.URL
	if url == "" {
		url = DefaultBSEURL
	}
	return &BSE{
		name:   nameOr(cfg.Name, KindBSE),
		url:    url,
		client: &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		log:    log.With().Str("source", nameOr(cfg.Name, KindBSE)).Logger(),
		now:    time.Now,
	}
}

func (s *BSE) Name() string { return s.name }

func (s *BSE) Kind() string { return KindBSE }

func (s *BSE) Poll(ctx context.Context) ([]types.Announcement, error) {
	body, _, err := fetch(ctx, s.client, s.url, map[string]string{
		"Accept":  "application/json, text/plain, */*",
		"Referer": "https://www.bseindia.com/",
		"Origin":  "https://www.bseindia.com",
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Table []bseItem `json:"Table"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bse response: %w", err)
	}

	now := s.now()
	var out []types.Announcement
	for _, it := range resp.Table {
		headline := it.Headline
		if headline == "" {
			headline = it.More
		}
		if it.SubCategory != "" && !strings.Contains(strings.ToLower(headline), strings.ToLower(it.SubCategory)) {
			headline += " " + it.SubCategory
		}
		if it.AttachmentName == "" {
			continue
		}

		dt := it.NewsDate
		if dt == "" {
			dt = it.DateTime
		}
		date := parseTime(dt, "2006-01-02T15:04:05", "2006-01-02 15:04:05")

		ann, ok := newAnnouncement(s.name, string(it.ScripCode), date, headline, bseAttachmentURL+it.AttachmentName, it.LongName, now)
		if !ok {
			s.log.Debug().Str("scrip", string(it.ScripCode)).Msg("dropping unusable entry")
			continue
		}
		ann.CompanyName = strings.TrimSpace(it.LongName)
		out = append(out, ann)
	}
	return out, nil
}
