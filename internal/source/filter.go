package source

import (
	"strings"

	"github.com/shanehull/resultalert/internal/types"
)

// Administrative notices that mention results without containing them.
var excludeKeywords = []string{
	"newspaper publication",
	"newspaper advertisement",
	"published in newspaper",
	"publication of financial results",
	"newspaper notice",
	"press release publication",
	"advertisement in newspaper",
	"notice published in",
	"copy of newspaper",
	"intimation of newspaper publication",
	"submission of newspaper",
	"compliance certificate",
	"record date",
	"book closure",
	"agm notice",
	"egm notice",
	"intimation of loss of share certificate",
	"duplicate share certificate",
	"postal ballot",
	"e-voting",
}

var resultKeywords = []string{
	"financial result",
	"quarterly result",
	"quarterly and",
	"unaudited financial",
	"unaudited results",
	"audited results",
	"standalone results",
	"consolidated results",
	"q1", "q2", "q3", "q4",
	"quarter ended",
	"half year ended",
	"year ended",
	"fy2", "fy3",
	"outcome of board meeting",
	"submission of financial results",
	"intimation of financial results",
	"approved financial results",
	"revenue", "profit", "loss", "ebitda", "eps",
	"pat", "pbt",
}

// IsQuarterlyResult is the cheap keyword gate applied to every listing
// entry before classification.
func IsQuarterlyResult(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range excludeKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, kw := range resultKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var (
	classResultKeywords = []string{
		"financial result", "unaudited results", "audited results",
		"quarterly results", "half year results", "annual results",
		"outcome of board meeting",
		"q1 results", "q2 results", "q3 results", "q4 results",
		"fy2", "quarter ended",
	}
	earningsCallKeywords = []string{
		"transcript", "earnings call", "conference call", "investor call",
		"concall", "earnings group call", "analyst meet",
	}
	corporateActionKeywords = []string{
		"acquisition", "merger", "takeover", "buyback", "rights issue",
		"bonus issue", "dividend", "disclosure under regulation",
		"substantial acquisition", "shareholding", "allotment", "debenture",
		"preferential", "open offer",
	}
	newsKeywords = []string{
		"rebounds", "surges", "plunges", "stock price", "shares rise",
		"shares fall", "market movement", "analysts", "upgrade", "downgrade",
		"target price", "here's why", "tumbles", "soars", "pares",
		"intraday", "today's", "on the back of", "jumps", "drops",
		"order book", "secures", "wins contract", "bags order",
	}
	movementWords = []string{"rebounds", "surges", "plunges", "pares", "rises", "falls"}
	newsOutlets   = []string{"livemint", "economic times", "et markets", "moneycontrol"}
)

// Classify scores the description (and the first part of the attachment
// text) against each announcement type and returns the winner with a
// confidence in [0,1]. Entries from news feeds are biased towards
// NEWS so that articles about results are not taken for the results.
func Classify(description, attachmentText, sourceKind string) (types.AnnouncementType, float64) {
	if len(attachmentText) > 1000 {
		attachmentText = attachmentText[:1000]
	}
	text := strings.ToLower(description + " " + attachmentText)

	scores := map[types.AnnouncementType]float64{}
	isNewsFeed := sourceKind == KindRSS
	if isNewsFeed {
		scores[types.NewsArticle] += 3
	}

	scores[types.EarningsCall] += 2 * float64(countMatches(text, earningsCallKeywords))
	scores[types.CorporateAction] += 1.5 * float64(countMatches(text, corporateActionKeywords))

	news := countMatches(text, newsKeywords)
	scores[types.NewsArticle] += 2 * float64(news)
	if news >= 3 {
		scores[types.NewsArticle] += 2
	}
	if countMatches(text, newsOutlets) > 0 {
		scores[types.NewsArticle] += 2
	}
	if strings.Contains(text, "?") {
		scores[types.NewsArticle]++
	}

	scores[types.QuarterlyResult] += float64(countMatches(text, classResultKeywords))
	if strings.Contains(text, "regulation 33") || strings.Contains(text, "regulation 30") {
		if strings.Contains(text, "results") || strings.Contains(text, "financial") {
			scores[types.QuarterlyResult]++
		} else {
			scores[types.CorporateAction]++
		}
	}

	if isNewsFeed && countMatches(text, movementWords) > 0 && countMatches(text, []string{"q1", "q2", "q3", "q4", "quarter"}) > 0 {
		scores[types.NewsArticle] += 2
		scores[types.QuarterlyResult]--
	}

	// Ties go to the first type in this order.
	order := []types.AnnouncementType{types.QuarterlyResult, types.EarningsCall, types.CorporateAction, types.NewsArticle}
	winner, best := types.OtherType, 0.0
	for _, t := range order {
		if scores[t] > best {
			winner, best = t, scores[t]
		}
	}
	if best <= 0 {
		return types.OtherType, 0
	}
	return winner, min(best/8, 1)
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// FilterConfig selects which announcements leave the poller.
type FilterConfig struct {
	// Watchlist restricts symbols when non-empty.
	Watchlist []string `mapstructure:"watchlist"`
	// Types lists the announcement types that are processed.
	Types []string `mapstructure:"types"`
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{Types: []string{string(types.QuarterlyResult)}}
}

type Filter struct {
	watchlist map[string]struct{}
	types     map[types.AnnouncementType]struct{}
}

func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{
		watchlist: make(map[string]struct{}, len(cfg.Watchlist)),
		types:     make(map[types.AnnouncementType]struct{}, len(cfg.Types)),
	}
	for _, s := range cfg.Watchlist {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			f.watchlist[s] = struct{}{}
		}
	}
	for _, t := range cfg.Types {
		f.types[types.AnnouncementType(strings.ToUpper(strings.TrimSpace(t)))] = struct{}{}
	}
	if len(f.types) == 0 {
		f.types[types.QuarterlyResult] = struct{}{}
	}
	return f
}

// Accept reports whether ann should enter the pipeline, and its type.
func (f *Filter) Accept(ann types.Announcement, sourceKind string) (types.AnnouncementType, bool) {
	if len(f.watchlist) > 0 {
		if _, ok := f.watchlist[ann.Symbol]; !ok {
			return types.OtherType, false
		}
	}
	if !IsQuarterlyResult(ann.Description + " " + ann.AttachmentText) {
		return types.OtherType, false
	}
	t, _ := Classify(ann.Description, ann.AttachmentText, sourceKind)
	_, ok := f.types[t]
	return t, ok
}
