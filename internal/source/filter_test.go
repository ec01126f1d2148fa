package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shanehull/resultalert/internal/types"
)

func TestIsQuarterlyResult(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Financial Results for the quarter ended December 31, 2024", true},
		{"Outcome of Board Meeting", true},
		{"Q3 FY25 results", true},
		{"Newspaper Publication of financial results", false},
		{"Intimation of record date for interim dividend", false},
		{"Postal ballot notice", false},
		{"Change in directors", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuarterlyResult(tt.text))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		desc, text, kind string
		want             types.AnnouncementType
	}{
		{"Financial Results for the quarter ended December 31, 2024", "", KindNSE, types.QuarterlyResult},
		{"Transcript of earnings call for Q3", "", KindBSE, types.EarningsCall},
		{"Allotment of shares on preferential basis", "", KindNSE, types.CorporateAction},
		{"HDFC Bank shares rise after Q3 results; here's why", "", KindRSS, types.NewsArticle},
		{"Change in registered office address", "", KindNSE, types.OtherType},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, conf := Classify(tt.desc, tt.text, tt.kind)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestFilterAccept(t *testing.T) {
	results := types.Announcement{Symbol: "INFY", Description: "Financial Results Q2 FY26"}
	notice := types.Announcement{Symbol: "INFY", Description: "Newspaper publication"}

	f := NewFilter(DefaultFilterConfig())
	typ, ok := f.Accept(results, KindNSE)
	assert.True(t, ok)
	assert.Equal(t, types.QuarterlyResult, typ)
	_, ok = f.Accept(notice, KindNSE)
	assert.False(t, ok)

	watch := NewFilter(FilterConfig{Watchlist: []string{" tcs "}})
	_, ok = watch.Accept(results, KindNSE)
	assert.False(t, ok, "symbol outside the watchlist")
	results.Symbol = "TCS"
	_, ok = watch.Accept(results, KindNSE)
	assert.True(t, ok)

	news := NewFilter(FilterConfig{Types: []string{"quarterly_result", "news"}})
	_, ok = news.Accept(types.Announcement{Symbol: "HDFC", Description: "HDFC Bank shares rise after Q3 profit jumps"}, KindRSS)
	assert.True(t, ok)
}
