package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/resultalert/internal/types"
)

func headerServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "EQ", r.URL.Query().Get("quotetype"))
		switch r.URL.Query().Get("scripcode") {
		case "532540":
			fmt.Fprint(w, `{"ScrFullNm":"Tata Consultancy Services Ltd","ScripID":"TCS"}`)
		case "999999":
			fmt.Fprint(w, `{"ScrFullNm":""}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolverLooksUpScripCodesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := headerServer(t, &hits)
	r := NewResolver(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, "Tata Consultancy Services Ltd", r.Resolve(ctx, "532540"))
	assert.Equal(t, "Tata Consultancy Services Ltd", r.Resolve(ctx, " 532540 "))
	assert.Equal(t, int32(1), hits.Load())

	assert.Equal(t, "999999", r.Resolve(ctx, "999999"))
	assert.Equal(t, "999999", r.Resolve(ctx, "999999"))
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolverLeavesTickersAlone(t *testing.T) {
	var hits atomic.Int32
	srv := headerServer(t, &hits)
	r := NewResolver(srv.URL, time.Second, zerolog.Nop())

	assert.Equal(t, "RELIANCE", r.Resolve(context.Background(), "reliance"))
	assert.Zero(t, hits.Load())
}

func TestResolverFallsBackOnFailure(t *testing.T) {
	var hits atomic.Int32
	srv := headerServer(t, &hits)
	r := NewResolver(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, "500001", r.Resolve(ctx, "500001"))
	// failures are not cached
	assert.Equal(t, "500001", r.Resolve(ctx, "500001"))
	assert.Equal(t, int32(2), hits.Load())

	offline := NewResolver("", time.Second, zerolog.Nop())
	assert.Equal(t, "532540", offline.Resolve(ctx, "532540"))
}

func TestResolverAnnotateLearnsFromListings(t *testing.T) {
	r := NewResolver("", time.Second, zerolog.Nop())
	ctx := context.Background()

	listed := resultAnn("500325")
	listed.CompanyName = "Reliance Industries Ltd"
	got := r.Annotate(ctx, listed)
	assert.Equal(t, "Reliance Industries Ltd", got.CompanyName)

	bare := r.Annotate(ctx, resultAnn("500325"))
	assert.Equal(t, "Reliance Industries Ltd", bare.CompanyName)
	assert.Equal(t, "Reliance Industries Ltd (500325)", bare.DisplayName())

	ticker := r.Annotate(ctx, resultAnn("TCS"))
	assert.Empty(t, ticker.CompanyName)
	assert.Equal(t, "TCS", ticker.DisplayName())
}

func TestPollerAnnotatesWithResolver(t *testing.T) {
	var hits atomic.Int32
	srv := headerServer(t, &hits)

	var got []string
	p := NewPoller(PollerConfig{Interval: time.Second}, nil, func(_ context.Context, ann types.Announcement) {
		got = append(got, ann.DisplayName())
	}, nil, zerolog.Nop())
	p.UseResolver(NewResolver(srv.URL, time.Second, zerolog.Nop()))

	src := &stubSource{name: "bse", anns: []types.Announcement{resultAnn("532540"), resultAnn("INFY")}}
	n, err := p.PollOnce(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Tata Consultancy Services Ltd (532540)", "INFY"}, got)
}
