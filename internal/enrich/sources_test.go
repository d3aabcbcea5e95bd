package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type referenceServer struct {
	*httptest.Server
	failArxiv bool
	wikiHits  atomic.Int32
}

func newReferenceServer(t *testing.T, failArxiv bool) *referenceServer {
	rs := &referenceServer{failArxiv: failArxiv}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /wiki/page/summary/{topic}", func(w http.ResponseWriter, r *http.Request) {
		rs.wikiHits.Add(1)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		topic := r.PathValue("topic")
		if topic == "unknown" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":   "Wiki " + topic,
			"extract": "About " + topic,
			"content_urls": map[string]any{
				"desktop": map[string]string{"page": "https://en.wikipedia.org/wiki/" + topic},
			},
		})
	})

	mux.HandleFunc("GET /arxiv", func(w http.ResponseWriter, r *http.Request) {
		if rs.failArxiv {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("max_results"))
		topic := strings.TrimPrefix(q.Get("search_query"), "all:")
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1</id>
    <title>
      Paper one on %s
    </title>
    <summary>%s</summary>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2</id>
    <title>Paper two</title>
    <summary>Short abstract.</summary>
  </entry>
</feed>`, topic, strings.Repeat("a", 1200))
	})

	mux.HandleFunc("GET /ddg", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		topic := q.Get("q")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Heading":          "DDG " + topic,
			"Abstract":         "Abstract of " + topic,
			"AbstractURL":      "https://ddg/" + topic,
			"Definition":       "Definition of " + topic,
			"DefinitionSource": "Merriam-Webster",
		})
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *referenceServer) fetcher() *Fetcher {
	return NewFetcher(FetcherConfig{
		WikipediaURL:      rs.URL + "/wiki",
		ArxivURL:          rs.URL + "/arxiv",
		DuckDuckGoURL:     rs.URL + "/ddg",
		RequestsPerSecond: 100,
	})
}

func TestFetcher_SingleTopic(t *testing.T) {
	rs := newReferenceServer(t, false)

	got := rs.fetcher().Fetch(context.Background(), []string{"golang"})
	require.Len(t, got, 5)

	assert.Equal(t, "Wiki golang", got[0].Title)
	assert.Equal(t, "Wikipedia", got[0].Source)
	assert.Equal(t, "https://en.wikipedia.org/wiki/golang", got[0].URL)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, "encyclopedia", got[0].Type)
	assert.False(t, got[0].FetchedAt.IsZero())

	assert.Equal(t, "Paper one on golang", got[1].Title)
	assert.Equal(t, 0.8, got[1].Confidence)
	assert.Equal(t, strings.Repeat("a", 1000)+"...", got[1].Content)
	assert.Equal(t, "http://arxiv.org/abs/1", got[1].URL)
	assert.Equal(t, "Short abstract.", got[2].Content)

	assert.Equal(t, "DuckDuckGo Instant Answer", got[3].Source)
	assert.Equal(t, 0.7, got[3].Confidence)
	assert.Equal(t, "Definition: golang", got[4].Title)
	assert.Equal(t, "Merriam-Webster", got[4].Source)
	assert.Equal(t, 0.6, got[4].Confidence)
}

func TestFetcher_SkipsFailingSources(t *testing.T) {
	rs := newReferenceServer(t, true)

	got := rs.fetcher().Fetch(context.Background(), []string{"alpha", "unknown"})
	require.Len(t, got, 5)
	assert.Equal(t, "Wiki alpha", got[0].Title)
	assert.Equal(t, "Abstract of alpha", got[1].Content)
	assert.Equal(t, "Abstract of unknown", got[2].Content)
	assert.Equal(t, "Definition of alpha", got[3].Content)
	assert.Equal(t, "Definition of unknown", got[4].Content)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
	}
}

func TestFetcher_LimitsTopics(t *testing.T) {
	rs := newReferenceServer(t, false)

	got := rs.fetcher().Fetch(context.Background(), []string{"a", "b", "c", "d"})
	assert.Len(t, got, 5)
	assert.EqualValues(t, 3, rs.wikiHits.Load())
	for _, s := range got {
		assert.NotContains(t, s.Title, " d")
	}
}

func TestFetcher_Empty(t *testing.T) {
	rs := newReferenceServer(t, false)
	assert.Empty(t, rs.fetcher().Fetch(context.Background(), nil))
}
