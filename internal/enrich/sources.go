package enrich

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	maxTopics  = 3
	maxSources = 5
	userAgent  = "knowledgebase/1.0 (+https://github.com/seanblong/knowledgebase)"
)

type FetcherConfig struct {
	WikipediaURL  string
	ArxivURL      string
	DuckDuckGoURL string
	Timeout       time.Duration
	// RequestsPerSecond limits each source independently.
	RequestsPerSecond float64
}

func (c *FetcherConfig) setDefaults() {
	if c.WikipediaURL == "" {
		c.WikipediaURL = "https://en.wikipedia.org/api/rest_v1"
	}
	if c.ArxivURL == "" {
		c.ArxivURL = "http://export.arxiv.org/api/query"
	}
	if c.DuckDuckGoURL == "" {
		c.DuckDuckGoURL = "https://api.duckduckgo.com/"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
}

type sourceFunc func(ctx context.Context, topic string) ([]models.ExternalSource, error)

type source struct {
	name    string
	fetch   sourceFunc
	limiter *rate.Limiter
}

// Fetcher looks topics up in public reference services.
type Fetcher struct {
	config  FetcherConfig
	http    *http.Client
	sources []source
	now     func() time.Time
}

func NewFetcher(config FetcherConfig) *Fetcher {
	config.setDefaults()
	f := &Fetcher{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		now:    time.Now,
	}
	limit := rate.Limit(config.RequestsPerSecond)
	f.sources = []source{
		{name: "wikipedia", fetch: f.wikipedia, limiter: rate.NewLimiter(limit, maxTopics)},
		{name: "arxiv", fetch: f.arxiv, limiter: rate.NewLimiter(limit, maxTopics)},
		{name: "duckduckgo", fetch: f.duckDuckGo, limiter: rate.NewLimiter(limit, maxTopics)},
	}
	return f
}

// Fetch queries every source for up to three topics concurrently and
// returns the five most confident passages. A failing source is skipped.
func (f *Fetcher) Fetch(ctx context.Context, topics []string) []models.ExternalSource {
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}

	results := make([][]models.ExternalSource, len(topics)*len(f.sources))
	var g errgroup.Group
	for ti, topic := range topics {
		for si, src := range f.sources {
			g.Go(func() error {
				if err := src.limiter.Wait(ctx); err != nil {
					return nil
				}
				found, err := src.fetch(ctx, topic)
				if err != nil {
					log.Warn().Err(err).Str("source", src.name).Str("topic", topic).Msg("external source failed")
					return nil
				}
				log.Debug().Str("source", src.name).Str("topic", topic).Int("found", len(found)).Msg("external source fetched")
				results[ti*len(f.sources)+si] = found
				return nil
			})
		}
	}
	_ = g.Wait()

	var all []models.ExternalSource
	for _, r := range results {
		all = append(all, r...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Confidence > all[j].Confidence })
	if len(all) > maxSources {
		all = all[:maxSources]
	}
	return all
}

func (f *Fetcher) get(ctx context.Context, u string, v any, decode func(io.Reader, any) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return decode(resp.Body, v)
}

func decodeJSON(r io.Reader, v any) error { return json.NewDecoder(r).Decode(v) }
func decodeXML(r io.Reader, v any) error  { return xml.NewDecoder(r).Decode(v) }

func (f *Fetcher) wikipedia(ctx context.Context, topic string) ([]models.ExternalSource, error) {
	var page struct {
		Title       string `json:"title"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	u := strings.TrimRight(f.config.WikipediaURL, "/") + "/page/summary/" + url.PathEscape(topic)
	if err := f.get(ctx, u, &page, decodeJSON); err != nil {
		return nil, err
	}
	if page.Extract == "" {
		return nil, nil
	}
	title := page.Title
	if title == "" {
		title = topic
	}
	return []models.ExternalSource{{
		Title:      title,
		Content:    page.Extract,
		Source:     "Wikipedia",
		URL:        page.ContentURLs.Desktop.Page,
		Confidence: 0.9,
		Type:       "encyclopedia",
		FetchedAt:  f.now().UTC(),
	}}, nil
}

type atomFeed struct {
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
	} `xml:"http://www.w3.org/2005/Atom entry"`
}

func (f *Fetcher) arxiv(ctx context.Context, topic string) ([]models.ExternalSource, error) {
	q := url.Values{}
	q.Set("search_query", "all:"+topic)
	q.Set("start", "0")
	q.Set("max_results", "2")

	var feed atomFeed
	if err := f.get(ctx, f.config.ArxivURL+"?"+q.Encode(), &feed, decodeXML); err != nil {
		return nil, err
	}

	var out []models.ExternalSource
	for _, e := range feed.Entries {
		title, summary := strings.TrimSpace(e.Title), strings.TrimSpace(e.Summary)
		if title == "" || summary == "" {
			continue
		}
		if r := []rune(summary); len(r) > 1000 {
			summary = string(r[:1000]) + "..."
		}
		out = append(out, models.ExternalSource{
			Title:      title,
			Content:    summary,
			Source:     "arXiv",
			URL:        strings.TrimSpace(e.ID),
			Confidence: 0.8,
			Type:       "academic",
			FetchedAt:  f.now().UTC(),
		})
	}
	return out, nil
}

func (f *Fetcher) duckDuckGo(ctx context.Context, topic string) ([]models.ExternalSource, error) {
	q := url.Values{}
	q.Set("q", topic)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	var ans struct {
		Heading          string
		Abstract         string
		AbstractURL      string
		Definition       string
		DefinitionSource string
		DefinitionURL    string
	}
	if err := f.get(ctx, f.config.DuckDuckGoURL+"?"+q.Encode(), &ans, decodeJSON); err != nil {
		return nil, err
	}

	var out []models.ExternalSource
	if ans.Abstract != "" {
		title := ans.Heading
		if title == "" {
			title = topic
		}
		out = append(out, models.ExternalSource{
			Title:      title,
			Content:    ans.Abstract,
			Source:     "DuckDuckGo Instant Answer",
			URL:        ans.AbstractURL,
			Confidence: 0.7,
			Type:       "instant_answer",
			FetchedAt:  f.now().UTC(),
		})
	}
	if ans.Definition != "" {
		src := ans.DefinitionSource
		if src == "" {
			src = "DuckDuckGo"
		}
		out = append(out, models.ExternalSource{
			Title:      "Definition: " + topic,
			Content:    ans.Definition,
			Source:     src,
			URL:        ans.DefinitionURL,
			Confidence: 0.6,
			Type:       "definition",
			FetchedAt:  f.now().UTC(),
		})
	}
	return out, nil
}
