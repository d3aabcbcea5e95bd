package ai

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes vectors by exact text. Repeated questions skip
// the provider round trip.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with an LRU of the given size. A size <= 0
// returns next unchanged.
func NewCachedEmbedder(next Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return next, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, cache: c}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missIdx = append(missIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		c.cache.Add(missing[j], v)
	}
	return out, nil
}

// EmbedQuery caches query vectors apart from document vectors, since a
// provider may embed the same text differently in each mode.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := "query\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := EmbedQuery(ctx, c.next, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *CachedEmbedder) Dim() int {
	return c.next.Dim()
}
