package source

import (
	"fmt"
	"log/slog"
	"sync"

	"cadenza.click/internal/state"
)

// Source is the playable handle a strategy builds for one request. The
// backend transport consumes it opaquely.
type Source struct {
	Request state.MediaRequest
	Type    ContentType
	// URI is the locator the transport should open. For progressive
	// content it equals the request URL; for segmented content it is the
	// manifest locator.
	URI string
	// Headers are the transport headers to present, refreshed in place by
	// RefreshHeaders.
	Headers map[string]string
}

// Strategy turns a media request into a playable source. Each strategy
// caches the source it built per request URL, and never hands a source built
// for one request to another.
type Strategy interface {
	ContentType() ContentType
	BuildSource(req state.MediaRequest) (*Source, error)
	RefreshHeaders(req state.MediaRequest) error
}

// sourceCache is the per-strategy request→source cache shared by both
// strategy implementations.
type sourceCache struct {
	mu      sync.Mutex
	sources map[string]*Source
}

func newSourceCache() *sourceCache {
	return &sourceCache{sources: make(map[string]*Source)}
}

func (c *sourceCache) get(url string) (*Source, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	src, ok := c.sources[url]
	return src, ok
}

func (c *sourceCache) put(url string, src *Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[url] = src
}

// hlsStrategy builds sources for segmented (manifest-driven) streams.
type hlsStrategy struct {
	cache *sourceCache
}

func newHLSStrategy() *hlsStrategy {
	return &hlsStrategy{cache: newSourceCache()}
}

func (s *hlsStrategy) ContentType() ContentType {
	return ContentTypeHLS
}

func (s *hlsStrategy) BuildSource(req state.MediaRequest) (*Source, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("cannot build segmented source: empty locator")
	}

	if cached, ok := s.cache.get(req.URL); ok {
		slog.Debug("reusing cached segmented source", "url", req.URL)
		return cached, nil
	}

	src := &Source{
		Request: req,
		Type:    ContentTypeHLS,
		URI:     req.URL,
		Headers: cloneHeaders(req.Headers),
	}
	s.cache.put(req.URL, src)

	slog.Debug("built segmented source", "url", req.URL)
	return src, nil
}

func (s *hlsStrategy) RefreshHeaders(req state.MediaRequest) error {
	src, ok := s.cache.get(req.URL)
	if !ok {
		return fmt.Errorf("no segmented source built for %s", req.URL)
	}
	src.Headers = cloneHeaders(req.Headers)
	slog.Debug("refreshed segmented source headers", "url", req.URL)
	return nil
}

// progressiveStrategy builds sources for single-file content.
type progressiveStrategy struct {
	cache *sourceCache
}

func newProgressiveStrategy() *progressiveStrategy {
	return &progressiveStrategy{cache: newSourceCache()}
}

func (s *progressiveStrategy) ContentType() ContentType {
	return ContentTypeProgressive
}

func (s *progressiveStrategy) BuildSource(req state.MediaRequest) (*Source, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("cannot build progressive source: empty locator")
	}

	if cached, ok := s.cache.get(req.URL); ok {
		slog.Debug("reusing cached progressive source", "url", req.URL)
		return cached, nil
	}

	src := &Source{
		Request: req,
		Type:    ContentTypeProgressive,
		URI:     req.URL,
		Headers: cloneHeaders(req.Headers),
	}
	s.cache.put(req.URL, src)

	slog.Debug("built progressive source", "url", req.URL)
	return src, nil
}

func (s *progressiveStrategy) RefreshHeaders(req state.MediaRequest) error {
	src, ok := s.cache.get(req.URL)
	if !ok {
		return fmt.Errorf("no progressive source built for %s", req.URL)
	}
	src.Headers = cloneHeaders(req.Headers)
	slog.Debug("refreshed progressive source headers", "url", req.URL)
	return nil
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	clone := make(map[string]string, len(h))
	for k, v := range h {
		clone[k] = v
	}
	return clone
}
