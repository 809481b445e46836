// Package download wraps the external download/cache subsystem as a
// capability interface. The durable storage engine itself is an external
// collaborator; this package only defines the contract the orchestrator
// speaks, a memory-backed engine for tests and the CLI, and helpers for
// inspecting the cache directory the engine owns.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cadenza.click/internal/state"
)

// ErrNotInitialized is returned when the engine is used before Init.
var ErrNotInitialized = errors.New("download engine not initialized")

// Engine is the opaque capability interface to the download subsystem.
type Engine interface {
	Init(ctx context.Context) error
	Download(req state.MediaRequest) error
	Remove(req state.MediaRequest) error
	RemoveAll() error
	// RefreshProgress asks the engine to publish fresh progress for every
	// active download. Called from the reconciliation loop.
	RefreshProgress() error
	// CacheSize reports the bytes currently held by the engine's cache.
	CacheSize() (int64, error)
	// ClearCache removes everything the engine has cached.
	ClearCache() error
	Close() error
}

// MemoryEngine is an in-memory Engine. Downloads advance a fixed step on
// every progress refresh; progress is published through the dispatch
// function so it flows through the store like any other mutation.
type MemoryEngine struct {
	mu          sync.Mutex
	initialized bool
	progress    map[string]float64
	sizes       map[string]int64
	dispatch    func(state.Action)

	// StepPercent is how far each refresh advances an active download.
	StepPercent float64
	// BytesPerDownload is the cache size attributed to a finished download.
	BytesPerDownload int64
}

// NewMemoryEngine creates an uninitialized memory engine publishing through
// dispatch.
func NewMemoryEngine(dispatch func(state.Action)) *MemoryEngine {
	return &MemoryEngine{
		dispatch:         dispatch,
		StepPercent:      25,
		BytesPerDownload: 1 << 20,
	}
}

// Init implements Engine.
func (e *MemoryEngine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = true
	if e.progress == nil {
		e.progress = make(map[string]float64)
		e.sizes = make(map[string]int64)
	}
	slog.Debug("memory download engine initialized")
	return nil
}

// Download implements Engine.
func (e *MemoryEngine) Download(req state.MediaRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	if req.URL == "" {
		return fmt.Errorf("cannot download: empty locator")
	}
	if _, exists := e.progress[req.URL]; exists {
		slog.Debug("download already tracked", "url", req.URL)
		return nil
	}
	e.progress[req.URL] = 0
	slog.Info("download started", "url", req.URL)
	return nil
}

// Remove implements Engine.
func (e *MemoryEngine) Remove(req state.MediaRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	delete(e.progress, req.URL)
	delete(e.sizes, req.URL)
	slog.Info("download removed", "url", req.URL)
	return nil
}

// RemoveAll implements Engine.
func (e *MemoryEngine) RemoveAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	count := len(e.progress)
	e.progress = make(map[string]float64)
	e.sizes = make(map[string]int64)
	slog.Info("all downloads removed", "count", count)
	return nil
}

// RefreshProgress implements Engine. Each active download advances one step;
// completion is published at 100 and the cache grows by the download size.
func (e *MemoryEngine) RefreshProgress() error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	type update struct {
		url     string
		percent float64
	}
	var updates []update
	for url, percent := range e.progress {
		if percent >= 100 {
			continue
		}
		percent += e.StepPercent
		if percent >= 100 {
			percent = 100
			e.sizes[url] = e.BytesPerDownload
		}
		e.progress[url] = percent
		updates = append(updates, update{url: url, percent: percent})
	}
	dispatch := e.dispatch
	e.mu.Unlock()

	if dispatch != nil {
		for _, u := range updates {
			dispatch(state.DownloadProgressAction{URL: u.url, Percent: u.percent})
		}
	}
	return nil
}

// CacheSize implements Engine.
func (e *MemoryEngine) CacheSize() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	var total int64
	for _, size := range e.sizes {
		total += size
	}
	return total, nil
}

// ClearCache implements Engine.
func (e *MemoryEngine) ClearCache() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	e.sizes = make(map[string]int64)
	slog.Info("download cache cleared")
	return nil
}

// Close implements Engine.
func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	slog.Debug("memory download engine closed")
	return nil
}
