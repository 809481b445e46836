// Package playback is the orchestration core: it keeps the state store
// synchronized with the asynchronously-initializing playback engine,
// serializes client commands through a readiness gate, runs the periodic
// progress reconciliation loop, and routes every failure through the closed
// error taxonomy.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cadenza.click/internal/download"
	"cadenza.click/internal/source"
	"cadenza.click/internal/state"
	"cadenza.click/internal/transport"
)

// maxConsecutiveTickFailures is how many refresh failures in a row the
// reconciliation loop tolerates before the failure is treated as terminal.
const maxConsecutiveTickFailures = 5

// Config is the per-session configuration bundle carried by BeginPlayback.
type Config struct {
	InitialOffset          time.Duration
	IsAutoPlay             bool
	MaxDurationDiscrepancy int
}

// Options tune the choreographer itself.
type Options struct {
	// TickInterval is the reconciliation period. Zero means the default.
	TickInterval time.Duration
	// ReadyWaitTimeout bounds how long a deferred command waits for engine
	// readiness. Zero preserves the reference behavior: wait forever.
	ReadyWaitTimeout time.Duration
}

// Choreographer is the public command surface of the player core. All state
// mutation flows through its store; all engine interaction flows through its
// transport. Only the choreographer arms or cancels the reconciliation loop.
type Choreographer struct {
	store     *state.Store
	resolver  *source.Resolver
	transport transport.Transport
	downloads download.Engine
	gate      *Gate
	loop      *Loop
	opts      Options

	mu           sync.Mutex
	controls     transport.Controls
	strategy     source.Strategy
	disposables  []func()
	tickFailures int
}

// New creates a choreographer. downloads may be nil when the host provides
// no download subsystem.
func New(store *state.Store, resolver *source.Resolver, tr transport.Transport, downloads download.Engine, opts Options) *Choreographer {
	c := &Choreographer{
		store:     store,
		resolver:  resolver,
		transport: tr,
		downloads: downloads,
		opts:      opts,
	}
	c.gate = NewGate(store, c.currentControls)
	c.loop = NewLoop(opts.TickInterval, c.tick, func(err error) {
		store.Dispatch(state.ErrorAction{
			Err: wrapError(CodeUpdateProgressFailure, "progress reconciliation stopped", err),
		})
	})
	slog.Debug("choreographer created",
		"tick_interval", opts.TickInterval,
		"ready_wait_timeout", opts.ReadyWaitTimeout,
		"has_download_engine", downloads != nil)
	return c
}

// Store exposes the session's state store.
func (c *Choreographer) Store() *state.Store {
	return c.store
}

func (c *Choreographer) currentControls() transport.Controls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls
}

// --- Lifecycle commands. These bypass the readiness gate: they establish or
// tear down the very connection the gate depends on.

// BeginPlayback starts a fresh playback session for the request. Prior
// subscriptions and deferred commands are cleared first, so calling it
// redundantly leaves exactly one live loop and connection. The only
// synchronous failure is an unsupported content type; every other failure is
// observed through the state subscription.
func (c *Choreographer) BeginPlayback(ctx context.Context, req state.MediaRequest, cfg Config) error {
	slog.Info("beginning playback",
		"url", req.URL,
		"initial_offset", cfg.InitialOffset,
		"autoplay", cfg.IsAutoPlay)

	// Fail fast on a locator the resolver cannot classify; this is a
	// configuration fault, not a playback failure.
	strategy, err := c.resolver.Resolve(req)
	if err != nil {
		return err
	}

	c.resetSession()

	// Re-establish from a clean slate: a prior connection is torn down
	// before the fresh one is made.
	c.mu.Lock()
	hadControls := c.controls != nil
	c.controls = nil
	c.strategy = nil
	c.mu.Unlock()
	if hadControls {
		if err := c.transport.Disconnect(); err != nil {
			slog.Warn("disconnect of prior session failed", "error", err)
		}
	}

	c.store.Dispatch(state.ResetAction{})
	c.store.Dispatch(state.MediaRequestUpdateAction{Request: req})

	// Start the reconciliation trigger pipeline before connecting: the
	// loop tolerates a not-yet-connected transport and begins reporting
	// as soon as the connection lands.
	c.loop.Arm(context.Background())

	src, err := strategy.BuildSource(req)
	if err != nil {
		c.store.Dispatch(state.ErrorAction{
			Err: wrapError(CodePlaybackStartFailure, "failed to build playable source", err),
		})
		return nil
	}

	controls, err := c.transport.Connect(ctx, transport.ConnectRequest{
		Source:                 src,
		InitialOffsetMS:        cfg.InitialOffset.Milliseconds(),
		IsAutoPlay:             cfg.IsAutoPlay,
		MaxDurationDiscrepancy: cfg.MaxDurationDiscrepancy,
	}, c.handleEvent)
	if err != nil {
		c.store.Dispatch(state.ErrorAction{
			Err: wrapError(CodePlaybackStartFailure, "engine connection failed", err),
		})
		return nil
	}

	c.mu.Lock()
	c.controls = controls
	c.strategy = strategy
	c.tickFailures = 0
	c.mu.Unlock()

	// Connection confirmed: record the initial phase so commands have a
	// recorded playback state to check. The ready flag itself arrives
	// asynchronously as a ReadyEvent from the engine.
	phase := state.PlaybackPaused
	if cfg.IsAutoPlay {
		phase = state.PlaybackPlaying
	}
	c.store.Dispatch(state.ProgressUpdateAction{
		State:      phase,
		PositionMS: cfg.InitialOffset.Milliseconds(),
	})

	// Connection success may be the first readiness signal; re-arm so the
	// loop interval restarts from it.
	c.loop.Arm(context.Background())

	slog.Info("playback session established", "url", req.URL)
	return nil
}

// EndPlayback stops the current session, flushing one last progress report
// before the loop stops. Safe to call without an active session.
func (c *Choreographer) EndPlayback() {
	slog.Info("ending playback")
	c.loop.Cancel()

	c.mu.Lock()
	hadControls := c.controls != nil
	c.controls = nil
	c.strategy = nil
	c.mu.Unlock()

	if hadControls {
		if err := c.transport.Disconnect(); err != nil {
			slog.Error("transport disconnect failed", "error", err)
		}
	}
	c.store.Dispatch(state.EngineReadyAction{Ready: false})
}

// Deinit tears the whole session down: pending deferred commands, the
// reconciliation loop, the engine connection, and the download engine.
// Idempotent.
func (c *Choreographer) Deinit() {
	slog.Info("deinitializing choreographer")
	c.resetSession()
	c.EndPlayback()

	if c.downloads != nil {
		if err := c.downloads.Close(); err != nil {
			slog.Error("download engine close failed", "error", err)
		}
		c.store.Dispatch(state.DownloadEngineReadyAction{Ready: false})
	}
}

// resetSession clears the cancellation registry and stops the loop, tearing
// down every pending deferred command and subscription from the prior
// session.
func (c *Choreographer) resetSession() {
	c.mu.Lock()
	disposables := c.disposables
	c.disposables = nil
	c.mu.Unlock()

	for _, dispose := range disposables {
		dispose()
	}
	if len(disposables) > 0 {
		slog.Debug("session disposables cleared", "count", len(disposables))
	}
	c.loop.Cancel()
}

func (c *Choreographer) addDisposable(dispose func()) {
	c.mu.Lock()
	c.disposables = append(c.disposables, dispose)
	c.mu.Unlock()
}

// handleEvent marshals asynchronous engine events onto the store's
// serialized dispatch path before they touch shared state.
func (c *Choreographer) handleEvent(e transport.Event) {
	switch event := e.(type) {
	case transport.ProgressEvent:
		c.store.Dispatch(state.ProgressUpdateAction{
			State:      event.State,
			PositionMS: event.PositionMS,
			DurationMS: event.DurationMS,
		})
	case transport.ReadyEvent:
		c.store.Dispatch(state.EngineReadyAction{Ready: event.Ready})
	default:
		slog.Warn("unhandled transport event", "event", fmt.Sprintf("%T", e))
	}
}

// tick is one reconciliation pass: signal the engine to publish fresh
// progress, and let the download subsystem refresh its progress too.
func (c *Choreographer) tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.downloads != nil && c.store.CurrentState().Download.EngineReady {
		if err := c.downloads.RefreshProgress(); err != nil {
			slog.Warn("download progress refresh failed", "error", err)
		}
	}

	controls := c.currentControls()
	if controls == nil {
		// Not connected yet; nothing to refresh. Not a failure.
		return nil
	}

	if err := controls.Send(transport.RefreshProgress{}); err != nil {
		c.mu.Lock()
		c.tickFailures++
		failures := c.tickFailures
		c.mu.Unlock()

		if failures >= maxConsecutiveTickFailures {
			return fmt.Errorf("%w: refresh progress failed %d times: %v",
				ErrTerminalTick, failures, err)
		}
		return fmt.Errorf("refresh progress: %w", err)
	}

	c.mu.Lock()
	c.tickFailures = 0
	c.mu.Unlock()
	return nil
}

// --- Immediate-or-error commands. Each runs now or dispatches exactly one
// classified error; the caller never sees an exception.

// PlayOrPause toggles between playing and paused. The toggled phase is
// recorded immediately after the engine accepts it; waiting for the next
// reconciliation tick would leave the snapshot stale and make a second
// toggle repeat the same command.
func (c *Choreographer) PlayOrPause() {
	c.gate.RunIfReady(func(controls transport.Controls) error {
		info := c.store.CurrentState().PlaybackInfo
		target := state.PlaybackPlaying
		action := controls.Play
		if info.State == state.PlaybackPlaying {
			target = state.PlaybackPaused
			action = controls.Pause
		}
		slog.Debug("toggling playback", "from", info.State, "to", target)
		if err := action(); err != nil {
			return err
		}
		c.store.Dispatch(state.ProgressUpdateAction{
			State:      target,
			PositionMS: info.PositionMS,
			DurationMS: info.DurationMS,
		})
		return nil
	})
}

// SeekTo moves playback to an absolute position in milliseconds.
func (c *Choreographer) SeekTo(positionMS int64) {
	c.gate.RunIfReady(func(controls transport.Controls) error {
		slog.Debug("seeking", "position_ms", positionMS)
		return controls.SeekTo(positionMS)
	})
}

// SeekWithinChapter moves playback to a percentage point of the current
// chapter.
func (c *Choreographer) SeekWithinChapter(percent float64) {
	c.gate.RunIfReady(func(controls transport.Controls) error {
		info := c.store.CurrentState().PlaybackInfo
		idx := info.ChapterAt(info.PositionMS)
		if idx < 0 {
			return fmt.Errorf("no chapter at position %dms", info.PositionMS)
		}
		chapter := info.Chapters[idx]
		span := chapter.EndOffsetMS - chapter.StartOffsetMS
		target := chapter.StartOffsetMS + int64(percent/100*float64(span))
		slog.Debug("seeking within chapter",
			"chapter", chapter.Title, "percent", percent, "target_ms", target)
		return controls.SeekTo(target)
	})
}

// SkipForward jumps ahead by the configured skip distance.
func (c *Choreographer) SkipForward() {
	c.skip(1)
}

// SkipBackward jumps back by the configured skip distance.
func (c *Choreographer) SkipBackward() {
	c.skip(-1)
}

func (c *Choreographer) skip(direction int64) {
	c.gate.RunIfReady(func(controls transport.Controls) error {
		snapshot := c.store.CurrentState()
		info := snapshot.PlaybackInfo
		target := info.PositionMS + direction*snapshot.Settings.SkipDistance.Milliseconds()
		if target < 0 {
			target = 0
		}
		if info.DurationMS > 0 && target > info.DurationMS {
			target = info.DurationMS
		}
		slog.Debug("skipping", "direction", direction, "target_ms", target)
		return controls.SeekTo(target)
	})
}

// NextChapter seeks to the start of the following chapter.
func (c *Choreographer) NextChapter() {
	c.chapterNav(1)
}

// PreviousChapter seeks to the start of the preceding chapter.
func (c *Choreographer) PreviousChapter() {
	c.chapterNav(-1)
}

func (c *Choreographer) chapterNav(direction int) {
	c.gate.RunIfReady(func(controls transport.Controls) error {
		info := c.store.CurrentState().PlaybackInfo
		idx := info.ChapterAt(info.PositionMS)
		if idx < 0 {
			return fmt.Errorf("no chapter at position %dms", info.PositionMS)
		}
		target := idx + direction
		if target < 0 || target >= len(info.Chapters) {
			slog.Debug("chapter navigation out of range", "target", target)
			return nil
		}
		slog.Debug("navigating chapter",
			"from", info.Chapters[idx].Title, "to", info.Chapters[target].Title)
		return controls.SeekTo(info.Chapters[target].StartOffsetMS)
	})
}

// --- Deferred commands. The property mutation lands in the store
// immediately; the engine command waits for readiness and fires exactly
// once.

// SetPlaybackSpeed sets the playback speed multiplier.
func (c *Choreographer) SetPlaybackSpeed(speed float64) {
	c.store.Dispatch(state.PlaybackSpeedAction{Speed: speed})
	c.deferCommand(transport.SetPlaybackSpeed{Speed: speed})
}

// SetSkipDistance sets the skip-forward/backward distance.
func (c *Choreographer) SetSkipDistance(distance time.Duration) {
	c.store.Dispatch(state.SkipDistanceAction{Distance: distance})
	c.deferCommand(transport.SetSkipDistance{DistanceMS: distance.Milliseconds()})
}

// SetIsInForeground records whether the host app is foregrounded.
func (c *Choreographer) SetIsInForeground(inForeground bool) {
	c.store.Dispatch(state.ForegroundAction{InForeground: inForeground})
	c.deferCommand(transport.SetIsInForeground{InForeground: inForeground})
}

func (c *Choreographer) deferCommand(cmd transport.Command) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.ReadyWaitTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.opts.ReadyWaitTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.addDisposable(cancel)

	slog.Debug("deferring command until engine ready", "tag", cmd.Tag())
	c.gate.RunWhenReady(ctx, func(controls transport.Controls) error {
		return controls.Send(cmd)
	})
}

// --- Request and metadata updates.

// UpdateMediaRequest refreshes the current request, typically after a header
// rotation. Updating to different content than is loaded is a caller
// contract violation and is reported as an error action.
func (c *Choreographer) UpdateMediaRequest(req state.MediaRequest) {
	snapshot := c.store.CurrentState()
	if snapshot.Request != nil && !snapshot.Request.SameContent(req) {
		c.store.Dispatch(state.ErrorAction{
			Err: newError(CodeUnexpected,
				fmt.Sprintf("request update names different content: %s", req.URL)),
		})
		return
	}

	c.store.Dispatch(state.MediaRequestUpdateAction{Request: req})

	c.mu.Lock()
	strategy := c.strategy
	c.mu.Unlock()
	if strategy != nil {
		if err := strategy.RefreshHeaders(req); err != nil {
			slog.Warn("source header refresh failed", "url", req.URL, "error", err)
		}
	}

	c.gate.RunIfReady(func(controls transport.Controls) error {
		return controls.Send(transport.UpdateMediaRequest{Request: req})
	})
}

// UpdateMetadata replaces the playback title and chapter list.
func (c *Choreographer) UpdateMetadata(title string, chapters []state.Chapter) {
	c.store.Dispatch(state.MetadataUpdateAction{Title: title, Chapters: chapters})
	c.gate.RunIfReady(func(controls transport.Controls) error {
		return controls.Send(transport.UpdatePlaybackMetadata{Title: title, Chapters: chapters})
	})
}

// --- Download commands.

// InitDownloadEngine initializes the download subsystem and re-arms the
// reconciliation loop, since download init may be the first readiness
// signal.
func (c *Choreographer) InitDownloadEngine(ctx context.Context) {
	if c.downloads == nil {
		c.store.Dispatch(state.ErrorAction{
			Err: newError(CodeEngineNotInitialized, "no download engine configured"),
		})
		return
	}
	if err := c.downloads.Init(ctx); err != nil {
		c.store.Dispatch(state.ErrorAction{
			Err: wrapError(CodeEngineNotInitialized, "download engine init failed", err),
		})
		return
	}
	c.store.Dispatch(state.DownloadEngineReadyAction{Ready: true})
	c.loop.Arm(context.Background())
	slog.Info("download engine initialized")
}

// DeinitDownloadEngine shuts the download subsystem down.
func (c *Choreographer) DeinitDownloadEngine() {
	if c.downloads == nil {
		return
	}
	if err := c.downloads.Close(); err != nil {
		slog.Error("download engine close failed", "error", err)
	}
	c.store.Dispatch(state.DownloadEngineReadyAction{Ready: false})
}

// Download begins downloading the request's content.
func (c *Choreographer) Download(req state.MediaRequest) {
	c.withDownloadEngine("download", func(engine download.Engine) error {
		return engine.Download(req)
	})
}

// RemoveDownload removes one download.
func (c *Choreographer) RemoveDownload(req state.MediaRequest) {
	c.withDownloadEngine("remove download", func(engine download.Engine) error {
		return engine.Remove(req)
	})
}

// RemoveAllDownloads removes every download.
func (c *Choreographer) RemoveAllDownloads() {
	c.withDownloadEngine("remove all downloads", func(engine download.Engine) error {
		return engine.RemoveAll()
	})
}

func (c *Choreographer) withDownloadEngine(op string, fn func(download.Engine) error) {
	if c.downloads == nil || !c.store.CurrentState().Download.EngineReady {
		c.store.Dispatch(state.ErrorAction{
			Err: newError(CodeEngineNotInitialized,
				fmt.Sprintf("download engine used before init: %s", op)),
		})
		return
	}
	if err := fn(c.downloads); err != nil {
		c.store.Dispatch(state.ErrorAction{
			Err: wrapError(CodeUnexpected, op+" failed", err),
		})
	}
}

// CacheSize reports the download cache size in bytes. As a query it returns
// its result synchronously instead of going through the store.
func (c *Choreographer) CacheSize() (int64, error) {
	if c.downloads == nil {
		return 0, newError(CodeEngineNotInitialized, "no download engine configured")
	}
	return c.downloads.CacheSize()
}

// ClearCache empties the download cache.
func (c *Choreographer) ClearCache() error {
	if c.downloads == nil {
		return newError(CodeEngineNotInitialized, "no download engine configured")
	}
	return c.downloads.ClearCache()
}

// --- Subscriptions.

// StateChanges returns the live snapshot stream, latest snapshot first. The
// channel closes when ctx is done.
func (c *Choreographer) StateChanges(ctx context.Context) <-chan state.State {
	return c.store.Subscribe(ctx)
}

// AddListener registers a synchronous state listener and returns its
// unsubscribe function.
func (c *Choreographer) AddListener(fn func(state.State)) (cancel func()) {
	return c.store.Observe(fn)
}
