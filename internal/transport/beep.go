//go:build cgo

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"

	"cadenza.click/internal/source"
	"cadenza.click/internal/state"
)

// Beep is a reference Transport backed by the beep speaker. It handles
// progressive MP3 file sources only; it exists so the full command surface
// can be exercised end to end without a platform media engine.
type Beep struct {
	mu        sync.Mutex
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	resampler *beep.Resampler
	events    EventFunc
	connected bool
	finished  bool
}

// NewBeep creates a disconnected beep transport.
func NewBeep() *Beep {
	slog.Debug("creating beep transport")
	return &Beep{}
}

// Connect implements Transport. It decodes the source file, initializes the
// speaker for its format, and starts (or pauses) playback at the requested
// offset.
func (b *Beep) Connect(ctx context.Context, req ConnectRequest, events EventFunc) (Controls, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("%w: nil source", ErrUnsupported)
	}
	if req.Source.Type != source.ContentTypeProgressive {
		return nil, fmt.Errorf("%w: content type %s", ErrUnsupported, req.Source.Type)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := strings.TrimPrefix(req.Source.URI, "file://")
	f, err := os.Open(filePath)
	if err != nil {
		slog.Error("failed to open source file", "path", filePath, "error", err)
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		slog.Error("failed to decode mp3 source", "path", filePath, "error", err)
		return nil, fmt.Errorf("failed to decode mp3 source: %w", err)
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(100*time.Millisecond)); err != nil {
		streamer.Close()
		slog.Error("failed to initialize speaker", "error", err)
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	if req.InitialOffsetMS > 0 {
		offset := format.SampleRate.N(time.Duration(req.InitialOffsetMS) * time.Millisecond)
		if err := streamer.Seek(offset); err != nil {
			slog.Warn("initial seek failed, starting from zero",
				"offset_ms", req.InitialOffsetMS, "error", err)
		}
	}

	b.mu.Lock()
	b.streamer = streamer
	b.format = format
	b.resampler = beep.ResampleRatio(4, 1.0, streamer)
	b.ctrl = &beep.Ctrl{Streamer: b.resampler, Paused: !req.IsAutoPlay}
	b.events = events
	b.connected = true
	b.finished = false
	ctrl := b.ctrl
	b.mu.Unlock()

	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		b.mu.Lock()
		b.finished = true
		b.mu.Unlock()
		b.publishProgress()
	})))

	slog.Info("beep transport connected",
		"path", filePath,
		"sample_rate", int(format.SampleRate),
		"autoplay", req.IsAutoPlay,
		"offset_ms", req.InitialOffsetMS)

	// The speaker accepts commands as soon as Play returns.
	if events != nil {
		events(ReadyEvent{Ready: true})
	}

	return &beepControls{b: b}, nil
}

// Disconnect implements Transport.
func (b *Beep) Disconnect() error {
	speaker.Clear()

	b.mu.Lock()
	streamer := b.streamer
	b.streamer = nil
	b.ctrl = nil
	b.resampler = nil
	b.events = nil
	b.connected = false
	b.mu.Unlock()

	if streamer != nil {
		if err := streamer.Close(); err != nil {
			return fmt.Errorf("failed to close streamer: %w", err)
		}
	}
	slog.Debug("beep transport disconnected")
	return nil
}

// publishProgress reads the current position and pushes a progress event.
func (b *Beep) publishProgress() {
	b.mu.Lock()
	events := b.events
	streamer := b.streamer
	format := b.format
	ctrl := b.ctrl
	finished := b.finished
	b.mu.Unlock()

	if events == nil || streamer == nil {
		return
	}

	speaker.Lock()
	position := streamer.Position()
	length := streamer.Len()
	paused := ctrl != nil && ctrl.Paused
	speaker.Unlock()

	phase := state.PlaybackPlaying
	switch {
	case finished:
		phase = state.PlaybackStopped
	case paused:
		phase = state.PlaybackPaused
	}

	events(ProgressEvent{
		State:      phase,
		PositionMS: format.SampleRate.D(position).Milliseconds(),
		DurationMS: format.SampleRate.D(length).Milliseconds(),
	})
}

type beepControls struct {
	b *Beep
}

func (c *beepControls) setPaused(paused bool) error {
	c.b.mu.Lock()
	ctrl := c.b.ctrl
	connected := c.b.connected
	c.b.mu.Unlock()
	if !connected || ctrl == nil {
		return ErrNotConnected
	}

	speaker.Lock()
	ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

func (c *beepControls) Play() error {
	return c.setPaused(false)
}

func (c *beepControls) Pause() error {
	return c.setPaused(true)
}

func (c *beepControls) SeekTo(positionMS int64) error {
	c.b.mu.Lock()
	streamer := c.b.streamer
	format := c.b.format
	connected := c.b.connected
	c.b.mu.Unlock()
	if !connected || streamer == nil {
		return ErrNotConnected
	}

	target := format.SampleRate.N(time.Duration(positionMS) * time.Millisecond)

	speaker.Lock()
	err := streamer.Seek(target)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seek to %dms failed: %w", positionMS, err)
	}
	return nil
}

func (c *beepControls) Send(cmd Command) error {
	c.b.mu.Lock()
	connected := c.b.connected
	resampler := c.b.resampler
	c.b.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	switch payload := cmd.(type) {
	case RefreshProgress:
		c.b.publishProgress()
	case SetPlaybackSpeed:
		if resampler == nil {
			return ErrNotConnected
		}
		speaker.Lock()
		resampler.SetRatio(payload.Speed)
		speaker.Unlock()
		slog.Debug("playback speed applied", "speed", payload.Speed)
	case SetSkipDistance:
		slog.Debug("skip distance received", "distance_ms", payload.DistanceMS)
	case SetIsInForeground:
		// No media session to notify; the flag only matters to platform
		// engines.
		slog.Debug("foreground flag received", "in_foreground", payload.InForeground)
	case UpdateMediaRequest:
		slog.Debug("media request refresh received", "url", payload.Request.URL)
	case UpdatePlaybackMetadata:
		slog.Debug("metadata update received",
			"title", payload.Title, "chapters", len(payload.Chapters))
	default:
		return fmt.Errorf("unknown command tag %q", cmd.Tag())
	}
	return nil
}
