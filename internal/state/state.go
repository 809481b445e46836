package state

import "time"

// PlaybackState is the enumerated playback phase reported by the engine.
type PlaybackState int

const (
	// PlaybackNone is the sentinel meaning no content is loaded. Commands
	// that require loaded content treat it as an error condition.
	PlaybackNone PlaybackState = iota
	PlaybackPlaying
	PlaybackPaused
	PlaybackBuffering
	PlaybackStopped
)

// String returns the phase name.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackNone:
		return "none"
	case PlaybackPlaying:
		return "playing"
	case PlaybackPaused:
		return "paused"
	case PlaybackBuffering:
		return "buffering"
	case PlaybackStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Chapter describes one chapter of the loaded content.
type Chapter struct {
	Title         string
	StartOffsetMS int64
	EndOffsetMS   int64
}

// MediaRequest names a playable resource. Identity for "is this the same
// content" is the URL alone; headers are auxiliary transport data.
type MediaRequest struct {
	URL     string
	Headers map[string]string
}

// SameContent reports whether both requests name the same resource.
func (r MediaRequest) SameContent(other MediaRequest) bool {
	return r.URL == other.URL
}

// PlaybackInfo holds the current playback phase and progress. It is nil in
// the snapshot until the engine has reported anything.
type PlaybackInfo struct {
	State      PlaybackState
	PositionMS int64
	DurationMS int64
	Title      string
	Chapters   []Chapter
}

// ChapterAt returns the chapter containing the given position, or -1.
func (p *PlaybackInfo) ChapterAt(positionMS int64) int {
	for i, c := range p.Chapters {
		if positionMS >= c.StartOffsetMS && positionMS < c.EndOffsetMS {
			return i
		}
	}
	return -1
}

// InternalState carries engine bookkeeping that is not user-facing.
type InternalState struct {
	IsPlaybackEngineReady bool
}

// DownloadInfo tracks the download subsystem.
type DownloadInfo struct {
	EngineReady bool
	// Progress maps request URL to completion percent (0-100).
	Progress map[string]float64
}

// Settings are caller-adjustable playback properties. They survive a session
// reset so a value set before readiness still applies to the next session.
type Settings struct {
	Speed        float64
	SkipDistance time.Duration
	InForeground bool
}

// State is one immutable snapshot of the full player state. Snapshots are
// produced only by the store's reducer and are replaced, never mutated.
type State struct {
	PlaybackInfo *PlaybackInfo
	Internal     InternalState
	Download     DownloadInfo
	Request      *MediaRequest
	Settings     Settings
	// Err is the most recently dispatched error, retained until replaced.
	Err error

	// version orders snapshots for per-observer delivery. Monotonic,
	// assigned by the store.
	version uint64
}

// DefaultSpeed is the playback speed applied before any caller override.
const DefaultSpeed = 1.0

// DefaultSkipDistance is the skip distance applied before any caller override.
const DefaultSkipDistance = 30 * time.Second

// Initial returns the default empty snapshot used at session start.
func Initial() State {
	return State{
		Settings: Settings{
			Speed:        DefaultSpeed,
			SkipDistance: DefaultSkipDistance,
		},
	}
}
