package state

import "time"

// Action is one intended state mutation. The set of actions is closed: every
// variant lives in this file and implements the unexported marker method, so
// the reducer's switch is exhaustive over everything the store can receive.
type Action interface {
	isAction()
}

// ErrorAction records a classified failure in the snapshot's error field.
type ErrorAction struct {
	Err error
}

// MediaRequestUpdateAction replaces the current media request.
type MediaRequestUpdateAction struct {
	Request MediaRequest
}

// MetadataUpdateAction replaces the playback title and chapter list.
type MetadataUpdateAction struct {
	Title    string
	Chapters []Chapter
}

// SkipDistanceAction sets the skip-forward/backward distance.
type SkipDistanceAction struct {
	Distance time.Duration
}

// PlaybackSpeedAction sets the playback speed multiplier.
type PlaybackSpeedAction struct {
	Speed float64
}

// ForegroundAction records whether the host app is in the foreground.
type ForegroundAction struct {
	InForeground bool
}

// ProgressUpdateAction applies a fresh progress report from the engine.
type ProgressUpdateAction struct {
	State      PlaybackState
	PositionMS int64
	DurationMS int64
}

// EngineReadyAction flips the playback-engine readiness flag.
type EngineReadyAction struct {
	Ready bool
}

// DownloadEngineReadyAction flips the download-engine readiness flag.
type DownloadEngineReadyAction struct {
	Ready bool
}

// DownloadProgressAction updates completion percent for one download.
type DownloadProgressAction struct {
	URL     string
	Percent float64
}

// ResetAction restores the default snapshot at the start of a new session.
// Settings survive the reset.
type ResetAction struct{}

func (ErrorAction) isAction()               {}
func (MediaRequestUpdateAction) isAction()  {}
func (MetadataUpdateAction) isAction()      {}
func (SkipDistanceAction) isAction()        {}
func (PlaybackSpeedAction) isAction()       {}
func (ForegroundAction) isAction()          {}
func (ProgressUpdateAction) isAction()      {}
func (EngineReadyAction) isAction()         {}
func (DownloadEngineReadyAction) isAction() {}
func (DownloadProgressAction) isAction()    {}
func (ResetAction) isAction()               {}
