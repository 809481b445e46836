package transport

import "cadenza.click/internal/state"

// Command is one custom command forwarded to the engine. The set of tags is
// closed; each variant carries its typed payload.
type Command interface {
	Tag() string
}

// RefreshProgress asks the engine to publish a fresh progress event.
type RefreshProgress struct{}

func (RefreshProgress) Tag() string { return "refresh-progress" }

// SetPlaybackSpeed sets the engine playback speed multiplier.
type SetPlaybackSpeed struct {
	Speed float64
}

func (SetPlaybackSpeed) Tag() string { return "set-playback-speed" }

// SetSkipDistance tells the engine the skip distance, so its media-session
// skip buttons match the client's.
type SetSkipDistance struct {
	DistanceMS int64
}

func (SetSkipDistance) Tag() string { return "set-skip-distance" }

// SetIsInForeground tells the engine whether the host app is foregrounded.
type SetIsInForeground struct {
	InForeground bool
}

func (SetIsInForeground) Tag() string { return "set-is-in-foreground" }

// UpdateMediaRequest refreshes the engine's copy of the current request,
// typically after a header rotation.
type UpdateMediaRequest struct {
	Request state.MediaRequest
}

func (UpdateMediaRequest) Tag() string { return "update-media-request" }

// UpdatePlaybackMetadata replaces the title and chapter list shown by the
// engine's media session.
type UpdatePlaybackMetadata struct {
	Title    string
	Chapters []state.Chapter
}

func (UpdatePlaybackMetadata) Tag() string { return "update-playback-metadata" }
