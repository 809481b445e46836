package playback

import (
	"errors"
	"fmt"
)

// Code identifies one member of the closed player error taxonomy. Every
// failure the core reports through the state store carries one of these.
type Code int

const (
	// CodeUnexpected is the catch-all for states not otherwise classified.
	CodeUnexpected Code = iota
	// CodeEngineNotInitialized: the download engine was used before init,
	// or the playback engine is not yet ready.
	CodeEngineNotInitialized
	// CodeNoPlaybackInfo: no playback phase has been recorded yet.
	CodeNoPlaybackInfo
	// CodeInvalidPlaybackState: the recorded phase is the NONE sentinel.
	CodeInvalidPlaybackState
	// CodeTransportControlsNull: there is no active engine connection.
	CodeTransportControlsNull
	// CodePlaybackStartFailure: the readiness wait itself failed.
	CodePlaybackStartFailure
	// CodeUpdateProgressFailure: a reconciliation tick failed terminally.
	CodeUpdateProgressFailure
)

// String returns the taxonomy name.
func (c Code) String() string {
	switch c {
	case CodeEngineNotInitialized:
		return "engine-not-initialized"
	case CodeNoPlaybackInfo:
		return "no-playback-info"
	case CodeInvalidPlaybackState:
		return "invalid-playback-state"
	case CodeTransportControlsNull:
		return "transport-controls-null"
	case CodePlaybackStartFailure:
		return "playback-start-failure"
	case CodeUpdateProgressFailure:
		return "update-progress-failure"
	default:
		return "unexpected"
	}
}

// Error is a classified player failure with a human-readable detail string.
type Error struct {
	Code   Code
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func wrapError(code Code, detail string, cause error) *Error {
	return &Error{Code: code, Detail: detail, cause: cause}
}

// CodeOf extracts the taxonomy code from an error dispatched by the core.
func CodeOf(err error) (Code, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code, true
	}
	return CodeUnexpected, false
}

// readiness is the small fact set the gate computes from one snapshot plus
// the current controls handle.
type readiness struct {
	hasControls     bool
	hasPlaybackInfo bool
	stateIsNone     bool
	engineReady     bool
}

// classifyReadiness returns the first matching error by fixed priority, or
// nil when every readiness condition holds. The order is deliberate: a
// missing connection outranks a missing phase, which outranks the NONE
// sentinel, which outranks the ready flag.
func classifyReadiness(r readiness) *Error {
	switch {
	case !r.hasControls:
		return newError(CodeTransportControlsNull, "no active transport connection")
	case !r.hasPlaybackInfo:
		return newError(CodeNoPlaybackInfo, "no playback phase recorded")
	case r.stateIsNone:
		return newError(CodeInvalidPlaybackState, "playback state is none: no content loaded")
	case !r.engineReady:
		return newError(CodeEngineNotInitialized, "playback engine is not ready")
	default:
		return nil
	}
}
