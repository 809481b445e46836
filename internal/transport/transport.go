// Package transport defines the capability interface between the
// orchestration core and the playback engine. The engine itself (decoding,
// buffering, rendering) lives behind these interfaces; the core only sends
// commands through them and receives asynchronous events back.
package transport

import (
	"context"
	"errors"

	"cadenza.click/internal/source"
	"cadenza.click/internal/state"
)

// Common transport errors.
var (
	ErrNotConnected = errors.New("transport is not connected")
	ErrUnsupported  = errors.New("transport does not support this source")
)

// ConnectRequest carries everything the engine needs to start a session.
type ConnectRequest struct {
	Source *source.Source
	// InitialOffsetMS is where playback should begin.
	InitialOffsetMS int64
	// IsAutoPlay starts playback immediately on connect.
	IsAutoPlay bool
	// MaxDurationDiscrepancy is the tolerated difference (ms) between the
	// expected and engine-reported duration before the engine flags it.
	MaxDurationDiscrepancy int
}

// Event is an asynchronous report pushed by the engine. The set is closed.
type Event interface {
	isEvent()
}

// ProgressEvent reports current playback progress and phase.
type ProgressEvent struct {
	State      state.PlaybackState
	PositionMS int64
	DurationMS int64
}

func (ProgressEvent) isEvent() {}

// ReadyEvent reports the engine's readiness flag. The engine signals it
// asynchronously once its pipeline can accept commands; connection confirm
// and readiness are distinct signals.
type ReadyEvent struct {
	Ready bool
}

func (ReadyEvent) isEvent() {}

// EventFunc receives engine events. The core marshals every event onto the
// store's serialized dispatch path before touching shared state.
type EventFunc func(Event)

// Controls is the device-level command surface of a connected engine.
type Controls interface {
	Play() error
	Pause() error
	// SeekTo moves playback to an absolute position in milliseconds.
	SeekTo(positionMS int64) error
	// Send forwards one custom command to the engine.
	Send(cmd Command) error
}

// Transport owns the engine connection lifecycle. Connect blocks until the
// engine confirms the session (or ctx is done) and returns its controls.
type Transport interface {
	Connect(ctx context.Context, req ConnectRequest, events EventFunc) (Controls, error)
	Disconnect() error
}
