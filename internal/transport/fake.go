package transport

import (
	"context"
	"sync"

	"cadenza.click/internal/state"
)

// Fake is an in-memory Transport for tests. It records every command it
// receives and lets the test push events as if the engine produced them.
type Fake struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	events     EventFunc
	commands   []Command
	calls      []string

	positionMS int64
	durationMS int64
	phase      state.PlaybackState

	// ConnectDelay, when non-nil, is closed by the test to release a
	// Connect call that should block until readiness is simulated.
	ConnectDelay chan struct{}
}

// NewFake creates a disconnected fake transport.
func NewFake() *Fake {
	return &Fake{phase: state.PlaybackNone}
}

// FailConnect makes subsequent Connect calls fail with err.
func (f *Fake) FailConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// Connect implements Transport.
func (f *Fake) Connect(ctx context.Context, req ConnectRequest, events EventFunc) (Controls, error) {
	if f.ConnectDelay != nil {
		select {
		case <-f.ConnectDelay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.connected = true
	f.events = events
	f.positionMS = req.InitialOffsetMS
	if req.IsAutoPlay {
		f.phase = state.PlaybackPlaying
	} else {
		f.phase = state.PlaybackPaused
	}
	f.calls = append(f.calls, "connect")
	return &fakeControls{f: f}, nil
}

// Disconnect implements Transport.
func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.events = nil
	f.phase = state.PlaybackNone
	f.calls = append(f.calls, "disconnect")
	return nil
}

// EmitReady pushes a readiness event to the registered sink.
func (f *Fake) EmitReady(ready bool) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events != nil {
		events(ReadyEvent{Ready: ready})
	}
}

// EmitProgress pushes a progress event to the registered sink.
func (f *Fake) EmitProgress(phase state.PlaybackState, positionMS, durationMS int64) {
	f.mu.Lock()
	events := f.events
	f.phase = phase
	f.positionMS = positionMS
	f.durationMS = durationMS
	f.mu.Unlock()
	if events != nil {
		events(ProgressEvent{State: phase, PositionMS: positionMS, DurationMS: durationMS})
	}
}

// Commands returns a copy of the custom commands received so far.
func (f *Fake) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// CommandsByTag returns received commands matching the tag.
func (f *Fake) CommandsByTag(tag string) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []Command
	for _, cmd := range f.commands {
		if cmd.Tag() == tag {
			matched = append(matched, cmd)
		}
	}
	return matched
}

// Calls returns a copy of the lifecycle/control call log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Connected reports whether the fake currently has a session.
func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeControls struct {
	f *Fake
}

func (c *fakeControls) Play() error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if !c.f.connected {
		return ErrNotConnected
	}
	c.f.phase = state.PlaybackPlaying
	c.f.calls = append(c.f.calls, "play")
	return nil
}

func (c *fakeControls) Pause() error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if !c.f.connected {
		return ErrNotConnected
	}
	c.f.phase = state.PlaybackPaused
	c.f.calls = append(c.f.calls, "pause")
	return nil
}

func (c *fakeControls) SeekTo(positionMS int64) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if !c.f.connected {
		return ErrNotConnected
	}
	c.f.positionMS = positionMS
	c.f.calls = append(c.f.calls, "seek")
	return nil
}

func (c *fakeControls) Send(cmd Command) error {
	c.f.mu.Lock()
	if !c.f.connected {
		c.f.mu.Unlock()
		return ErrNotConnected
	}
	c.f.commands = append(c.f.commands, cmd)
	c.f.calls = append(c.f.calls, "send:"+cmd.Tag())
	events := c.f.events
	phase := c.f.phase
	positionMS := c.f.positionMS
	durationMS := c.f.durationMS
	c.f.mu.Unlock()

	// A refresh command answers with a progress event, like the engine.
	if _, ok := cmd.(RefreshProgress); ok && events != nil {
		events(ProgressEvent{State: phase, PositionMS: positionMS, DurationMS: durationMS})
	}
	return nil
}
