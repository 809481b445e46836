package playback

import (
	"context"
	"log/slog"
	"sync"

	"cadenza.click/internal/state"
	"cadenza.click/internal/transport"
)

// Gate decides whether a command may run against the engine right now, must
// wait for readiness, or must fail. Both entry points are non-blocking; every
// failure is dispatched as an error action, never returned to the caller.
type Gate struct {
	store    *state.Store
	controls func() transport.Controls
}

// NewGate creates a gate reading readiness from the store and the current
// controls handle from the provider.
func NewGate(store *state.Store, controls func() transport.Controls) *Gate {
	return &Gate{store: store, controls: controls}
}

// RunIfReady runs cmd immediately if the engine is ready, otherwise
// dispatches exactly one classified error chosen by fixed priority.
func (g *Gate) RunIfReady(cmd func(transport.Controls) error) {
	snapshot := g.store.CurrentState()
	controls := g.controls()

	facts := readiness{
		hasControls:     controls != nil,
		hasPlaybackInfo: snapshot.PlaybackInfo != nil,
		stateIsNone:     snapshot.PlaybackInfo != nil && snapshot.PlaybackInfo.State == state.PlaybackNone,
		engineReady:     snapshot.Internal.IsPlaybackEngineReady,
	}

	if classified := classifyReadiness(facts); classified != nil {
		slog.Debug("command rejected by readiness gate",
			"code", classified.Code.String(),
			"detail", classified.Detail)
		g.store.Dispatch(state.ErrorAction{Err: classified})
		return
	}

	if err := cmd(controls); err != nil {
		slog.Error("command failed after passing readiness gate", "error", err)
		g.store.Dispatch(state.ErrorAction{
			Err: wrapError(CodeUnexpected, "command failed", err),
		})
	}
}

// RunWhenReady defers cmd until the first snapshot where both a transport
// connection and the engine-ready flag are present, then runs it exactly
// once. Later ready snapshots do not re-fire it. If ctx carries a deadline
// and it expires first, a startup-failure error is dispatched instead; plain
// cancellation tears the wait down silently.
func (g *Gate) RunWhenReady(ctx context.Context, cmd func(transport.Controls) error) {
	var once sync.Once
	done := make(chan struct{})

	unsubscribe := g.store.Observe(func(snapshot state.State) {
		controls := g.controls()
		if controls == nil || !snapshot.Internal.IsPlaybackEngineReady {
			return
		}
		once.Do(func() {
			slog.Debug("deferred command released by readiness")
			if err := cmd(controls); err != nil {
				slog.Error("deferred command failed", "error", err)
				g.store.Dispatch(state.ErrorAction{
					Err: wrapError(CodeUnexpected, "deferred command failed", err),
				})
			}
			close(done)
		})
	})

	go func() {
		defer unsubscribe()
		select {
		case <-done:
		case <-ctx.Done():
			// Deadline expiry means readiness never arrived in the
			// configured window; surface it. Explicit cancellation is
			// normal teardown and stays silent.
			once.Do(func() {
				close(done)
				if ctx.Err() == context.DeadlineExceeded {
					g.store.Dispatch(state.ErrorAction{
						Err: wrapError(CodePlaybackStartFailure,
							"engine did not become ready in time", ctx.Err()),
					})
				}
			})
		}
	}()
}
