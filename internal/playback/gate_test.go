package playback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadenza.click/internal/state"
	"cadenza.click/internal/transport"
)

// gateFixture wires a gate against a store with a swappable controls handle.
type gateFixture struct {
	store    *state.Store
	controls transport.Controls
	gate     *Gate
	errors   []error
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	f := &gateFixture{store: state.NewStore()}
	f.gate = NewGate(f.store, func() transport.Controls { return f.controls })
	f.store.Observe(func(s state.State) {
		if s.Err != nil && (len(f.errors) == 0 || f.errors[len(f.errors)-1] != s.Err) {
			f.errors = append(f.errors, s.Err)
		}
	})
	return f
}

func (f *gateFixture) connect(t *testing.T) transport.Controls {
	t.Helper()
	fake := transport.NewFake()
	controls, err := fake.Connect(context.Background(), transport.ConnectRequest{}, nil)
	require.NoError(t, err)
	f.controls = controls
	return controls
}

func (f *gateFixture) lastErrorCode(t *testing.T) Code {
	t.Helper()
	require.NotEmpty(t, f.errors, "expected a dispatched error action")
	code, ok := CodeOf(f.errors[len(f.errors)-1])
	require.True(t, ok, "dispatched error must be classified")
	return code
}

func TestRunIfReadyNoControls(t *testing.T) {
	f := newGateFixture(t)

	ran := false
	f.gate.RunIfReady(func(transport.Controls) error { ran = true; return nil })

	assert.False(t, ran)
	assert.Equal(t, CodeTransportControlsNull, f.lastErrorCode(t))
	assert.Len(t, f.errors, 1, "exactly one error action per rejected command")
}

func TestRunIfReadyNoPlaybackInfo(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)

	ran := false
	f.gate.RunIfReady(func(transport.Controls) error { ran = true; return nil })

	assert.False(t, ran)
	assert.Equal(t, CodeNoPlaybackInfo, f.lastErrorCode(t))
}

func TestRunIfReadyNoneSentinel(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)
	f.store.Dispatch(state.ProgressUpdateAction{State: state.PlaybackNone})
	f.store.Dispatch(state.EngineReadyAction{Ready: true})

	ran := false
	f.gate.RunIfReady(func(transport.Controls) error { ran = true; return nil })

	assert.False(t, ran)
	assert.Equal(t, CodeInvalidPlaybackState, f.lastErrorCode(t))
}

func TestRunIfReadyEngineNotReady(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)
	f.store.Dispatch(state.ProgressUpdateAction{State: state.PlaybackPaused})

	ran := false
	f.gate.RunIfReady(func(transport.Controls) error { ran = true; return nil })

	assert.False(t, ran, "command must never run while the ready flag is false")
	assert.Equal(t, CodeEngineNotInitialized, f.lastErrorCode(t))
}

func TestRunIfReadyRunsWhenReady(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)
	f.store.Dispatch(state.ProgressUpdateAction{State: state.PlaybackPlaying})
	f.store.Dispatch(state.EngineReadyAction{Ready: true})

	ran := false
	f.gate.RunIfReady(func(controls transport.Controls) error {
		require.NotNil(t, controls)
		ran = true
		return nil
	})

	assert.True(t, ran)
	assert.Empty(t, f.errors)
}

func TestRunIfReadyCommandFailureIsUnexpected(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)
	f.store.Dispatch(state.ProgressUpdateAction{State: state.PlaybackPlaying})
	f.store.Dispatch(state.EngineReadyAction{Ready: true})

	f.gate.RunIfReady(func(transport.Controls) error {
		return assert.AnError
	})

	assert.Equal(t, CodeUnexpected, f.lastErrorCode(t))
}

func TestRunWhenReadyFiresOnceOnFirstReadySnapshot(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)

	var fired atomic.Int32
	f.gate.RunWhenReady(context.Background(), func(transport.Controls) error {
		fired.Add(1)
		return nil
	})

	// A flood of not-ready snapshots must not release the command.
	for i := 0; i < 1000; i++ {
		f.store.Dispatch(state.ProgressUpdateAction{State: state.PlaybackBuffering, PositionMS: int64(i)})
	}
	assert.Equal(t, int32(0), fired.Load())

	f.store.Dispatch(state.EngineReadyAction{Ready: true})
	assert.Equal(t, int32(1), fired.Load(), "command fires on the first ready snapshot")

	// Later ready snapshots must not re-fire it.
	f.store.Dispatch(state.ProgressUpdateAction{State: state.PlaybackPlaying})
	f.store.Dispatch(state.EngineReadyAction{Ready: true})
	assert.Equal(t, int32(1), fired.Load())
}

func TestRunWhenReadyImmediateWhenAlreadyReady(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)
	f.store.Dispatch(state.EngineReadyAction{Ready: true})

	var fired atomic.Int32
	f.gate.RunWhenReady(context.Background(), func(transport.Controls) error {
		fired.Add(1)
		return nil
	})

	assert.Equal(t, int32(1), fired.Load(), "replay-latest releases an already-ready wait immediately")
}

func TestRunWhenReadyConcurrentWaitsAreIndependent(t *testing.T) {
	f := newGateFixture(t)
	f.connect(t)

	var first, second atomic.Int32
	f.gate.RunWhenReady(context.Background(), func(transport.Controls) error {
		first.Add(1)
		return nil
	})
	f.gate.RunWhenReady(context.Background(), func(transport.Controls) error {
		second.Add(1)
		return nil
	})

	f.store.Dispatch(state.EngineReadyAction{Ready: true})

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestRunWhenReadyDeadlineDispatchesStartFailure(t *testing.T) {
	f := newGateFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	f.gate.RunWhenReady(ctx, func(transport.Controls) error { ran = true; return nil })

	require.Eventually(t, func() bool {
		return len(f.errors) > 0
	}, time.Second, 5*time.Millisecond)

	assert.False(t, ran)
	assert.Equal(t, CodePlaybackStartFailure, f.lastErrorCode(t))
}

func TestRunWhenReadyCancellationIsSilent(t *testing.T) {
	f := newGateFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	f.gate.RunWhenReady(ctx, func(transport.Controls) error { ran = true; return nil })
	cancel()

	// Readiness arriving after cancellation must not release the command.
	time.Sleep(20 * time.Millisecond)
	f.connect(t)
	f.store.Dispatch(state.EngineReadyAction{Ready: true})
	time.Sleep(20 * time.Millisecond)

	assert.False(t, ran)
	assert.Empty(t, f.errors, "plain cancellation dispatches nothing")
}
