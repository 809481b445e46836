package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadenza.click/internal/download"
	"cadenza.click/internal/source"
	"cadenza.click/internal/state"
	"cadenza.click/internal/transport"
)

type fixture struct {
	store  *state.Store
	fake   *transport.Fake
	engine *download.MemoryEngine
	c      *Choreographer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := state.NewStore()
	fake := transport.NewFake()
	engine := download.NewMemoryEngine(store.Dispatch)
	c := New(store, source.NewResolver(), fake, engine, opts)
	t.Cleanup(c.Deinit)
	return &fixture{store: store, fake: fake, engine: engine, c: c}
}

func (f *fixture) begin(t *testing.T) {
	t.Helper()
	err := f.c.BeginPlayback(context.Background(), state.MediaRequest{
		URL: "https://cdn.example/book/master.m3u8",
	}, Config{IsAutoPlay: true})
	require.NoError(t, err)
}

func (f *fixture) lastErrorCode(t *testing.T) Code {
	t.Helper()
	err := f.store.CurrentState().Err
	require.Error(t, err, "expected an error in the snapshot")
	code, ok := CodeOf(err)
	require.True(t, ok, "snapshot error must be classified: %v", err)
	return code
}

func TestBeginPlaybackEstablishesSession(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)

	assert.True(t, f.fake.Connected())
	assert.True(t, f.c.loop.Running())

	snapshot := f.store.CurrentState()
	require.NotNil(t, snapshot.Request)
	assert.Equal(t, "https://cdn.example/book/master.m3u8", snapshot.Request.URL)
	require.NotNil(t, snapshot.PlaybackInfo)
	assert.Equal(t, state.PlaybackPlaying, snapshot.PlaybackInfo.State)
}

func TestBeginPlaybackUnsupportedTypeFailsFast(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})

	err := f.c.BeginPlayback(context.Background(), state.MediaRequest{
		URL: "https://cdn.example/book.pdf",
	}, Config{})

	var unsupported *source.UnsupportedContentTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.False(t, f.fake.Connected())
	assert.Nil(t, f.store.CurrentState().Err, "fatal classification is synchronous, not a state error")
}

func TestBeginPlaybackConnectFailureIsStateError(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.fake.FailConnect(errors.New("engine refused"))

	err := f.c.BeginPlayback(context.Background(), state.MediaRequest{
		URL: "https://cdn.example/a.mp3",
	}, Config{})

	require.NoError(t, err, "connection failures are observed via the subscription, never returned")
	assert.Equal(t, CodePlaybackStartFailure, f.lastErrorCode(t))
}

func TestBeginPlaybackTwiceLeavesOneSession(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.begin(t)

	calls := f.fake.Calls()
	connects, disconnects := 0, 0
	for _, call := range calls {
		switch call {
		case "connect":
			connects++
		case "disconnect":
			disconnects++
		}
	}
	assert.Equal(t, 2, connects, "each BeginPlayback issues exactly one fresh start")
	assert.Equal(t, 1, disconnects, "the prior connection is torn down first")
	assert.True(t, f.fake.Connected())
	assert.True(t, f.c.loop.Running(), "only the latest armed loop instance remains")
}

func TestDeferredSkipDistanceScenario(t *testing.T) {
	// End-to-end sequence: set the skip distance before readiness,
	// watch an immediate command fail, then watch the deferred command
	// fire exactly once when readiness arrives.
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)

	f.c.SetSkipDistance(30 * time.Second)
	assert.Equal(t, 30*time.Second, f.store.CurrentState().Settings.SkipDistance)
	assert.Empty(t, f.fake.CommandsByTag("set-skip-distance"),
		"skip distance must not reach the transport before readiness")

	f.c.PlayOrPause()
	assert.Equal(t, CodeEngineNotInitialized, f.lastErrorCode(t))

	f.fake.EmitReady(true)

	commands := f.fake.CommandsByTag("set-skip-distance")
	require.Len(t, commands, 1, "deferred command fires exactly once")
	assert.Equal(t, int64(30000), commands[0].(transport.SetSkipDistance).DistanceMS)

	// Further ready snapshots must not replay it.
	f.fake.EmitReady(true)
	assert.Len(t, f.fake.CommandsByTag("set-skip-distance"), 1)
}

func TestImmediateCommandsAfterReady(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.c.PlayOrPause() // playing -> pause
	f.c.SeekTo(90000)
	f.c.PlayOrPause() // paused -> play

	calls := f.fake.Calls()
	assert.Contains(t, calls, "pause")
	assert.Contains(t, calls, "seek")
	assert.Contains(t, calls, "play")
	assert.Nil(t, f.store.CurrentState().Err)
}

func TestPlayPauseToggleTracksPhase(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)
	f.store.Dispatch(state.ProgressUpdateAction{
		State: state.PlaybackPlaying, PositionMS: 42000, DurationMS: 300000,
	})

	f.c.PlayOrPause()
	paused := f.store.CurrentState().PlaybackInfo
	assert.Equal(t, state.PlaybackPaused, paused.State)
	assert.Equal(t, int64(42000), paused.PositionMS, "toggle keeps the position")

	f.c.PlayOrPause()
	assert.Equal(t, state.PlaybackPlaying, f.store.CurrentState().PlaybackInfo.State)

	var pauses, plays int
	for _, call := range f.fake.Calls() {
		switch call {
		case "pause":
			pauses++
		case "play":
			plays++
		}
	}
	assert.Equal(t, 1, pauses, "second toggle must not repeat pause")
	assert.Equal(t, 1, plays)
}

func TestSkipUsesConfiguredDistance(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.c.SetSkipDistance(10 * time.Second)
	f.store.Dispatch(state.ProgressUpdateAction{
		State: state.PlaybackPlaying, PositionMS: 60000, DurationMS: 300000,
	})

	f.c.SkipForward()
	f.fake.EmitProgress(state.PlaybackPlaying, 70000, 300000)
	f.c.SkipBackward()

	// 60000 + 10000, then 70000 - 10000.
	var seeks []string
	for _, call := range f.fake.Calls() {
		if call == "seek" {
			seeks = append(seeks, call)
		}
	}
	assert.Len(t, seeks, 2)
}

func TestSkipClampsAtTrackBounds(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.store.Dispatch(state.ProgressUpdateAction{
		State: state.PlaybackPlaying, PositionMS: 5000, DurationMS: 60000,
	})
	f.c.SetSkipDistance(30 * time.Second)

	f.c.SkipBackward() // 5000 - 30000 clamps to 0
	f.fake.EmitProgress(state.PlaybackPlaying, 50000, 60000)
	f.c.SkipForward() // 50000 + 30000 clamps to 60000

	assert.Nil(t, f.store.CurrentState().Err)
}

func TestChapterNavigation(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.c.UpdateMetadata("A Study in Scarlet", []state.Chapter{
		{Title: "Part 1", StartOffsetMS: 0, EndOffsetMS: 100000},
		{Title: "Part 2", StartOffsetMS: 100000, EndOffsetMS: 250000},
	})
	f.store.Dispatch(state.ProgressUpdateAction{
		State: state.PlaybackPlaying, PositionMS: 20000, DurationMS: 250000,
	})

	f.c.NextChapter()
	f.fake.EmitProgress(state.PlaybackPlaying, 100000, 250000)
	f.c.PreviousChapter()
	f.c.SeekWithinChapter(50)

	metadata := f.fake.CommandsByTag("update-playback-metadata")
	require.Len(t, metadata, 1)
	assert.Equal(t, "A Study in Scarlet", metadata[0].(transport.UpdatePlaybackMetadata).Title)
	assert.Nil(t, f.store.CurrentState().Err)
}

func TestUpdateMediaRequestSameContent(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.c.UpdateMediaRequest(state.MediaRequest{
		URL:     "https://cdn.example/book/master.m3u8",
		Headers: map[string]string{"Authorization": "Bearer rotated"},
	})

	updates := f.fake.CommandsByTag("update-media-request")
	require.Len(t, updates, 1)
	assert.Equal(t, "Bearer rotated",
		updates[0].(transport.UpdateMediaRequest).Request.Headers["Authorization"])
	assert.Nil(t, f.store.CurrentState().Err)
}

func TestUpdateMediaRequestDifferentContentIsContractViolation(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.c.UpdateMediaRequest(state.MediaRequest{URL: "https://cdn.example/other.m3u8"})

	assert.Equal(t, CodeUnexpected, f.lastErrorCode(t))
	assert.Empty(t, f.fake.CommandsByTag("update-media-request"))
}

func TestReconciliationPullsProgress(t *testing.T) {
	f := newFixture(t, Options{TickInterval: 5 * time.Millisecond})
	f.begin(t)
	f.fake.EmitReady(true)
	f.fake.EmitProgress(state.PlaybackPlaying, 1234, 60000)

	require.Eventually(t, func() bool {
		return len(f.fake.CommandsByTag("refresh-progress")) >= 2
	}, time.Second, time.Millisecond, "the loop must keep signalling refresh-progress")

	snapshot := f.store.CurrentState()
	require.NotNil(t, snapshot.PlaybackInfo)
	assert.Equal(t, int64(1234), snapshot.PlaybackInfo.PositionMS)
}

func TestEndPlaybackFlushesAndDisconnects(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)
	f.fake.EmitReady(true)

	f.c.EndPlayback()

	assert.False(t, f.fake.Connected())
	assert.False(t, f.c.loop.Running())
	// The hour-long interval means any refresh-progress seen came from the
	// cancellation path's final flush.
	assert.GreaterOrEqual(t, len(f.fake.CommandsByTag("refresh-progress")), 1)
	assert.False(t, f.store.CurrentState().Internal.IsPlaybackEngineReady)
}

func TestDownloadBeforeInitIsError(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})

	f.c.Download(state.MediaRequest{URL: "https://cdn.example/a.mp3"})

	assert.Equal(t, CodeEngineNotInitialized, f.lastErrorCode(t))
}

func TestDownloadLifecycle(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})

	f.c.InitDownloadEngine(context.Background())
	require.True(t, f.store.CurrentState().Download.EngineReady)
	assert.True(t, f.c.loop.Running(), "download init re-arms the reconciliation loop")

	req := state.MediaRequest{URL: "https://cdn.example/a.mp3"}
	f.c.Download(req)
	require.NoError(t, f.engine.RefreshProgress())
	assert.Equal(t, 25.0, f.store.CurrentState().Download.Progress[req.URL])

	f.c.RemoveDownload(req)
	f.c.RemoveAllDownloads()
	assert.Nil(t, f.store.CurrentState().Err)

	f.c.DeinitDownloadEngine()
	assert.False(t, f.store.CurrentState().Download.EngineReady)
}

func TestCacheQueries(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})

	_, err := f.c.CacheSize()
	require.Error(t, err, "cache queries before init fail synchronously")

	f.c.InitDownloadEngine(context.Background())
	size, err := f.c.CacheSize()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	req := state.MediaRequest{URL: "https://cdn.example/a.mp3"}
	f.c.Download(req)
	for i := 0; i < 4; i++ {
		require.NoError(t, f.engine.RefreshProgress())
	}
	size, err = f.c.CacheSize()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), size, "a completed download occupies cache")

	require.NoError(t, f.c.ClearCache())
	size, err = f.c.CacheSize()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestStateChangesStream(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.c.StateChanges(ctx)
	first := <-ch
	assert.Nil(t, first.PlaybackInfo, "stream starts with the latest snapshot")

	f.begin(t)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-ch:
			if snapshot.PlaybackInfo != nil && snapshot.PlaybackInfo.State == state.PlaybackPlaying {
				return
			}
		case <-deadline:
			t.Fatal("never observed the playing snapshot on the stream")
		}
	}
}

func TestDeinitClearsPendingDeferredCommands(t *testing.T) {
	f := newFixture(t, Options{TickInterval: time.Hour})
	f.begin(t)

	f.c.SetPlaybackSpeed(1.5)
	f.c.Deinit()

	// Readiness after teardown must not release the deferred command.
	time.Sleep(20 * time.Millisecond)
	f.store.Dispatch(state.EngineReadyAction{Ready: true})
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, f.fake.CommandsByTag("set-playback-speed"))
}
