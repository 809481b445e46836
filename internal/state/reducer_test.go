package state

import (
	"errors"
	"testing"
	"time"
)

func TestReduceIsPure(t *testing.T) {
	before := Initial()
	before.PlaybackInfo = &PlaybackInfo{
		State:      PlaybackPlaying,
		PositionMS: 1000,
		Chapters:   []Chapter{{Title: "one", StartOffsetMS: 0, EndOffsetMS: 5000}},
	}

	after := Reduce(before, ProgressUpdateAction{State: PlaybackPaused, PositionMS: 2000})

	// Input snapshot must be untouched.
	if before.PlaybackInfo.State != PlaybackPlaying {
		t.Errorf("input snapshot mutated: state = %v", before.PlaybackInfo.State)
	}
	if before.PlaybackInfo.PositionMS != 1000 {
		t.Errorf("input snapshot mutated: position = %d", before.PlaybackInfo.PositionMS)
	}
	if after.PlaybackInfo.State != PlaybackPaused {
		t.Errorf("expected paused, got %v", after.PlaybackInfo.State)
	}
	if after.PlaybackInfo.PositionMS != 2000 {
		t.Errorf("expected position 2000, got %d", after.PlaybackInfo.PositionMS)
	}
	// Chapters carried over from the previous snapshot.
	if len(after.PlaybackInfo.Chapters) != 1 {
		t.Errorf("expected chapters carried over, got %d", len(after.PlaybackInfo.Chapters))
	}
}

func TestReduceErrorAction(t *testing.T) {
	sentinel := errors.New("boom")
	after := Reduce(Initial(), ErrorAction{Err: sentinel})
	if !errors.Is(after.Err, sentinel) {
		t.Errorf("expected error retained, got %v", after.Err)
	}

	// Retained until replaced by the next error.
	replacement := errors.New("worse")
	after = Reduce(after, ErrorAction{Err: replacement})
	if !errors.Is(after.Err, replacement) {
		t.Errorf("expected replacement error, got %v", after.Err)
	}
}

func TestReduceSettings(t *testing.T) {
	s := Initial()
	s = Reduce(s, SkipDistanceAction{Distance: 15 * time.Second})
	s = Reduce(s, PlaybackSpeedAction{Speed: 1.5})
	s = Reduce(s, ForegroundAction{InForeground: true})

	if s.Settings.SkipDistance != 15*time.Second {
		t.Errorf("skip distance = %v", s.Settings.SkipDistance)
	}
	if s.Settings.Speed != 1.5 {
		t.Errorf("speed = %v", s.Settings.Speed)
	}
	if !s.Settings.InForeground {
		t.Error("expected foreground flag set")
	}
}

func TestReduceResetPreservesSettings(t *testing.T) {
	s := Initial()
	s = Reduce(s, SkipDistanceAction{Distance: 45 * time.Second})
	s = Reduce(s, ProgressUpdateAction{State: PlaybackPlaying, PositionMS: 9000})
	s = Reduce(s, ErrorAction{Err: errors.New("stale")})
	s = Reduce(s, DownloadEngineReadyAction{Ready: true})

	s = Reduce(s, ResetAction{})

	if s.PlaybackInfo != nil {
		t.Error("expected playback info cleared on reset")
	}
	if s.Err != nil {
		t.Error("expected error cleared on reset")
	}
	if s.Settings.SkipDistance != 45*time.Second {
		t.Errorf("expected skip distance to survive reset, got %v", s.Settings.SkipDistance)
	}
	if !s.Download.EngineReady {
		t.Error("expected download engine readiness to survive reset")
	}
}

func TestReduceDownloadProgressCopiesMap(t *testing.T) {
	first := Reduce(Initial(), DownloadProgressAction{URL: "https://cdn.example/a.mp3", Percent: 10})
	second := Reduce(first, DownloadProgressAction{URL: "https://cdn.example/a.mp3", Percent: 50})

	if first.Download.Progress["https://cdn.example/a.mp3"] != 10 {
		t.Errorf("earlier snapshot mutated: %v", first.Download.Progress)
	}
	if second.Download.Progress["https://cdn.example/a.mp3"] != 50 {
		t.Errorf("expected 50, got %v", second.Download.Progress)
	}
}

func TestMediaRequestSameContent(t *testing.T) {
	a := MediaRequest{URL: "https://cdn.example/book.m3u8", Headers: map[string]string{"Authorization": "Bearer x"}}
	b := MediaRequest{URL: "https://cdn.example/book.m3u8", Headers: map[string]string{"Authorization": "Bearer y"}}
	c := MediaRequest{URL: "https://cdn.example/other.m3u8"}

	if !a.SameContent(b) {
		t.Error("identity is the URL; differing headers are still the same content")
	}
	if a.SameContent(c) {
		t.Error("different URLs must not compare as same content")
	}
}

func TestPlaybackInfoChapterAt(t *testing.T) {
	info := &PlaybackInfo{Chapters: []Chapter{
		{Title: "one", StartOffsetMS: 0, EndOffsetMS: 1000},
		{Title: "two", StartOffsetMS: 1000, EndOffsetMS: 4000},
	}}

	cases := []struct {
		positionMS int64
		want       int
	}{
		{0, 0},
		{999, 0},
		{1000, 1},
		{3999, 1},
		{4000, -1},
	}
	for _, tc := range cases {
		if got := info.ChapterAt(tc.positionMS); got != tc.want {
			t.Errorf("ChapterAt(%d) = %d, want %d", tc.positionMS, got, tc.want)
		}
	}
}
