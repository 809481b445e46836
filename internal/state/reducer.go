package state

// Reduce applies one action to a snapshot and returns the successor snapshot.
// It is a pure function: no I/O, no mutation of the input. Nested values that
// change are copied before editing so prior snapshots stay intact.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case ErrorAction:
		s.Err = act.Err

	case MediaRequestUpdateAction:
		req := act.Request
		s.Request = &req

	case MetadataUpdateAction:
		info := clonePlaybackInfo(s.PlaybackInfo)
		info.Title = act.Title
		info.Chapters = append([]Chapter(nil), act.Chapters...)
		s.PlaybackInfo = info

	case SkipDistanceAction:
		s.Settings.SkipDistance = act.Distance

	case PlaybackSpeedAction:
		s.Settings.Speed = act.Speed

	case ForegroundAction:
		s.Settings.InForeground = act.InForeground

	case ProgressUpdateAction:
		info := clonePlaybackInfo(s.PlaybackInfo)
		info.State = act.State
		info.PositionMS = act.PositionMS
		if act.DurationMS > 0 {
			info.DurationMS = act.DurationMS
		}
		s.PlaybackInfo = info

	case EngineReadyAction:
		s.Internal.IsPlaybackEngineReady = act.Ready

	case DownloadEngineReadyAction:
		s.Download.EngineReady = act.Ready
		if act.Ready && s.Download.Progress == nil {
			s.Download.Progress = map[string]float64{}
		}

	case DownloadProgressAction:
		progress := make(map[string]float64, len(s.Download.Progress)+1)
		for k, v := range s.Download.Progress {
			progress[k] = v
		}
		progress[act.URL] = act.Percent
		s.Download.Progress = progress

	case ResetAction:
		fresh := Initial()
		fresh.Settings = s.Settings
		fresh.Download.EngineReady = s.Download.EngineReady
		fresh.version = s.version
		return fresh
	}

	return s
}

func clonePlaybackInfo(info *PlaybackInfo) *PlaybackInfo {
	if info == nil {
		return &PlaybackInfo{}
	}
	clone := *info
	clone.Chapters = append([]Chapter(nil), info.Chapters...)
	return &clone
}
