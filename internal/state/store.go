package state

import (
	"context"
	"log/slog"
	"sync"
)

// Store holds the single current snapshot for a playback session. Dispatch
// applies the reducer synchronously and publishes the new snapshot to every
// observer before returning; CurrentState always returns the latest snapshot.
//
// Actions dispatched from inside an observer callback are queued and applied
// after the in-flight action finishes, so snapshot order stays total even
// when observers react by dispatching.
type Store struct {
	mu          sync.Mutex
	state       State
	queue       []Action
	dispatching bool
	observers   map[int]*observer
	nextID      int
}

// observer wraps a callback with per-observer delivery ordering: a snapshot
// older than one already seen is dropped rather than delivered out of order.
type observer struct {
	mu   sync.Mutex
	seen uint64
	fn   func(State)
}

func (o *observer) notify(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s.version <= o.seen {
		return
	}
	o.seen = s.version
	o.fn(s)
}

// NewStore creates a store holding the default empty snapshot.
func NewStore() *Store {
	slog.Debug("creating state store")
	initial := Initial()
	initial.version = 1
	return &Store{
		state:     initial,
		observers: make(map[int]*observer),
	}
}

// CurrentState returns the latest snapshot.
func (s *Store) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies the action through the reducer and publishes the new
// snapshot to all observers. It is the only mutation channel for the state.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	s.queue = append(s.queue, a)
	if s.dispatching {
		// Re-entrant dispatch from an observer: the outer loop drains it.
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]

		s.state = Reduce(s.state, next)
		s.state.version++
		snapshot := s.state

		targets := make([]*observer, 0, len(s.observers))
		for _, o := range s.observers {
			targets = append(targets, o)
		}

		s.mu.Unlock()
		slog.Debug("action dispatched",
			"action", actionName(next),
			"version", snapshot.version,
			"observers", len(targets))
		for _, o := range targets {
			o.notify(snapshot)
		}
		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

// Observe registers a synchronous observer. The callback immediately receives
// the most recent snapshot, then every subsequent snapshot in dispatch order
// (replay-latest-then-live). The returned cancel function removes the
// observer; it is safe to call from inside the callback itself.
func (s *Store) Observe(fn func(State)) (cancel func()) {
	o := &observer{fn: fn}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	current := s.state
	s.mu.Unlock()

	o.notify(current)

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Subscribe returns a channel of snapshots with the same
// replay-latest-then-live semantics as Observe. Delivery is decoupled from
// dispatch through an unbounded per-subscriber queue, so a slow consumer
// never blocks the store. The channel closes when ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan State {
	out := make(chan State)

	var (
		mu      sync.Mutex
		pending []State
	)
	wake := make(chan struct{}, 1)

	cancel := s.Observe(func(snapshot State) {
		mu.Lock()
		pending = append(pending, snapshot)
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(out)
		defer cancel()
		for {
			mu.Lock()
			var next *State
			if len(pending) > 0 {
				next = &pending[0]
			}
			mu.Unlock()

			if next == nil {
				select {
				case <-ctx.Done():
					return
				case <-wake:
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- *next:
				mu.Lock()
				pending = pending[1:]
				mu.Unlock()
			}
		}
	}()

	return out
}

func actionName(a Action) string {
	switch a.(type) {
	case ErrorAction:
		return "error"
	case MediaRequestUpdateAction:
		return "media-request-update"
	case MetadataUpdateAction:
		return "metadata-update"
	case SkipDistanceAction:
		return "skip-distance"
	case PlaybackSpeedAction:
		return "playback-speed"
	case ForegroundAction:
		return "foreground"
	case ProgressUpdateAction:
		return "progress-update"
	case EngineReadyAction:
		return "engine-ready"
	case DownloadEngineReadyAction:
		return "download-engine-ready"
	case DownloadProgressAction:
		return "download-progress"
	case ResetAction:
		return "reset"
	default:
		return "unknown"
	}
}
