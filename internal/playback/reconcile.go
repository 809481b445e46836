package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is the reconciliation period used when none is
// configured.
const DefaultTickInterval = 500 * time.Millisecond

// ErrTerminalTick marks a tick failure that must end the loop. The tick
// function wraps its error with this sentinel when retrying is pointless;
// any other error is transient and the loop keeps going.
var ErrTerminalTick = errors.New("terminal reconciliation failure")

// TickFunc performs one reconciliation pass.
type TickFunc func(ctx context.Context) error

// Loop is the cancellable periodic reconciliation task. Ticks are
// serialized: the next interval starts only after the previous tick has
// returned, so a slow tick never overlaps the next one. On cancellation the
// loop performs one final tick before stopping, so state stays current
// through the last event.
type Loop struct {
	interval   time.Duration
	tick       TickFunc
	onTerminal func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates an idle loop. onTerminal receives the error that ended the
// loop when a tick fails terminally.
func NewLoop(interval time.Duration, tick TickFunc, onTerminal func(error)) *Loop {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Loop{
		interval:   interval,
		tick:       tick,
		onTerminal: onTerminal,
	}
}

// Arm starts the loop, replacing any already-running instance. The old
// instance's in-flight tick is allowed to finish before the new one starts.
func (l *Loop) Arm(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	prevCancel, prevDone := l.cancel, l.done
	l.cancel, l.done = cancel, done
	l.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	slog.Debug("reconciliation loop armed", "interval", l.interval)
	go l.run(runCtx, done)
}

// Cancel stops the loop and blocks until its goroutine, including the final
// flush, has finished. Cancelling an idle loop is a no-op.
func (l *Loop) Cancel() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Debug("reconciliation loop cancelled")
}

// Running reports whether a loop instance is currently armed.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush: one last refresh even if no tick fired
			// naturally before cancellation.
			if err := l.tick(context.WithoutCancel(ctx)); err != nil {
				slog.Debug("final flush tick failed", "error", err)
			}
			return

		case <-timer.C:
			err := l.tick(ctx)
			if err != nil && ctx.Err() == nil {
				if errors.Is(err, ErrTerminalTick) {
					slog.Error("reconciliation tick failed terminally", "error", err)
					if l.onTerminal != nil {
						l.onTerminal(err)
					}
					return
				}
				slog.Warn("reconciliation tick failed, retrying", "error", err)
			}
			timer.Reset(l.interval)
		}
	}
}
