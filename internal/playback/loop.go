package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display frame.
const DefaultFrameInterval = 16 * time.Millisecond

// ErrLoopStopped is returned when work is posted to a loop that has exited.
var ErrLoopStopped = errors.New("session loop stopped")

// Scheduler defers work on the session loop.
type Scheduler interface {
	// NextFrame runs fn on the next frame tick.
	NextFrame(fn func())
	// After runs fn on the loop once d has elapsed. The returned cancel func
	// must be called from the loop.
	After(d time.Duration, fn func()) (cancel func())
}

// Loop is a single-goroutine cooperative executor. Every piece of playback
// state belonging to a session is only touched from inside Loop tasks.
type Loop struct {
	log      *slog.Logger
	interval time.Duration
	tasks    chan func()
	done     chan struct{}

	mu     sync.Mutex
	frames []func()
}

// NewLoop returns a loop ticking frames every interval. If interval <= 0,
// DefaultFrameInterval is used.
func NewLoop(log *slog.Logger, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Loop{
		log:      log,
		interval: interval,
		tasks:    make(chan func(), 256),
		done:     make(chan struct{}),
	}
}

// Do enqueues fn. It returns ErrLoopStopped if the loop has exited.
func (l *Loop) Do(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// Call enqueues fn and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Do(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextFrame implements Scheduler.NextFrame.
func (l *Loop) NextFrame(fn func()) {
	l.mu.Lock()
	l.frames = append(l.frames, fn)
	l.mu.Unlock()
}

// After implements Scheduler.After.
func (l *Loop) After(d time.Duration, fn func()) func() {
	cancelled := false
	t := time.AfterFunc(d, func() {
		_ = l.Do(func() {
			if !cancelled {
				fn()
			}
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run executes tasks and frame callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			l.run(fn)
		case <-ticker.C:
			l.mu.Lock()
			frame := l.frames
			l.frames = nil
			l.mu.Unlock()
			for _, fn := range frame {
				l.run(fn)
			}
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("session task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
