package playback

// Gate is the reconfiguration flag shared by the reconciler and the
// synchronizer. At most one holder exists at a time. Releasing clears the
// flag on the next frame so that echo notifications caused by the holder's
// own work still observe it as held.
//
// A Gate is owned by a session loop and is not safe for concurrent use.
type Gate struct {
	sched   Scheduler
	held    bool
	pending func()
	idle    []func()
}

// NewGate returns an unheld gate that clears through sched.
func NewGate(sched Scheduler) *Gate {
	return &Gate{sched: sched}
}

// Held reports whether the flag is set.
func (g *Gate) Held() bool {
	return g.held
}

// TryAcquire sets the flag if it is clear. The returned release func is
// idempotent; the flag clears on the frame after the first call.
func (g *Gate) TryAcquire() (release func(), ok bool) {
	if g.held {
		return nil, false
	}
	g.held = true
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sched.NextFrame(g.clear)
	}, true
}

// Defer parks fn in the single pending slot. It runs once, right after the
// flag clears. A second Defer before that replaces the first.
func (g *Gate) Defer(fn func()) {
	g.pending = fn
}

// Pending reports whether a deferred request is parked.
func (g *Gate) Pending() bool {
	return g.pending != nil
}

// WhenIdle runs fn once the flag is clear and nothing is pending. If that is
// already true, fn runs immediately.
func (g *Gate) WhenIdle(fn func()) {
	if !g.held && g.pending == nil {
		fn()
		return
	}
	g.idle = append(g.idle, fn)
}

func (g *Gate) clear() {
	g.held = false
	if p := g.pending; p != nil {
		g.pending = nil
		p()
	}
	if g.held || g.pending != nil {
		return
	}
	waiters := g.idle
	g.idle = nil
	for _, fn := range waiters {
		fn()
	}
}
