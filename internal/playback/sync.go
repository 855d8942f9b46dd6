package playback

import (
	"log/slog"
	"math"
)

// SeekDeadBand is the minimum position difference, in seconds, that a
// mirrored seek must exceed before the target is moved.
const SeekDeadBand = 0.2

// Synchronizer mirrors play, pause and seek between two channels.
type Synchronizer struct {
	gate     *Gate
	log      *slog.Logger
	metrics  Metrics
	deadBand float64
}

// NewSynchronizer returns a synchronizer using gate for echo suppression.
// A deadBand <= 0 selects SeekDeadBand.
func NewSynchronizer(gate *Gate, log *slog.Logger, m Metrics, deadBand float64) *Synchronizer {
	if m == nil {
		m = NopMetrics{}
	}
	if deadBand <= 0 {
		deadBand = SeekDeadBand
	}
	return &Synchronizer{gate: gate, log: log, metrics: m, deadBand: deadBand}
}

// Wire connects the transport notifications of a and b to each other.
func (s *Synchronizer) Wire(a, b *Channel) {
	a.transport = func(ch *Channel, ev EventType) { s.mirror(ch, b, ev) }
	b.transport = func(ch *Channel, ev EventType) { s.mirror(ch, a, ev) }
}

func (s *Synchronizer) mirror(source, target *Channel, ev EventType) {
	var a Action
	switch ev {
	case EventPlay:
		a = Play()
	case EventPause:
		a = Pause()
	case EventSeeked:
		a = Seek(source.el.Position())
	default:
		return
	}
	s.Propagate(source, target, a, OriginUser)
}

// Propagate applies a onto target.
//
// Live stream targets are never driven, and seeks from a live source are
// ignored. User-origin calls take the gate and release it one frame after the
// operation settles; if the gate is already held they are dropped as echoes,
// except seeks, which still apply.
func (s *Synchronizer) Propagate(source, target *Channel, a Action, origin Origin) {
	if target.IsLive() {
		return
	}
	if source.IsLive() && a.Kind == ActionSeek {
		return
	}

	release := func() {}
	if origin == OriginUser {
		r, ok := s.gate.TryAcquire()
		switch {
		case ok:
			release = r
		case a.Kind != ActionSeek:
			s.metrics.IncDroppedEcho()
			s.log.Debug("sync dropped while reconfiguring",
				slog.String("action", a.Kind.String()),
				slog.String("source", string(source.id)),
				slog.String("target", string(target.id)))
			return
		}
	}
	s.metrics.IncPropagation(a.Kind.String())
	s.apply(target, a, release)
}

// apply drives ch towards a and calls done once the operation settles.
func (s *Synchronizer) apply(ch *Channel, a Action, done func()) {
	el := ch.el
	switch a.Kind {
	case ActionPlay:
		if el.Paused() {
			el.Play(func(err error) {
				if err != nil {
					s.log.Warn("sync play failed",
						slog.String("target", string(ch.id)),
						slog.String("error", err.Error()))
				}
				done()
			})
			return
		}
	case ActionPause:
		if !el.Paused() {
			el.Pause()
		}
	case ActionSeek:
		if el.ReadyState() >= HaveMetadata && math.Abs(el.Position()-a.Position) > s.deadBand {
			el.SetPosition(a.Position)
		}
	}
	done()
}
