package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// manualScheduler runs queued tasks before frames, like a browser event loop.
type manualScheduler struct {
	tasks  []func()
	frames []func()
	timers []*manualTimer
	now    time.Duration
}

type manualTimer struct {
	at        time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *manualScheduler) post(fn func()) { s.tasks = append(s.tasks, fn) }

func (s *manualScheduler) NextFrame(fn func()) { s.frames = append(s.frames, fn) }

func (s *manualScheduler) After(d time.Duration, fn func()) func() {
	t := &manualTimer{at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return func() { t.cancelled = true }
}

// runTasks drains the task queue, including tasks queued while draining.
func (s *manualScheduler) runTasks() {
	for len(s.tasks) > 0 {
		fn := s.tasks[0]
		s.tasks = s.tasks[1:]
		fn()
	}
}

// frame drains tasks and then runs one frame.
func (s *manualScheduler) frame() {
	s.runTasks()
	frame := s.frames
	s.frames = nil
	for _, fn := range frame {
		fn()
	}
	s.runTasks()
}

// settle runs tasks and frames until both queues are empty.
func (s *manualScheduler) settle() {
	for i := 0; i < 1000; i++ {
		s.runTasks()
		if len(s.frames) == 0 {
			return
		}
		s.frame()
	}
	panic("scheduler did not settle")
}

func (s *manualScheduler) advance(d time.Duration) {
	s.now += d
	for _, t := range s.timers {
		if !t.cancelled && !t.fired && t.at <= s.now {
			t.fired = true
			t.fn()
		}
	}
}

type fakeStream struct {
	id      string
	stopped bool
}

func (s *fakeStream) ID() string { return s.id }
func (s *fakeStream) Stop()      { s.stopped = true }

// fakeElement models the parts of an HTML video element the core relies on.
// Notifications are delivered as scheduler tasks.
type fakeElement struct {
	sched *manualScheduler

	src      string
	stream   StreamHandle
	paused   bool
	position float64
	ready    ReadyState
	controls bool
	muted    bool
	listener func(EventType)

	failLoad bool
	holdLoad bool
	playErr  error
	loads    int
	plays    int
}

func newFakeElement(s *manualScheduler) *fakeElement {
	return &fakeElement{sched: s, paused: true, controls: true}
}

func (e *fakeElement) emit(ev EventType) {
	e.sched.post(func() {
		if e.listener != nil {
			e.listener(ev)
		}
	})
}

func (e *fakeElement) SetSource(u string) {
	e.src = u
	if u == "" && e.stream == nil {
		e.ready = HaveNothing
		e.paused = true
		e.emit(EventEmptied)
	}
}

func (e *fakeElement) Source() string { return e.src }

func (e *fakeElement) AttachStream(s StreamHandle) {
	e.stream = s
	if s != nil {
		e.ready = HaveEnoughData
		e.position = 0
		return
	}
	e.paused = true
	e.ready = HaveNothing
	e.emit(EventEmptied)
}

func (e *fakeElement) Stream() StreamHandle { return e.stream }

func (e *fakeElement) Load() {
	e.loads++
	e.ready = HaveNothing
	e.position = 0
	e.paused = true
	e.emit(EventLoadStart)
	switch {
	case e.failLoad:
		e.emit(EventError)
	case e.holdLoad:
	default:
		e.finishLoad()
	}
}

func (e *fakeElement) finishLoad() {
	e.sched.post(func() {
		e.ready = HaveEnoughData
		if e.listener != nil {
			e.listener(EventLoadedData)
		}
	})
}

func (e *fakeElement) Play(done func(error)) {
	e.plays++
	if e.playErr != nil {
		err := e.playErr
		e.sched.post(func() { done(err) })
		return
	}
	if e.paused {
		e.paused = false
		e.emit(EventPlay)
		e.emit(EventPlaying)
	}
	e.sched.post(func() { done(nil) })
}

func (e *fakeElement) Pause() {
	if e.paused {
		return
	}
	e.paused = true
	e.emit(EventPause)
}

func (e *fakeElement) Paused() bool      { return e.paused }
func (e *fakeElement) Position() float64 { return e.position }

func (e *fakeElement) SetPosition(p float64) {
	e.position = p
	e.emit(EventSeeked)
}

func (e *fakeElement) ReadyState() ReadyState         { return e.ready }
func (e *fakeElement) SetControls(on bool)            { e.controls = on }
func (e *fakeElement) Controls() bool                 { return e.controls }
func (e *fakeElement) SetMuted(m bool)                { e.muted = m }
func (e *fakeElement) SetListener(fn func(EventType)) { e.listener = fn }

// userPlay and userPause simulate native controls: state changes and the
// matching notification is queued.
func (e *fakeElement) userPlay() {
	e.paused = false
	e.emit(EventPlay)
}

func (e *fakeElement) userPause() { e.Pause() }

func (e *fakeElement) userSeek(p float64) { e.SetPosition(p) }

type deviceMode int

const (
	grant deviceMode = iota
	deny
	hold
)

type fakeDevice struct {
	sched    *manualScheduler
	mode     deviceMode
	denyErr  error
	requests int
	streams  []*fakeStream
	pending  []func(StreamHandle, error)
}

func (d *fakeDevice) RequestStream(_ Constraints, done func(StreamHandle, error)) {
	d.requests++
	switch d.mode {
	case deny:
		err := d.denyErr
		if err == nil {
			err = errors.New("NotAllowedError: Permission denied")
		}
		d.sched.post(func() { done(nil, err) })
	case hold:
		d.pending = append(d.pending, done)
	default:
		s := d.newStream()
		d.sched.post(func() { done(s, nil) })
	}
}

func (d *fakeDevice) newStream() *fakeStream {
	s := &fakeStream{id: fmt.Sprintf("stream-%d", len(d.streams)+1)}
	d.streams = append(d.streams, s)
	return s
}

// grantPending completes held requests with fresh streams.
func (d *fakeDevice) grantPending() {
	pending := d.pending
	d.pending = nil
	for _, done := range pending {
		done(d.newStream(), nil)
	}
}

func (d *fakeDevice) live() int {
	n := 0
	for _, s := range d.streams {
		if !s.stopped {
			n++
		}
	}
	return n
}

type fakePresenter struct {
	navTitle, mapTitle, modeText string
	realtime                     bool
	loading                      map[ChannelID]bool
	generateEnabled              bool
	generateVisible              bool
	outputVisible                bool
	scrolls                      int
	notices                      []string
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{loading: map[ChannelID]bool{}, generateVisible: true}
}

func (p *fakePresenter) SetTitles(nav, m, mode string) {
	p.navTitle, p.mapTitle, p.modeText = nav, m, mode
}
func (p *fakePresenter) SetNavTitle(t string)               { p.navTitle = t }
func (p *fakePresenter) SetRealtimeClass(on bool)           { p.realtime = on }
func (p *fakePresenter) SetLoading(ch ChannelID, on bool)   { p.loading[ch] = on }
func (p *fakePresenter) SetGenerateEnabled(on bool)         { p.generateEnabled = on }
func (p *fakePresenter) SetGenerateVisible(on bool)         { p.generateVisible = on }
func (p *fakePresenter) SetOutputVisible(on bool)           { p.outputVisible = on }
func (p *fakePresenter) ScrollToOutput()                    { p.scrolls++ }
func (p *fakePresenter) Notice(msg string)                  { p.notices = append(p.notices, msg) }

type countingMetrics struct {
	NopMetrics
	reconciles   int
	deferred     int
	cameraStarts int
	cameraFails  map[string]int
	propagations map[string]int
	dropped      int
	loadFailures map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		cameraFails:  map[string]int{},
		propagations: map[string]int{},
		loadFailures: map[string]int{},
	}
}

func (m *countingMetrics) IncReconcile(string)          { m.reconciles++ }
func (m *countingMetrics) IncReconcileDeferred()        { m.deferred++ }
func (m *countingMetrics) IncCameraStart()              { m.cameraStarts++ }
func (m *countingMetrics) IncCameraFailure(k string)    { m.cameraFails[k]++ }
func (m *countingMetrics) IncPropagation(a string)      { m.propagations[a]++ }
func (m *countingMetrics) IncDroppedEcho()              { m.dropped++ }
func (m *countingMetrics) IncLoadFailure(ch string)     { m.loadFailures[ch]++ }

const testBase = "http://localhost:8080/app/"

type harness struct {
	sched     *manualScheduler
	nav, mp   *fakeElement
	device    *fakeDevice
	presenter *fakePresenter
	metrics   *countingMetrics
	ctrl      *Controller
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	s := &manualScheduler{}
	h := &harness{
		sched:     s,
		nav:       newFakeElement(s),
		mp:        newFakeElement(s),
		device:    &fakeDevice{sched: s},
		presenter: newFakePresenter(),
		metrics:   newCountingMetrics(),
	}
	if cfg.Base == nil {
		base, err := url.Parse(testBase)
		if err != nil {
			t.Fatal(err)
		}
		cfg.Base = base
	}
	h.ctrl = NewController(cfg, Deps{
		Nav:       h.nav,
		Map:       h.mp,
		Camera:    h.device,
		Presenter: h.presenter,
		Scheduler: s,
		Log:       testLogger(),
		Metrics:   h.metrics,
	})
	h.ctrl.Init()
	s.settle()
	return h
}

// generate selects both photos and runs Generate to completion.
func (h *harness) generate(t *testing.T) {
	t.Helper()
	h.ctrl.SelectPhoto(SlotCurrent, true)
	h.ctrl.SelectPhoto(SlotDestination, true)
	if err := h.ctrl.Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h.sched.settle()
}
