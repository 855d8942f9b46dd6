package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"navsync/internal/playback"

	"github.com/google/uuid"
)

const (
	// DefaultPlayTimeout rejects a play request the page never answers.
	DefaultPlayTimeout = 10 * time.Second
	// DefaultCameraTimeout fails a camera request the page never answers.
	DefaultCameraTimeout = 30 * time.Second
)

var (
	errPlayTimeout   = errors.New("play request timed out")
	errCameraTimeout = errors.New("camera request timed out")
	errNoStream      = errors.New("camera result carried no stream")
)

// executor runs work on a session loop. *playback.Loop satisfies it.
type executor interface {
	playback.Scheduler
	Do(fn func()) error
}

// RemoteOptions tune a Remote. Zero values pick the defaults.
type RemoteOptions struct {
	PlayTimeout   time.Duration
	CameraTimeout time.Duration
	OutboxLimit   int
}

// Remote is the browser end of a session. Its elements, camera and presenter
// turn playback calls into messages for the page, and page reports are fed
// back into the session loop. Everything except Dispatch, Serve, Connected and
// Close runs on the session loop.
type Remote struct {
	id   SessionID
	exec executor
	log  *slog.Logger
	opts RemoteOptions
	out  *outbox

	elements  map[playback.ChannelID]*remoteElement
	camera    *remoteCamera
	presenter *remotePresenter
	plays     map[string]*pendingPlay

	mu         sync.Mutex
	connCancel context.CancelFunc
	connGen    uint64
	closed     bool
}

// NewRemote returns the remote end for session id, running on exec.
func NewRemote(id SessionID, exec executor, log *slog.Logger, opts RemoteOptions) *Remote {
	if opts.PlayTimeout <= 0 {
		opts.PlayTimeout = DefaultPlayTimeout
	}
	if opts.CameraTimeout <= 0 {
		opts.CameraTimeout = DefaultCameraTimeout
	}
	r := &Remote{
		id:    id,
		exec:  exec,
		log:   log,
		opts:  opts,
		out:   newOutbox(opts.OutboxLimit),
		plays: make(map[string]*pendingPlay),
	}
	r.elements = map[playback.ChannelID]*remoteElement{
		playback.NavChannel: newRemoteElement(r, playback.NavChannel),
		playback.MapChannel: newRemoteElement(r, playback.MapChannel),
	}
	r.camera = &remoteCamera{r: r, pending: make(map[string]*pendingCamera)}
	r.presenter = &remotePresenter{r: r}
	return r
}

// Element returns the media element for ch.
func (r *Remote) Element(ch playback.ChannelID) playback.MediaElement {
	return r.elements[ch]
}

// Camera returns the capture device of the page.
func (r *Remote) Camera() playback.CaptureDevice { return r.camera }

// Presenter returns the page presenter.
func (r *Remote) Presenter() playback.Presenter { return r.presenter }

// Connected reports whether a page connection is attached.
func (r *Remote) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connCancel != nil
}

// Close detaches the page and refuses further messages. Messages already
// queued are flushed to the page before its connection closes.
func (r *Remote) Close() {
	r.mu.Lock()
	r.closed = true
	cancel := r.connCancel
	r.connCancel = nil
	r.mu.Unlock()

	r.out.close()
	if cancel != nil {
		cancel()
	}
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// attach registers a page connection, replacing the previous one.
func (r *Remote) attach(cancel context.CancelFunc) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrSessionEnded
	}
	if r.connCancel != nil {
		r.connCancel()
	}
	r.connGen++
	r.connCancel = cancel
	return r.connGen, nil
}

func (r *Remote) detach(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connGen == gen {
		r.connCancel = nil
	}
}

// take drains the outbox for connection gen. It returns false, leaving the
// queue in place, once a newer connection has taken over.
func (r *Remote) take(gen uint64) ([]Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connGen != gen {
		return nil, false
	}
	return r.out.drain(), true
}

func (r *Remote) send(m Message) {
	r.out.push(m)
}

// Dispatch queues a page report for the session loop.
func (r *Remote) Dispatch(rep Report) error {
	switch rep.Type {
	case TypeEvent, TypePlayResult, TypeCameraResult:
	default:
		return fmt.Errorf("unknown report type %q", rep.Type)
	}
	return r.exec.Do(func() { r.ingest(rep) })
}

func (r *Remote) ingest(rep Report) {
	switch rep.Type {
	case TypeEvent:
		el, ok := r.elements[rep.Channel]
		if !ok {
			r.log.Warn("event for unknown channel", slog.String("channel", string(rep.Channel)))
			return
		}
		el.observe(rep)
	case TypePlayResult:
		r.settlePlay(rep.ID, reportError(rep))
	case TypeCameraResult:
		r.camera.settle(rep.ID, rep.Stream, reportError(rep))
	}
}

func reportError(rep Report) error {
	if rep.Error == "" {
		return nil
	}
	return errors.New(rep.Error)
}

type pendingPlay struct {
	el     *remoteElement
	done   func(error)
	cancel func()
}

func (r *Remote) settlePlay(id string, err error) {
	p, ok := r.plays[id]
	if !ok {
		return
	}
	delete(r.plays, id)
	p.cancel()
	if err != nil {
		p.el.paused = true
		r.log.Debug("play rejected",
			slog.String("channel", string(p.el.ch)),
			slog.String("error", err.Error()))
		p.done(fmt.Errorf("%w: %w", playback.ErrPlaybackRejected, err))
		return
	}
	p.done(nil)
}

// remoteElement mirrors the state of one page video element. Writes update
// the mirror immediately; page events carry the authoritative state.
type remoteElement struct {
	r        *Remote
	ch       playback.ChannelID
	src      string
	stream   playback.StreamHandle
	paused   bool
	position float64
	ready    playback.ReadyState
	controls bool
	muted    bool
	listener func(playback.EventType)
}

func newRemoteElement(r *Remote, ch playback.ChannelID) *remoteElement {
	return &remoteElement{r: r, ch: ch, paused: true, controls: true}
}

func (e *remoteElement) SetSource(url string) {
	e.src = url
	m := command(OpSetSource, e.ch)
	m.URL = url
	e.r.send(m)
}

func (e *remoteElement) Source() string { return e.src }

func (e *remoteElement) AttachStream(s playback.StreamHandle) {
	e.reset()
	e.stream = s
	m := command(OpAttachStream, e.ch)
	if s != nil {
		m.Stream = s.ID()
	}
	e.r.send(m)
}

// reset applies the media load algorithm to the mirror.
func (e *remoteElement) reset() {
	e.paused = true
	e.position = 0
	e.ready = playback.HaveNothing
}

func (e *remoteElement) Stream() playback.StreamHandle { return e.stream }

func (e *remoteElement) Load() {
	e.reset()
	e.r.send(command(OpLoad, e.ch))
}

func (e *remoteElement) Play(done func(error)) {
	id := uuid.NewString()
	e.paused = false
	p := &pendingPlay{el: e, done: done}
	e.r.plays[id] = p
	p.cancel = e.r.exec.After(e.r.opts.PlayTimeout, func() {
		e.r.settlePlay(id, errPlayTimeout)
	})
	m := command(OpPlay, e.ch)
	m.ID = id
	e.r.send(m)
}

func (e *remoteElement) Pause() {
	e.paused = true
	e.r.send(command(OpPause, e.ch))
}

func (e *remoteElement) Paused() bool { return e.paused }

func (e *remoteElement) Position() float64 { return e.position }

func (e *remoteElement) SetPosition(seconds float64) {
	e.position = seconds
	m := command(OpSeek, e.ch)
	m.Position = floatPtr(seconds)
	e.r.send(m)
}

func (e *remoteElement) ReadyState() playback.ReadyState { return e.ready }

func (e *remoteElement) SetControls(enabled bool) {
	e.controls = enabled
	m := command(OpControls, e.ch)
	m.Value = boolPtr(enabled)
	e.r.send(m)
}

func (e *remoteElement) Controls() bool { return e.controls }

func (e *remoteElement) SetMuted(muted bool) {
	e.muted = muted
	m := command(OpMuted, e.ch)
	m.Value = boolPtr(muted)
	e.r.send(m)
}

func (e *remoteElement) SetListener(fn func(playback.EventType)) {
	e.listener = fn
}

func (e *remoteElement) observe(rep Report) {
	if rep.Position != nil {
		e.position = *rep.Position
	}
	if rep.Paused != nil {
		e.paused = *rep.Paused
	}
	switch {
	case rep.ReadyState != nil:
		e.ready = *rep.ReadyState
	case rep.Event == playback.EventLoadedData && e.ready < playback.HaveCurrentData:
		// loadeddata implies at least HAVE_CURRENT_DATA.
		e.ready = playback.HaveCurrentData
	}
	if rep.Event != "" && e.listener != nil {
		e.listener(rep.Event)
	}
}

// remoteStream is a capture stream owned by the page.
type remoteStream struct {
	id      string
	r       *Remote
	stopped bool
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	m := command(OpCameraStop, "")
	m.Stream = s.id
	s.r.send(m)
}

type pendingCamera struct {
	done   func(playback.StreamHandle, error)
	cancel func()
}

// remoteCamera asks the page for capture streams.
type remoteCamera struct {
	r       *Remote
	pending map[string]*pendingCamera
}

func (c *remoteCamera) RequestStream(cons playback.Constraints, done func(playback.StreamHandle, error)) {
	id := uuid.NewString()
	p := &pendingCamera{done: done}
	c.pending[id] = p
	p.cancel = c.r.exec.After(c.r.opts.CameraTimeout, func() {
		c.settle(id, "", errCameraTimeout)
	})
	m := command(OpCameraRequest, "")
	m.ID = id
	m.Constraints = &cons
	c.r.send(m)
}

func (c *remoteCamera) settle(id, stream string, err error) {
	p, ok := c.pending[id]
	if !ok {
		if stream != "" {
			c.r.log.Warn("releasing unrequested camera stream", slog.String("stream", stream))
			(&remoteStream{id: stream, r: c.r}).Stop()
		}
		return
	}
	delete(c.pending, id)
	p.cancel()
	switch {
	case err != nil:
		p.done(nil, err)
	case stream == "":
		p.done(nil, errNoStream)
	default:
		p.done(&remoteStream{id: stream, r: c.r}, nil)
	}
}

// remotePresenter forwards labels and visual state to the page.
type remotePresenter struct {
	r *Remote
}

func (p *remotePresenter) SetTitles(nav, mapTitle, modeText string) {
	m := ui(OpTitles)
	m.Nav, m.Map, m.ModeText = nav, mapTitle, modeText
	p.r.send(m)
}

func (p *remotePresenter) SetNavTitle(title string) {
	m := ui(OpNavTitle)
	m.Text = title
	p.r.send(m)
}

func (p *remotePresenter) SetRealtimeClass(on bool) { p.flag(OpRealtimeClass, "", on) }

func (p *remotePresenter) SetLoading(ch playback.ChannelID, on bool) { p.flag(OpLoading, ch, on) }

func (p *remotePresenter) SetGenerateEnabled(enabled bool) { p.flag(OpGenerateEnabled, "", enabled) }

func (p *remotePresenter) SetGenerateVisible(visible bool) { p.flag(OpGenerateVisible, "", visible) }

func (p *remotePresenter) SetOutputVisible(visible bool) { p.flag(OpOutputVisible, "", visible) }

func (p *remotePresenter) ScrollToOutput() { p.r.send(ui(OpScrollOutput)) }

func (p *remotePresenter) Notice(msg string) {
	m := ui(OpNotice)
	m.Text = msg
	p.r.send(m)
}

func (p *remotePresenter) flag(op string, ch playback.ChannelID, on bool) {
	m := ui(op)
	m.Channel = ch
	m.Value = boolPtr(on)
	p.r.send(m)
}
