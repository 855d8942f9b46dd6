package playback

import (
	"log/slog"
	"math"
)

// Controller is the mode reconciler. It owns both channels, the camera
// supervisor and the synchronizer, and drives every source swap through a
// single reconcile transition guarded by the reconfiguration gate.
//
// A Controller belongs to one session loop; call its methods only from that
// loop.
type Controller struct {
	cfg       Config
	log       *slog.Logger
	metrics   Metrics
	presenter Presenter

	gate   *Gate
	nav    *Channel
	mapCh  *Channel
	camera *Supervisor
	sync   *Synchronizer

	mode      Mode
	selection SelectionState
	generated bool
	// firstPass is set by the first Generate and consumed by the next pass.
	firstPass bool
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Nav       MediaElement
	Map       MediaElement
	Camera    CaptureDevice
	Presenter Presenter
	Scheduler Scheduler
	Log       *slog.Logger
	Metrics   Metrics
}

// NewController wires channels, supervisor and synchronizer together.
func NewController(cfg Config, d Deps) *Controller {
	m := d.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	cfg.Sources = cfg.Sources.WithDefaults()
	opts := ChannelOptions{Base: cfg.Base, LoadTimeout: cfg.LoadTimeout}

	gate := NewGate(d.Scheduler)
	nav := NewChannel(NavChannel, d.Nav, d.Scheduler, d.Presenter, d.Log, opts)
	mapCh := NewChannel(MapChannel, d.Map, d.Scheduler, d.Presenter, d.Log, opts)
	sync := NewSynchronizer(gate, d.Log, m, cfg.SeekDeadBand)
	sync.Wire(nav, mapCh)

	return &Controller{
		cfg:       cfg,
		log:       d.Log,
		metrics:   m,
		presenter: d.Presenter,
		gate:      gate,
		nav:       nav,
		mapCh:     mapCh,
		camera:    NewSupervisor(d.Camera, nav, d.Presenter, d.Log, m),
		sync:      sync,
	}
}

// Init puts the page into its initial Standard state without loading media.
func (c *Controller) Init() {
	c.camera.StopCamera()
	c.presenter.SetRealtimeClass(false)
	c.presenter.SetTitles(TitleStandardNav, TitleStandardMap, ModeTextStandard)
	c.presenter.SetGenerateEnabled(c.selection.Ready())
}

// Mode returns the requested mode.
func (c *Controller) Mode() Mode { return c.mode }

// Syncing reports whether the reconfiguration flag is set.
func (c *Controller) Syncing() bool { return c.gate.Held() }

// Nav returns the navigation channel.
func (c *Controller) Nav() *Channel { return c.nav }

// Map returns the indoor map channel.
func (c *Controller) Map() *Channel { return c.mapCh }

// Camera returns the camera supervisor.
func (c *Controller) Camera() *Supervisor { return c.camera }

// SelectPhoto records a chosen or cleared photo.
func (c *Controller) SelectPhoto(slot PhotoSlot, selected bool) {
	switch slot {
	case SlotCurrent:
		c.selection.CurrentPhotoSelected = selected
	case SlotDestination:
		c.selection.DestinationPhotoSelected = selected
	}
	c.presenter.SetGenerateEnabled(c.selection.Ready())
}

// Selection returns the photo selection state.
func (c *Controller) Selection() SelectionState { return c.selection }

// SetMode records the requested mode and reconciles towards it.
func (c *Controller) SetMode(m Mode) {
	c.mode = m
	c.Reconcile()
}

// Generate reveals the output area and runs a reconcile pass. It returns
// ErrValidation without touching any state when a photo is missing.
func (c *Controller) Generate() error {
	if !c.selection.Ready() {
		c.presenter.Notice(ValidationNotice)
		return ErrValidation
	}
	c.presenter.SetGenerateVisible(false)
	c.presenter.SetOutputVisible(true)
	if !c.generated {
		c.generated = true
		c.firstPass = true
	}
	c.Reconcile()
	c.gate.WhenIdle(func() {
		c.log.Debug("generate settled")
		c.presenter.ScrollToOutput()
	})
	return nil
}

// Transport applies a to channel id on behalf of an operator and mirrors it
// onto the other channel. Seeks on a live channel are ignored. It returns
// ErrReconfiguring while a mode switch holds the gate.
func (c *Controller) Transport(id ChannelID, a Action) error {
	if c.gate.Held() {
		return ErrReconfiguring
	}
	src, dst := c.nav, c.mapCh
	if id == MapChannel {
		src, dst = c.mapCh, c.nav
	}
	c.log.Info("transport",
		slog.String("channel", string(src.id)),
		slog.String("action", a.Kind.String()))
	if !(src.IsLive() && a.Kind == ActionSeek) {
		c.sync.apply(src, a, func() {})
	}
	c.sync.Propagate(src, dst, a, OriginProgrammatic)
	return nil
}

// Shutdown releases the camera.
func (c *Controller) Shutdown() {
	c.camera.StopCamera()
}

type channelState struct {
	wasPlaying bool
	position   float64
}

func (c *Controller) capture(ch *Channel) channelState {
	el := ch.el
	st := channelState{wasPlaying: !el.Paused() && el.ReadyState() >= HaveCurrentData}
	if !ch.IsLive() {
		st.position = el.Position()
	}
	return st
}

// Reconcile transitions both channels to the current mode. While another
// reconfiguration holds the gate, the request is parked in the gate's single
// pending slot and runs once the gate clears, reading the mode at that time.
func (c *Controller) Reconcile() {
	release, ok := c.gate.TryAcquire()
	if !ok {
		c.metrics.IncReconcileDeferred()
		c.log.Debug("reconcile deferred", slog.String("mode", c.mode.String()))
		c.gate.Defer(c.Reconcile)
		return
	}
	handedOff := false
	defer func() {
		if !handedOff {
			release()
		}
	}()

	mode := c.mode
	first := c.firstPass
	c.firstPass = false
	navSt, mapSt := c.capture(c.nav), c.capture(c.mapCh)

	c.nav.el.Pause()
	c.mapCh.el.Pause()
	c.applyLabels(mode)
	c.metrics.IncReconcile(mode.String())
	c.log.Info("reconcile", slog.String("mode", mode.String()), slog.Bool("first", first))

	g := &settleGroup{fn: func() {
		c.log.Debug("reconcile settled", slog.String("mode", mode.String()))
		release()
	}}
	if mode == ModeRealtime {
		c.enterRealtime(navSt, mapSt, g.add())
	} else {
		c.enterStandard(navSt, mapSt, first, g)
	}
	handedOff = true
	g.wait()
}

func (c *Controller) applyLabels(mode Mode) {
	if mode == ModeRealtime {
		c.presenter.SetTitles(TitleRealtimeNav, TitleRealtimeMap, ModeTextRealtime)
	} else {
		c.presenter.SetTitles(TitleStandardNav, TitleStandardMap, ModeTextStandard)
	}
	c.presenter.SetRealtimeClass(mode == ModeRealtime)
}

func (c *Controller) enterRealtime(navSt, mapSt channelState, done func()) {
	sess := c.camera.Session()
	if sess != nil && c.nav.el.Stream() != sess.Stream() {
		c.camera.StopCamera()
	} else if sess == nil && c.nav.IsLive() {
		c.nav.el.AttachStream(nil)
	}
	c.nav.ClearFile()
	c.nav.el.SetControls(false)

	c.camera.StartCamera(func(err error) {
		if err != nil {
			c.log.Warn("realtime without camera", slog.String("error", err.Error()))
			done()
			return
		}
		changed := c.mapCh.UseFile(c.cfg.Sources.RealtimeIndoorLocation)
		c.mapCh.AwaitLoaded(changed, func(err error) {
			if err != nil {
				c.loadFailed(c.mapCh, err)
				done()
				return
			}
			if changed {
				c.mapCh.el.SetPosition(0)
			} else if mapSt.wasPlaying {
				c.restore(c.mapCh, mapSt.position)
			}
			if mapSt.wasPlaying || navSt.wasPlaying || c.camera.Streaming() {
				c.play(c.mapCh, done)
				return
			}
			done()
		})
	})
}

func (c *Controller) enterStandard(navSt, mapSt channelState, first bool, g *settleGroup) {
	c.camera.StopCamera()
	c.nav.el.SetControls(true)
	c.mapCh.el.SetControls(true)

	autoplay := first && !c.cfg.DisableFirstAutoplay &&
		!navSt.wasPlaying && !mapSt.wasPlaying
	c.setupStandard(c.nav, c.cfg.Sources.StandardVisualNav, navSt, autoplay, g.add())
	c.setupStandard(c.mapCh, c.cfg.Sources.StandardIndoorMap, mapSt, autoplay, g.add())
}

func (c *Controller) setupStandard(ch *Channel, src string, st channelState, autoplay bool, done func()) {
	changed := ch.UseFile(src)
	ch.AwaitLoaded(changed, func(err error) {
		if err != nil {
			c.loadFailed(ch, err)
			done()
			return
		}
		if !changed {
			c.restore(ch, st.position)
		}
		if st.wasPlaying || autoplay {
			c.play(ch, done)
			return
		}
		done()
	})
}

func (c *Controller) restore(ch *Channel, position float64) {
	el := ch.el
	if el.ReadyState() >= HaveMetadata && math.Abs(el.Position()-position) > c.sync.deadBand {
		el.SetPosition(position)
	}
}

func (c *Controller) play(ch *Channel, done func()) {
	ch.el.Play(func(err error) {
		if err != nil {
			c.log.Warn("resume playback failed",
				slog.String("channel", string(ch.id)),
				slog.String("error", err.Error()))
		}
		done()
	})
}

func (c *Controller) loadFailed(ch *Channel, err error) {
	c.metrics.IncLoadFailure(string(ch.id))
	c.log.Error("channel setup failed",
		slog.String("channel", string(ch.id)),
		slog.String("error", err.Error()))
}

// Snapshot returns the observable controller state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Mode:      c.mode.String(),
		Syncing:   c.gate.Held(),
		Generated: c.generated,
		Selection: c.selection,
		Channels:  []ChannelSnapshot{c.nav.Snapshot(), c.mapCh.Snapshot()},
	}
	if sess := c.camera.Session(); sess != nil {
		s.CameraSession = sess.ID()
	}
	s.CameraAcquiring = c.camera.Acquiring()
	return s
}

// settleGroup calls fn once every added step has settled and wait was called.
type settleGroup struct {
	pending int
	armed   bool
	fired   bool
	fn      func()
}

func (g *settleGroup) add() func() {
	g.pending++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		g.pending--
		g.check()
	}
}

func (g *settleGroup) wait() {
	g.armed = true
	g.check()
}

func (g *settleGroup) check() {
	if g.armed && !g.fired && g.pending == 0 {
		g.fired = true
		g.fn()
	}
}
