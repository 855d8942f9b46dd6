package playback

import (
	"errors"
	"log/slog"
	"net/url"
	"time"
)

var errLoadSuperseded = errors.New("superseded by a newer load")

// Channel is a logical video output slot bound to one media element.
type Channel struct {
	id          ChannelID
	el          MediaElement
	sched       Scheduler
	presenter   Presenter
	log         *slog.Logger
	base        *url.URL
	loadTimeout time.Duration

	loading bool
	// failed is set when the last load reported an error or timed out.
	failed bool
	wait   *loadWait

	// transport receives play, pause and seeked notifications.
	transport func(ch *Channel, ev EventType)
}

type loadWait struct {
	done   func(error)
	cancel func()
}

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	// Base resolves relative sources; nil keeps them as given.
	Base *url.URL
	// LoadTimeout settles a pending load as failed; zero waits forever.
	LoadTimeout time.Duration
}

// NewChannel binds el to a channel and registers the channel as its listener.
func NewChannel(id ChannelID, el MediaElement, sched Scheduler, p Presenter, log *slog.Logger, opts ChannelOptions) *Channel {
	ch := &Channel{
		id:          id,
		el:          el,
		sched:       sched,
		presenter:   p,
		log:         log.With(slog.String("channel", string(id))),
		base:        opts.Base,
		loadTimeout: opts.LoadTimeout,
	}
	el.SetListener(ch.handle)
	return ch
}

// ID returns the channel name.
func (c *Channel) ID() ChannelID { return c.id }

// Kind reports what currently feeds the channel.
func (c *Channel) Kind() SourceKind {
	switch {
	case c.el.Stream() != nil:
		return SourceLiveStream
	case c.el.Source() != "":
		return SourceFile
	default:
		return SourceNone
	}
}

// IsLive reports whether a live stream is attached.
func (c *Channel) IsLive() bool {
	return c.el.Stream() != nil
}

// State returns the transport state.
func (c *Channel) State() PlaybackState {
	if c.el.Paused() {
		return Paused
	}
	return Playing
}

// IsLoading reports whether the loading overlay is shown.
func (c *Channel) IsLoading() bool { return c.loading }

// Resolve turns a configured source into the absolute form the element
// reports, so equal sources compare equal regardless of how they were written.
func (c *Channel) Resolve(src string) string {
	return ResolveSource(c.base, src)
}

// ResolveSource resolves src against base. Unparseable sources are returned
// unchanged.
func ResolveSource(base *url.URL, src string) string {
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// UseFile points the channel at src. The element is only reloaded when the
// resolved source differs from the current one, a stream is attached, or the
// current source has no data because its last load failed or never ran.
func (c *Channel) UseFile(src string) (reloaded bool) {
	resolved := c.Resolve(src)
	if c.el.Stream() == nil && c.el.Source() == resolved &&
		!c.failed && c.el.ReadyState() > HaveNothing {
		return false
	}
	if c.el.Stream() != nil {
		c.el.AttachStream(nil)
	}
	c.failed = false
	c.el.SetSource(resolved)
	c.el.Load()
	return true
}

// ClearFile removes any file source so it cannot coexist with a stream.
func (c *Channel) ClearFile() {
	if c.el.Source() != "" {
		c.el.SetSource("")
	}
}

// AwaitLoaded calls done once the element has data for the current source.
// When the source was not reloaded and data is already present, done runs
// immediately. A newer wait settles the older one as failed.
func (c *Channel) AwaitLoaded(reloaded bool, done func(error)) {
	if c.wait != nil {
		c.settle(&MediaLoadError{Channel: c.id, Source: c.el.Source(), Err: errLoadSuperseded})
	}
	if !reloaded && c.el.ReadyState() >= HaveCurrentData {
		done(nil)
		return
	}
	w := &loadWait{done: done}
	if c.loadTimeout > 0 {
		w.cancel = c.sched.After(c.loadTimeout, func() {
			if c.wait != w {
				return
			}
			c.setLoading(false)
			c.failed = true
			c.settle(&MediaLoadError{Channel: c.id, Source: c.el.Source(), Err: ErrLoadTimeout})
		})
	}
	c.wait = w
}

func (c *Channel) settle(err error) {
	w := c.wait
	if w == nil {
		return
	}
	c.wait = nil
	if w.cancel != nil {
		w.cancel()
	}
	w.done(err)
}

func (c *Channel) setLoading(on bool) {
	if c.loading == on {
		return
	}
	c.loading = on
	if c.presenter != nil {
		c.presenter.SetLoading(c.id, on)
	}
}

func (c *Channel) handle(ev EventType) {
	switch ev {
	case EventLoadStart, EventWaiting:
		c.setLoading(true)
	case EventLoadedData:
		c.setLoading(false)
		c.failed = false
		c.settle(nil)
	case EventCanPlayThrough, EventPlaying, EventEmptied:
		c.setLoading(false)
	case EventError:
		c.setLoading(false)
		c.failed = true
		c.log.Error("media element error", slog.String("source", c.el.Source()))
		c.settle(&MediaLoadError{Channel: c.id, Source: c.el.Source()})
	case EventPlay, EventPause, EventSeeked:
		if c.transport != nil {
			c.transport(c, ev)
		}
	}
}

// Snapshot returns the observable channel state.
func (c *Channel) Snapshot() ChannelSnapshot {
	return ChannelSnapshot{
		ID:         c.id,
		SourceKind: c.Kind().String(),
		Source:     c.el.Source(),
		State:      c.State().String(),
		Position:   c.el.Position(),
		IsLoading:  c.loading,
		LoadFailed: c.failed,
		Controls:   c.el.Controls(),
	}
}
