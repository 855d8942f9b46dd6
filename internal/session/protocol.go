package session

import (
	"sync"

	"navsync/internal/playback"
)

// Message types.
const (
	TypeCommand      = "command"
	TypeUI           = "ui"
	TypeEvent        = "event"
	TypePlayResult   = "play_result"
	TypeCameraResult = "camera_result"
)

// Command ops sent to the page. Each targets one video element unless noted.
const (
	OpSetSource     = "set_source"
	OpAttachStream  = "attach_stream"
	OpLoad          = "load"
	OpPlay          = "play"
	OpPause         = "pause"
	OpSeek          = "seek"
	OpControls      = "controls"
	OpMuted         = "muted"
	OpCameraRequest = "camera_request"
	OpCameraStop    = "camera_stop"
)

// UI ops sent to the page.
const (
	OpTitles          = "titles"
	OpNavTitle        = "nav_title"
	OpRealtimeClass   = "realtime_class"
	OpLoading         = "loading"
	OpGenerateEnabled = "generate_enabled"
	OpGenerateVisible = "generate_visible"
	OpOutputVisible   = "output_visible"
	OpScrollOutput    = "scroll_output"
	OpNotice          = "notice"
)

// Message is sent from the controller to the page.
type Message struct {
	Type        string                `json:"type"`
	Op          string                `json:"op"`
	ID          string                `json:"id,omitempty"`
	Channel     playback.ChannelID    `json:"channel,omitempty"`
	URL         string                `json:"url,omitempty"`
	Stream      string                `json:"stream,omitempty"`
	Position    *float64              `json:"position,omitempty"`
	Value       *bool                 `json:"value,omitempty"`
	Constraints *playback.Constraints `json:"constraints,omitempty"`
	Nav         string                `json:"nav,omitempty"`
	Map         string                `json:"map,omitempty"`
	ModeText    string                `json:"mode_text,omitempty"`
	Text        string                `json:"text,omitempty"`
}

// Report is sent from the page to the controller. Position, Paused and
// ReadyState carry the element state at the time of the event.
type Report struct {
	Type       string               `json:"type"`
	ID         string               `json:"id,omitempty"`
	Channel    playback.ChannelID   `json:"channel,omitempty"`
	Event      playback.EventType   `json:"event,omitempty"`
	Position   *float64             `json:"position,omitempty"`
	Paused     *bool                `json:"paused,omitempty"`
	ReadyState *playback.ReadyState `json:"ready_state,omitempty"`
	Stream     string               `json:"stream,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func command(op string, ch playback.ChannelID) Message {
	return Message{Type: TypeCommand, Op: op, Channel: ch}
}

func ui(op string) Message {
	return Message{Type: TypeUI, Op: op}
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

// DefaultOutboxLimit bounds the messages queued for a page that is not
// reading.
const DefaultOutboxLimit = 1024

// outbox queues messages for the page connection. Messages pushed while no
// page is connected wait for the next one. When full, the oldest message is
// dropped.
type outbox struct {
	mu      sync.Mutex
	queue   []Message
	limit   int
	dropped int
	closed  bool
	wake    chan struct{}
}

func newOutbox(limit int) *outbox {
	if limit <= 0 {
		limit = DefaultOutboxLimit
	}
	return &outbox{limit: limit, wake: make(chan struct{}, 1)}
}

func (o *outbox) push(m Message) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if len(o.queue) >= o.limit {
		o.queue = o.queue[1:]
		o.dropped++
	}
	o.queue = append(o.queue, m)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// ready is signalled after a push.
func (o *outbox) ready() <-chan struct{} {
	return o.wake
}

// drain takes every queued message.
func (o *outbox) drain() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

// droppedCount returns how many messages were discarded because the queue
// was full.
func (o *outbox) droppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// close refuses further pushes. Queued messages stay drainable.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
