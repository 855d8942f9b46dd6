package playback

// EventType is a media element notification.
type EventType string

const (
	EventLoadStart      EventType = "loadstart"
	EventProgress       EventType = "progress"
	EventLoadedData     EventType = "loadeddata"
	EventWaiting        EventType = "waiting"
	EventCanPlayThrough EventType = "canplaythrough"
	EventPlaying        EventType = "playing"
	EventEmptied        EventType = "emptied"
	EventError          EventType = "error"
	EventPlay           EventType = "play"
	EventPause          EventType = "pause"
	EventSeeked         EventType = "seeked"
)

// MediaElement is the capability surface of one video element.
//
// All methods are called from the session loop. Implementations deliver
// notifications to the listener registered with SetListener, also on the
// session loop.
type MediaElement interface {
	// SetSource points the element at a URL. An empty string clears it.
	SetSource(url string)
	// Source returns the current source as an absolute URL, or "".
	Source() string
	// AttachStream binds a live stream; nil detaches it.
	AttachStream(s StreamHandle)
	Stream() StreamHandle
	Load()
	// Play requests playback; done is called once the request settles.
	Play(done func(error))
	Pause()
	Paused() bool
	Position() float64
	SetPosition(seconds float64)
	ReadyState() ReadyState
	SetControls(enabled bool)
	Controls() bool
	SetMuted(muted bool)
	SetListener(fn func(EventType))
}

// StreamHandle is an acquired live capture stream.
type StreamHandle interface {
	ID() string
	// Stop releases every hardware track of the stream.
	Stop()
}

// Constraints describe the capture stream to request.
type Constraints struct {
	Video      bool   `json:"video"`
	Audio      bool   `json:"audio"`
	FacingMode string `json:"facing_mode,omitempty"`
}

// RearCamera is the stream requested for realtime navigation.
var RearCamera = Constraints{Video: true, Audio: false, FacingMode: "environment"}

// CaptureDevice acquires live capture streams.
type CaptureDevice interface {
	// RequestStream asks for a stream; done is called exactly once.
	RequestStream(c Constraints, done func(StreamHandle, error))
}

// Presenter is the sink for labels and visual state on the page.
type Presenter interface {
	SetTitles(nav, mapTitle, modeText string)
	SetNavTitle(title string)
	SetRealtimeClass(on bool)
	SetLoading(ch ChannelID, on bool)
	SetGenerateEnabled(enabled bool)
	SetGenerateVisible(visible bool)
	SetOutputVisible(visible bool)
	ScrollToOutput()
	Notice(msg string)
}
