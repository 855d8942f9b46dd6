package playback

import (
	"fmt"
	"strings"
)

// Mode selects which pair of sources feeds the two panels.
type Mode int

const (
	ModeStandard Mode = iota
	ModeRealtime
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	default:
		return "standard"
	}
}

// ParseMode parses "standard" or "realtime" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return ModeStandard, nil
	case "realtime":
		return ModeRealtime, nil
	default:
		return ModeStandard, fmt.Errorf("unknown mode %q", s)
	}
}

// ChannelID names one of the two video output slots.
type ChannelID string

const (
	NavChannel ChannelID = "nav"
	MapChannel ChannelID = "map"
)

// ParseChannelID parses "nav" or "map".
func ParseChannelID(s string) (ChannelID, error) {
	switch id := ChannelID(strings.ToLower(strings.TrimSpace(s))); id {
	case NavChannel, MapChannel:
		return id, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

// SourceKind describes what currently feeds a channel.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceFile
	SourceLiveStream
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceLiveStream:
		return "live"
	default:
		return "none"
	}
}

// PlaybackState is the transport state of a channel.
type PlaybackState int

const (
	Paused PlaybackState = iota
	Playing
)

func (p PlaybackState) String() string {
	if p == Playing {
		return "playing"
	}
	return "paused"
}

// ReadyState mirrors the HTML media readiness levels.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// ActionKind is a mirrored transport operation.
type ActionKind int

const (
	ActionPlay ActionKind = iota
	ActionPause
	ActionSeek
)

func (a ActionKind) String() string {
	switch a {
	case ActionPlay:
		return "play"
	case ActionPause:
		return "pause"
	case ActionSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// Action is a transport operation to mirror onto a target channel.
// Position is only meaningful for ActionSeek.
type Action struct {
	Kind     ActionKind
	Position float64
}

// ParseAction parses "play", "pause" or "seek". position is only used for
// seeks and must not be negative.
func ParseAction(kind string, position float64) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "play":
		return Play(), nil
	case "pause":
		return Pause(), nil
	case "seek":
		if position < 0 {
			return Action{}, fmt.Errorf("invalid seek position %v", position)
		}
		return Seek(position), nil
	default:
		return Action{}, fmt.Errorf("unknown action %q", kind)
	}
}

// Play, Pause and Seek build actions.
func Play() Action            { return Action{Kind: ActionPlay} }
func Pause() Action           { return Action{Kind: ActionPause} }
func Seek(pos float64) Action { return Action{Kind: ActionSeek, Position: pos} }

// Origin tells the synchronizer whether a propagation comes from a user
// interaction (subject to echo suppression) or from the controller itself.
type Origin int

const (
	OriginUser Origin = iota
	OriginProgrammatic
)

// PhotoSlot is one of the two photo pickers.
type PhotoSlot string

const (
	SlotCurrent     PhotoSlot = "current"
	SlotDestination PhotoSlot = "destination"
)

// SelectionState records which photos have been chosen.
type SelectionState struct {
	CurrentPhotoSelected     bool `json:"current_photo_selected"`
	DestinationPhotoSelected bool `json:"destination_photo_selected"`
}

// Ready reports whether generate is permitted.
func (s SelectionState) Ready() bool {
	return s.CurrentPhotoSelected && s.DestinationPhotoSelected
}

// ChannelSnapshot is the observable state of a channel.
type ChannelSnapshot struct {
	ID         ChannelID `json:"id"`
	SourceKind string    `json:"source_kind"`
	Source     string    `json:"source,omitempty"`
	State      string    `json:"state"`
	Position   float64   `json:"position"`
	IsLoading  bool      `json:"is_loading"`
	LoadFailed bool      `json:"load_failed"`
	Controls   bool      `json:"controls"`
}

// Snapshot is the observable state of a controller.
type Snapshot struct {
	Mode            string            `json:"mode"`
	Syncing         bool              `json:"syncing"`
	Generated       bool              `json:"generated"`
	CameraSession   string            `json:"camera_session,omitempty"`
	CameraAcquiring bool              `json:"camera_acquiring"`
	Selection       SelectionState    `json:"selection"`
	Channels        []ChannelSnapshot `json:"channels"`
}
