package session

import (
	"context"
	"time"

	"navsync/internal/playback"
)

// SessionID uniquely identifies a page session.
type SessionID string

// Photos holds the names of the picked photos. An empty name means the slot
// is cleared.
type Photos struct {
	Current     string `json:"current,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Session is one page: a session loop, the controller living on it and the
// remote end that talks to the browser.
type Session struct {
	ID        SessionID
	CreatedAt time.Time

	// Ended is guarded by the repository.
	Ended bool

	loop   *playback.Loop
	ctrl   *playback.Controller
	remote *Remote
	cancel context.CancelFunc

	// photos is only touched from the session loop.
	photos Photos
}

// View is the JSON representation of a session. State is omitted once the
// session has ended.
type View struct {
	ID        SessionID          `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Ended     bool               `json:"ended"`
	Connected bool               `json:"connected"`
	Photos    Photos             `json:"photos"`
	State     *playback.Snapshot `json:"state,omitempty"`
}
