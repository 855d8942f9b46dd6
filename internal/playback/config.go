package playback

import (
	"net/url"
	"time"
)

// Default demo media locations, relative to the page.
const (
	DefaultStandardVisualNav      = "videos/visual_navigation_demo.mp4"
	DefaultStandardIndoorMap      = "videos/indoor_map_demo.mp4"
	DefaultRealtimeIndoorLocation = "videos/realtime_indoor_location_demo.mp4"
)

// Panel titles and mode toggle text.
const (
	TitleStandardNav = "Visual Navigation Video"
	TitleStandardMap = "Indoor Map Positioning & Navigation"
	TitleRealtimeNav = "Current Location View"
	TitleRealtimeMap = "Realtime Indoor Map Positioning & Navigation"
	ModeTextStandard = "Visual Navigation"
	ModeTextRealtime = "Realtime Visual Navigation"

	ValidationNotice = "Please select both the current location and the destination photos first!"
)

// Sources are the three fixed media locations.
type Sources struct {
	StandardVisualNav      string
	StandardIndoorMap      string
	RealtimeIndoorLocation string
}

// DefaultSources returns the built-in demo media locations.
func DefaultSources() Sources {
	return Sources{
		StandardVisualNav:      DefaultStandardVisualNav,
		StandardIndoorMap:      DefaultStandardIndoorMap,
		RealtimeIndoorLocation: DefaultRealtimeIndoorLocation,
	}
}

// WithDefaults fills empty locations from DefaultSources.
func (s Sources) WithDefaults() Sources {
	d := DefaultSources()
	if s.StandardVisualNav == "" {
		s.StandardVisualNav = d.StandardVisualNav
	}
	if s.StandardIndoorMap == "" {
		s.StandardIndoorMap = d.StandardIndoorMap
	}
	if s.RealtimeIndoorLocation == "" {
		s.RealtimeIndoorLocation = d.RealtimeIndoorLocation
	}
	return s
}

// Config tunes a Controller.
type Config struct {
	Sources Sources
	// Base resolves relative sources into the absolute form elements report.
	Base *url.URL
	// LoadTimeout fails a channel setup that never reports loadeddata or
	// error. Zero waits indefinitely.
	LoadTimeout time.Duration
	// SeekDeadBand overrides the package SeekDeadBand when > 0.
	SeekDeadBand float64
	// DisableFirstAutoplay turns off playback on the first generate pass
	// when neither channel was playing before.
	DisableFirstAutoplay bool
}
