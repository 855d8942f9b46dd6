package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"navsync/internal/platform/config"
	"navsync/internal/playback"
	"navsync/internal/session"
)

// settings is the process configuration read from the environment and the
// media file.
type settings struct {
	Port      string
	LogLevel  string
	LogFormat string
	MediaPath string
	Session   session.Options
}

// loadSettings reads the configuration. A non-empty port overrides PORT and
// is used for the default BASE_URL.
func loadSettings(port string) (settings, error) {
	if port == "" {
		port = config.GetEnv("PORT", "8080")
	}
	s := settings{
		Port:      port,
		LogLevel:  config.GetEnv("LOG_LEVEL", "info"),
		LogFormat: config.GetEnv("LOG_FORMAT", "json"),
		MediaPath: config.GetEnv("MEDIA_CONFIG", "media.yaml"),
	}

	rawBase := config.GetEnv("BASE_URL", "http://localhost:"+s.Port+"/")
	base, err := url.Parse(rawBase)
	if err != nil || !base.IsAbs() {
		return s, fmt.Errorf("BASE_URL must be an absolute URL, got %q", rawBase)
	}

	media, err := config.LoadMedia(s.MediaPath)
	if err != nil {
		return s, err
	}

	s.Session = session.Options{
		Playback: playback.Config{
			Sources: playback.Sources{
				StandardVisualNav:      media.Standard.VisualNav,
				StandardIndoorMap:      media.Standard.IndoorMap,
				RealtimeIndoorLocation: media.Realtime.IndoorLocation,
			}.WithDefaults(),
			Base:         base,
			LoadTimeout:  config.GetEnvDuration("LOAD_TIMEOUT", 15*time.Second),
			SeekDeadBand: config.GetEnvFloat("SEEK_DEAD_BAND", playback.SeekDeadBand),
		},
		FrameInterval: config.GetEnvDuration("FRAME_INTERVAL", playback.DefaultFrameInterval),
		Remote: session.RemoteOptions{
			PlayTimeout:   config.GetEnvDuration("PLAY_TIMEOUT", session.DefaultPlayTimeout),
			CameraTimeout: config.GetEnvDuration("CAMERA_TIMEOUT", session.DefaultCameraTimeout),
			OutboxLimit:   config.GetEnvInt("OUTBOX_LIMIT", session.DefaultOutboxLimit),
		},
		AllowedOrigins: splitList(config.GetEnv("ALLOWED_ORIGINS", "")),
	}
	return s, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
