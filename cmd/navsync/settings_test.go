package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"navsync/internal/playback"
)

func writeMedia(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSettings_defaults(t *testing.T) {
	t.Setenv("PORT", "9000")
	for _, key := range []string{"BASE_URL", "SEEK_DEAD_BAND", "FRAME_INTERVAL"} {
		t.Setenv(key, "")
	}
	t.Setenv("MEDIA_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	s, err := loadSettings("")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Session.Playback.Base.String(); got != "http://localhost:9000/" {
		t.Errorf("base = %q", got)
	}
	if s.Session.Playback.Sources != playback.DefaultSources() {
		t.Errorf("sources = %+v", s.Session.Playback.Sources)
	}
	if s.Session.Playback.SeekDeadBand != playback.SeekDeadBand {
		t.Errorf("dead band = %v", s.Session.Playback.SeekDeadBand)
	}
	if s.Session.FrameInterval != playback.DefaultFrameInterval {
		t.Errorf("frame interval = %v", s.Session.FrameInterval)
	}
}

func TestLoadSettings_overrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://nav.example/app/")
	t.Setenv("LOAD_TIMEOUT", "4s")
	t.Setenv("SEEK_DEAD_BAND", "0.5")
	t.Setenv("MEDIA_CONFIG", writeMedia(t, "realtime:\n  indoor_location: live/map.mp4\n"))

	s, err := loadSettings("")
	if err != nil {
		t.Fatal(err)
	}
	cfg := s.Session.Playback
	if cfg.LoadTimeout != 4*time.Second || cfg.SeekDeadBand != 0.5 {
		t.Errorf("timeout=%v dead band=%v", cfg.LoadTimeout, cfg.SeekDeadBand)
	}
	if cfg.Sources.RealtimeIndoorLocation != "live/map.mp4" {
		t.Errorf("realtime source = %q", cfg.Sources.RealtimeIndoorLocation)
	}
	if cfg.Sources.StandardVisualNav != playback.DefaultStandardVisualNav {
		t.Errorf("unset sources keep defaults, got %q", cfg.Sources.StandardVisualNav)
	}
}

func TestLoadSettings_port_flag_sets_default_base(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BASE_URL", "")
	t.Setenv("MEDIA_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	s, err := loadSettings("3000")
	if err != nil {
		t.Fatal(err)
	}
	if s.Port != "3000" {
		t.Errorf("port = %q", s.Port)
	}
	if got := s.Session.Playback.Base.String(); got != "http://localhost:3000/" {
		t.Errorf("base = %q", got)
	}
}

func TestLoadSettings_allowed_origins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " https://kiosk.example, ,https://ops.example ")
	t.Setenv("MEDIA_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	s, err := loadSettings("")
	if err != nil {
		t.Fatal(err)
	}
	got := s.Session.AllowedOrigins
	if len(got) != 2 || got[0] != "https://kiosk.example" || got[1] != "https://ops.example" {
		t.Errorf("allowed origins = %q", got)
	}
}

func TestLoadSettings_relative_base_rejected(t *testing.T) {
	t.Setenv("BASE_URL", "/app/")
	if _, err := loadSettings(""); err == nil {
		t.Error("expected an error for a relative BASE_URL")
	}
}

func TestSourcesCmd(t *testing.T) {
	t.Setenv("BASE_URL", "https://nav.example/app/")
	t.Setenv("MEDIA_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cmd := newSourcesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"https://nav.example/app/videos/visual_navigation_demo.mp4",
		"https://nav.example/app/videos/indoor_map_demo.mp4",
		"https://nav.example/app/videos/realtime_indoor_location_demo.mp4",
		"(rear camera)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
