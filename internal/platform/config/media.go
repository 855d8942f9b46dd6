package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Media is the media location file. Paths may be relative to the page or
// absolute URLs. Empty fields keep the built-in defaults.
//
//	standard:
//	  visual_nav: videos/visual_navigation_demo.mp4
//	  indoor_map: videos/indoor_map_demo.mp4
//	realtime:
//	  indoor_location: videos/realtime_indoor_location_demo.mp4
type Media struct {
	Standard struct {
		VisualNav string `yaml:"visual_nav"`
		IndoorMap string `yaml:"indoor_map"`
	} `yaml:"standard"`
	Realtime struct {
		IndoorLocation string `yaml:"indoor_location"`
	} `yaml:"realtime"`
}

// LoadMedia parses the media file at path. A missing file yields an empty
// Media and no error.
func LoadMedia(path string) (Media, error) {
	var m Media
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("read media config: %w", err)
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse media config %s: %w", path, err)
	}
	return m, nil
}
