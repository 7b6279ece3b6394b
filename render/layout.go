// Package render lays out the fixed-size weekly schedule image: one slot
// per weekday with auto-fit event text, a time label, location-keyed
// colors and icons, and the title/date-range header.
package render

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TextAnchor positions center-aligned text; X/Y are the text center.
type TextAnchor struct {
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Size float64 `yaml:"size"`
}

// Layout is the static structural description of the schedule image,
// loaded once and treated as immutable afterwards. Positions of repeating
// elements refer to the first slot; later slots are offset by Spacing.
type Layout struct {
	Size struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"size"`
	Container struct {
		X      float64 `yaml:"x"`
		Y      float64 `yaml:"y"`
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
	} `yaml:"container"`
	Spacing   float64 `yaml:"spacing"`
	Font      string  `yaml:"font"`
	FontColor string  `yaml:"fontcolor"`
	Title     struct {
		Text string `yaml:"text"`
		TextAnchor `yaml:",inline"`
	} `yaml:"title"`
	WeekRange TextAnchor `yaml:"weekrange"`
	Weekdays  struct {
		Labels []string `yaml:"labels"`
		TextAnchor `yaml:",inline"`
	} `yaml:"weekdays"`
	Entries struct {
		TextAnchor `yaml:",inline"`
		MaxWidth  float64 `yaml:"maxwidth"`
		MaxHeight float64 `yaml:"maxheight"`
	} `yaml:"entries"`
	Time   TextAnchor `yaml:"time"`
	Colors struct {
		None    string `yaml:"none"`
		Twitch  string `yaml:"twitch"`
		Discord string `yaml:"discord"`
	} `yaml:"colors"`
	Assets struct {
		Overlay     string `yaml:"overlay"`
		TwitchIcon  string `yaml:"twitchicon"`
		DiscordIcon string `yaml:"discordicon"`
	} `yaml:"assets"`
}

// LoadLayout reads and validates a layout YAML file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return &l, nil
}

// Slots is the number of weekday slots; identical to the weekday label
// count by construction.
func (l *Layout) Slots() int { return len(l.Weekdays.Labels) }

// Validate enforces the structural invariants the renderer relies on.
func (l *Layout) Validate() error {
	if l.Size.Width <= 0 || l.Size.Height <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", l.Size.Width, l.Size.Height)
	}
	if n := len(l.Weekdays.Labels); n != 5 && n != 7 {
		return fmt.Errorf("weekday labels must cover 5 or 7 slots, got %d", n)
	}
	if l.Spacing <= 0 {
		return fmt.Errorf("slot spacing must be positive")
	}
	if l.Font == "" {
		return fmt.Errorf("font name is required")
	}
	if l.Entries.MaxWidth <= 0 || l.Entries.MaxHeight <= 0 {
		return fmt.Errorf("entry text box must have positive dimensions")
	}
	if l.Entries.Size <= 0 {
		return fmt.Errorf("entry font size must be positive")
	}
	return nil
}
