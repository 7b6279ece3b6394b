package render

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/lemonops/lemonbot/calendar"
)

// Glyph drawn in slots without an event; a slot is never left blank.
const placeholder = "-"

// Icon composite offset relative to the slot container's top-left corner.
const iconOffset = 15

// AssetError is a missing or unreadable asset or font. It is a deployment
// configuration problem and not recoverable at render time.
type AssetError struct {
	Name string
	Err  error
}

func (e *AssetError) Error() string { return fmt.Sprintf("asset %s: %v", e.Name, e.Err) }

func (e *AssetError) Unwrap() error { return e.Err }

// Renderer draws the weekly schedule image. Assets and the font are loaded
// once at construction; rendering itself is deterministic for identical
// inputs.
type Renderer struct {
	layout      *Layout
	font        *truetype.Font
	overlay     image.Image
	twitchIcon  image.Image
	discordIcon image.Image

	mu    sync.Mutex
	faces map[float64]font.Face
}

// New loads the layout's assets from assetsDir and parses the configured
// font from assetsDir/fonts/<name>.ttf.
func New(layout *Layout, assetsDir string) (*Renderer, error) {
	fontPath := filepath.Join(assetsDir, "fonts", layout.Font+".ttf")
	raw, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, &AssetError{Name: fontPath, Err: err}
	}
	f, err := truetype.Parse(raw)
	if err != nil {
		return nil, &AssetError{Name: fontPath, Err: err}
	}

	load := func(name string) (image.Image, error) {
		img, err := gg.LoadImage(filepath.Join(assetsDir, name))
		if err != nil {
			return nil, &AssetError{Name: name, Err: err}
		}
		return img, nil
	}
	overlay, err := load(layout.Assets.Overlay)
	if err != nil {
		return nil, err
	}
	twitchIcon, err := load(layout.Assets.TwitchIcon)
	if err != nil {
		return nil, err
	}
	discordIcon, err := load(layout.Assets.DiscordIcon)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		layout:      layout,
		font:        f,
		overlay:     overlay,
		twitchIcon:  twitchIcon,
		discordIcon: discordIcon,
		faces:       make(map[float64]font.Face),
	}, nil
}

func (r *Renderer) face(size float64) font.Face {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(r.font, &truetype.Options{Size: size})
	r.faces[size] = f
	return f
}

// Render produces the PNG schedule image for the week. Each slot shows the
// first event starting on its weekday, or the placeholder glyph when the
// weekday has none.
func (r *Renderer) Render(wr calendar.WeekRange, events []calendar.Event) ([]byte, error) {
	l := r.layout
	dc := gg.NewContext(l.Size.Width, l.Size.Height)
	loc := wr.Start.Location()
	icons := make([]string, l.Slots())

	for i := range l.Slots() {
		offset := l.Spacing * float64(i)
		ev, ok := firstEventForSlot(events, i, loc)
		if !ok {
			r.fillContainer(dc, l.Colors.None, offset)
			r.drawText(dc, placeholder, l.Entries.X, l.Entries.Y+offset, l.Entries.Size)
		} else {
			switch ev.Location {
			case calendar.LocationTwitch:
				r.fillContainer(dc, l.Colors.Twitch, offset)
				icons[i] = calendar.LocationTwitch
			case calendar.LocationDiscord:
				r.fillContainer(dc, l.Colors.Discord, offset)
				icons[i] = calendar.LocationDiscord
			default:
				r.fillContainer(dc, l.Colors.None, offset)
			}

			lines, size := r.fitText(dc, ev.Summary, l.Entries.MaxWidth, l.Entries.MaxHeight, l.Entries.Size)
			blockOffset := lineBlockOffset(len(lines), size)
			for j, line := range lines {
				r.drawText(dc, line, l.Entries.X, l.Entries.Y-blockOffset+size*float64(j)+offset, size)
			}
			r.drawText(dc, clockLabel(ev.Start.In(loc)), l.Time.X, l.Time.Y+offset, l.Time.Size)
		}
		r.drawText(dc, l.Weekdays.Labels[i], l.Weekdays.X, l.Weekdays.Y+offset, l.Weekdays.Size)
	}

	dc.DrawImage(r.overlay, 0, 0)
	for i, tag := range icons {
		x := int(l.Container.X) - iconOffset
		y := int(l.Container.Y+l.Spacing*float64(i)) - iconOffset
		switch tag {
		case calendar.LocationTwitch:
			dc.DrawImage(r.twitchIcon, x, y)
		case calendar.LocationDiscord:
			dc.DrawImage(r.discordIcon, x, y)
		}
	}

	r.drawText(dc, l.Title.Text, l.Title.X, l.Title.Y, l.Title.Size)
	label := dateLabel(wr.Start) + " - " + dateLabel(wr.DisplayEnd())
	r.drawText(dc, label, l.WeekRange.X, l.WeekRange.Y, l.WeekRange.Size)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode schedule image: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) fillContainer(dc *gg.Context, hexColor string, offset float64) {
	l := r.layout
	dc.SetHexColor(hexColor)
	dc.DrawRectangle(l.Container.X, l.Container.Y+offset, l.Container.Width, l.Container.Height)
	dc.Fill()
}

func (r *Renderer) drawText(dc *gg.Context, text string, x, y, size float64) {
	dc.SetHexColor(r.layout.FontColor)
	dc.SetFontFace(r.face(size))
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
}

// fitText word-wraps text to maxWidth at the given font size, decrementing
// the size until the wrapped line block fits maxHeight. Returns the wrapped
// lines and the size they were fitted at.
func (r *Renderer) fitText(dc *gg.Context, text string, maxWidth, maxHeight, initial float64) ([]string, float64) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, initial
	}
	for size := initial; size >= 1; size-- {
		dc.SetFontFace(r.face(size))
		lines := wrapWords(dc, words, maxWidth)
		if float64(len(lines))*size <= maxHeight {
			return lines, size
		}
	}
	return []string{text}, 1
}

func wrapWords(dc *gg.Context, words []string, maxWidth float64) []string {
	lines := make([]string, 0, 1)
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if w, _ := dc.MeasureString(candidate); w <= maxWidth {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
		}
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// lineBlockOffset vertically centers an n-line block around the text
// anchor: even counts sit half a line above center, odd counts center the
// middle line.
func lineBlockOffset(n int, size float64) float64 {
	if n%2 == 0 {
		return (float64(n)/2 - 0.5) * size
	}
	return float64(n/2) * size
}

// firstEventForSlot returns the first event starting on the slot's weekday
// (slot 0 is Monday). Event order is the fetcher's sort order, so the
// earliest event of the day wins.
func firstEventForSlot(events []calendar.Event, slot int, loc *time.Location) (calendar.Event, bool) {
	for _, ev := range events {
		if ev.Kind != calendar.KindEvent {
			continue
		}
		wd := int(ev.Start.In(loc).Weekday())
		if wd == 0 {
			wd = 7
		}
		if wd == slot+1 {
			return ev, true
		}
	}
	return calendar.Event{}, false
}

// clockLabel formats a 12-hour start time with no leading zero and an
// explicit AM/PM suffix; midnight renders as 12AM.
func clockLabel(t time.Time) string {
	h := t.Hour()
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d%s", h, suffix)
}

func dateLabel(t time.Time) string {
	return fmt.Sprintf("%02d.%02d.", t.Day(), int(t.Month()))
}
