// Package annotation formats the caption drawn over each slice view.
package annotation

import (
	"fmt"
	"math"

	"volfusion/internal/models"
)

// State is the viewer state a caption is derived from.
type State struct {
	Orientation models.Orientation
	Slice       int
	RangeMin    int
	RangeMax    int
	Window      float64
	Level       float64
}

// Caption holds the three caption lines.
type Caption struct {
	View        string
	Slice       string
	WindowLevel string
}

// Lines returns the caption lines top to bottom.
func (c Caption) Lines() []string {
	return []string{c.View, c.Slice, c.WindowLevel}
}

func (c Caption) String() string {
	return c.View + "\n" + c.Slice + "\n" + c.WindowLevel
}

// SliceSource is the part of a viewer the formatter reads.
type SliceSource interface {
	SliceRange() (min, max int)
	Slice() int
	WindowLevel() (window, level float64)
}

// Format builds the caption. The slice is shown 1-based and clamped into
// [1, total]; window and level are rounded to integers.
func Format(s State) Caption {
	total := s.RangeMax - s.RangeMin + 1
	if total < 1 {
		total = 1
	}
	display := s.Slice - s.RangeMin + 1
	if display < 1 {
		display = 1
	}
	if display > total {
		display = total
	}

	return Caption{
		View:        fmt.Sprintf("View: %s", s.Orientation),
		Slice:       fmt.Sprintf("Slice: %d / %d", display, total),
		WindowLevel: fmt.Sprintf("W: %d  L: %d", round(s.Window), round(s.Level)),
	}
}

// FromViewer reads the current state of v and formats it.
func FromViewer(o models.Orientation, v SliceSource) Caption {
	lo, hi := v.SliceRange()
	w, l := v.WindowLevel()
	return Format(State{
		Orientation: o,
		Slice:       v.Slice(),
		RangeMin:    lo,
		RangeMax:    hi,
		Window:      w,
		Level:       l,
	})
}

func round(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	return int64(math.Round(f))
}
