// Package visualization implements a headless slice viewer: it holds one
// volume, an orientation, the active slice and the display window/level,
// and renders the active slice to an image.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"volfusion/internal/models"
)

// Viewer is safe for concurrent use. SetSlice is programmatic and never
// notifies the subscriber; Scroll and Select model user interaction and do.
type Viewer struct {
	mu sync.Mutex

	volume      *models.Volume
	orientation models.Orientation
	slice       int
	window      float64
	level       float64

	onSliceChanged func(int)
	cache          *SliceCache
}

// Placeholder returns the empty 1x1x1 volume shown before anything is loaded.
func Placeholder() *models.Volume {
	g := models.Geometry{
		Dims:      [3]int{1, 1, 1},
		Spacing:   [3]float64{1, 1, 1},
		Direction: models.IdentityDirection,
	}
	return models.NewVolume(g, models.SeriesInfo{PatientName: "N/A", PatientID: "N/A", SeriesUID: "N/A"})
}

// NewViewer creates a viewer showing the placeholder volume at the given
// window/level. cache may be nil.
func NewViewer(placeholderWindow, placeholderLevel float64, cache *SliceCache) *Viewer {
	return &Viewer{
		volume:      Placeholder(),
		orientation: models.Axial,
		window:      placeholderWindow,
		level:       placeholderLevel,
		cache:       cache,
	}
}

// SetVolume replaces the displayed volume. A nil volume shows the placeholder.
func (v *Viewer) SetVolume(vol *models.Volume) {
	if vol == nil {
		vol = Placeholder()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = vol
	v.slice = v.clampLocked(v.slice)
}

// Volume returns the displayed volume.
func (v *Viewer) Volume() *models.Volume {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.volume
}

// SetOrientation switches the viewing plane; the slice is re-clamped.
func (v *Viewer) SetOrientation(o models.Orientation) {
	if !o.Valid() {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orientation = o
	v.slice = v.clampLocked(v.slice)
}

// Orientation returns the current viewing plane.
func (v *Viewer) Orientation() models.Orientation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.orientation
}

// SetSlice selects a slice, clamped into SliceRange. No notification.
func (v *Viewer) SetSlice(index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slice = v.clampLocked(index)
}

// SliceRange returns the valid slice indices for the current orientation.
func (v *Viewer) SliceRange() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return 0, v.volume.Dims[v.orientation.SliceAxis()] - 1
}

// Slice returns the active slice.
func (v *Viewer) Slice() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.slice
}

// WindowLevel returns the display window width and level.
func (v *Viewer) WindowLevel() (float64, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.window, v.level
}

// SetWindowLevel sets the display window width and level.
func (v *Viewer) SetWindowLevel(window, level float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.window = window
	v.level = level
}

// OnSliceChanged replaces the subscriber notified on user slice changes.
func (v *Viewer) OnSliceChanged(cb func(int)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onSliceChanged = cb
}

// Select moves to index as a user action. The subscriber is called with the
// clamped index, outside the viewer lock, if the slice actually changed.
func (v *Viewer) Select(index int) int {
	v.mu.Lock()
	prev := v.slice
	v.slice = v.clampLocked(index)
	current := v.slice
	cb := v.onSliceChanged
	v.mu.Unlock()

	if cb != nil && current != prev {
		cb(current)
	}
	return current
}

// Scroll moves the active slice by delta as a user action.
func (v *Viewer) Scroll(delta int) int {
	return v.Select(v.Slice() + delta)
}

func (v *Viewer) clampLocked(index int) int {
	hi := v.volume.Dims[v.orientation.SliceAxis()] - 1
	if index < 0 || hi < 0 {
		return 0
	}
	if index > hi {
		return hi
	}
	return index
}

// planeSize returns the width and height of a slice for orientation o.
// Axial shows (x,y), coronal (x,z) and sagittal (y,z).
func planeSize(dims [3]int, o models.Orientation) (int, int) {
	switch o {
	case models.Coronal:
		return dims[0], dims[2]
	case models.Sagittal:
		return dims[1], dims[2]
	default:
		return dims[0], dims[1]
	}
}

// ExtractSlice extracts a 2D slice of the displayed volume. Samples are
// stored as offset binary (int16 + 32768) so that ordering is preserved.
func (v *Viewer) ExtractSlice(o models.Orientation, index int) (*image.Gray16, error) {
	v.mu.Lock()
	vol := v.volume
	v.mu.Unlock()
	return extractSlice(vol, o, index, v.cache)
}

func extractSlice(vol *models.Volume, o models.Orientation, index int, cache *SliceCache) (*image.Gray16, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid orientation: %d", int(o))
	}
	axis := o.SliceAxis()
	if index < 0 || index >= vol.Dims[axis] {
		return nil, fmt.Errorf("position %d outside [0,%d] for %s", index, vol.Dims[axis]-1, o)
	}

	w, h := planeSize(vol.Dims, o)
	img := image.NewGray16(image.Rect(0, 0, w, h))
	if pix := cache.Get(vol.ID, o, index); len(pix) == len(img.Pix) {
		copy(img.Pix, pix)
		return img, nil
	}

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			var s int16
			switch o {
			case models.Axial:
				s = vol.At(col, row, index)
			case models.Coronal:
				s = vol.At(col, index, row)
			case models.Sagittal:
				s = vol.At(index, col, row)
			}
			img.SetGray16(col, row, color.Gray16{Y: uint16(int32(s) + 32768)})
		}
	}
	cache.Put(vol.ID, o, index, img.Pix)
	return img, nil
}

// Window maps a sample to an 8-bit display value for the given window/level.
func Window(sample, window, level float64) uint8 {
	if window < 1 {
		window = 1
	}
	lower := level - window/2
	f := (sample - lower) / window * 255
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f + 0.5)
}

// Render returns the active slice windowed to 8 bits.
func (v *Viewer) Render() (*image.Gray, error) {
	v.mu.Lock()
	vol, o, slice, w, l := v.volume, v.orientation, v.slice, v.window, v.level
	v.mu.Unlock()

	raw, err := extractSlice(vol, o, slice, v.cache)
	if err != nil {
		return nil, err
	}
	return windowImage(raw, w, l), nil
}

// SaveSlice saves an image as a JPEG
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence renders every slice along o with the current
// window/level and writes them as JPEGs into outputDir. The active slice
// and orientation are not changed.
func (v *Viewer) SaveSliceSequence(o models.Orientation, outputDir string) (int, error) {
	if !o.Valid() {
		return 0, fmt.Errorf("invalid orientation: %d", int(o))
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	v.mu.Lock()
	vol, w, l := v.volume, v.window, v.level
	v.mu.Unlock()

	n := vol.Dims[o.SliceAxis()]
	for pos := 0; pos < n; pos++ {
		raw, err := extractSlice(vol, o, pos, v.cache)
		if err != nil {
			return pos, err
		}
		img := windowImage(raw, w, l)

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", o.Plane(), pos))
		if err := SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return n, nil
}

func windowImage(raw *image.Gray16, window, level float64) *image.Gray {
	b := raw.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			s := float64(int32(raw.Gray16At(x, y).Y) - 32768)
			out.SetGray(x, y, color.Gray{Y: Window(s, window, level)})
		}
	}
	return out
}
