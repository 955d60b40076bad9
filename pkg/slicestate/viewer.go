package slicestate

import "volfusion/internal/models"

// Viewer is the display collaborator for one role. SetSlice is a
// programmatic change and must not call the OnSliceChanged subscriber; only
// user interaction on the viewer emits.
type Viewer interface {
	SetVolume(v *models.Volume)
	SetOrientation(o models.Orientation)
	SetSlice(index int)
	SliceRange() (min, max int)
	Slice() int
	WindowLevel() (window, level float64)
	SetWindowLevel(window, level float64)

	// OnSliceChanged replaces the viewer's single subscriber.
	OnSliceChanged(cb func(index int))
}
