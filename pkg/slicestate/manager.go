// Package slicestate keeps the fixed, moving and fusion views consistent
// across orientation switches and slice-change events.
//
// For each loadable role and each orientation the manager stores the last
// selected slice. Stored slices are reset to the mid-slice once, when the
// role is (re)loaded, and otherwise persist for the lifetime of the volume.
// The fusion view has no storage of its own; it mirrors the fixed view.
package slicestate

import (
	"fmt"
	"sync"

	"volfusion/internal/models"
)

// EventType identifies a state change.
type EventType int

const (
	EventLoaded EventType = iota
	EventOrientationChanged
	EventSliceChanged
)

func (e EventType) String() string {
	switch e {
	case EventLoaded:
		return "loaded"
	case EventOrientationChanged:
		return "orientation"
	case EventSliceChanged:
		return "slice"
	default:
		return "unknown"
	}
}

// Event describes a change; Slice is the role's active slice after it.
type Event struct {
	Type        EventType
	Role        models.Role
	Orientation models.Orientation
	Slice       int
}

// EventListener is called after the state lock is released.
type EventListener func(Event)

// Manager is the slice/orientation state machine. It is safe for use from
// several goroutines.
type Manager struct {
	mu sync.Mutex

	orientation models.Orientation
	stored      [2][3]int
	loaded      [2]bool
	dims        [2][3]int
	views       [3]Viewer

	listeners []EventListener
}

// NewManager returns a manager with no roles loaded and the given
// initial orientation.
func NewManager(initial models.Orientation) *Manager {
	if !initial.Valid() {
		initial = models.Axial
	}
	return &Manager{orientation: initial}
}

// MidSlice returns size/2 clamped into [0, size-1].
func MidSlice(size int) int {
	return clamp(size/2, 0, size-1)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// On registers a listener for every event.
func (m *Manager) On(listener EventListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

func (m *Manager) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	listeners := m.listeners
	m.mu.Unlock()

	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

// Attach binds a viewer to a role and subscribes to its slice-changed
// notifications. The viewer immediately receives the current orientation
// and, for a loaded role, its stored slice.
func (m *Manager) Attach(role models.Role, v Viewer) {
	if v == nil || role < models.Fixed || role > models.Fusion {
		return
	}
	m.mu.Lock()
	m.views[role] = v
	v.SetOrientation(m.orientation)
	switch {
	case role.Loadable() && m.loaded[role]:
		v.SetSlice(m.stored[role][m.orientation])
	case role == models.Fusion && m.loaded[models.Fixed]:
		v.SetSlice(m.stored[models.Fixed][m.orientation])
	}
	m.mu.Unlock()

	v.OnSliceChanged(func(index int) {
		m.ReportSliceChanged(role, index)
	})
}

// Load marks role as loaded with a volume of the given grid and resets its
// stored slice for every orientation to the mid-slice. The other role's
// storage and the global orientation are not touched.
func (m *Manager) Load(role models.Role, g models.Geometry) error {
	if !role.Loadable() {
		return fmt.Errorf("role %s cannot be loaded", role)
	}
	for i := 0; i < 3; i++ {
		if g.Dims[i] < 1 {
			return fmt.Errorf("invalid dimensions %v", g.Dims)
		}
	}

	m.mu.Lock()
	m.loaded[role] = true
	m.dims[role] = g.Dims
	for _, o := range models.Orientations {
		m.stored[role][o] = MidSlice(g.Dims[o.SliceAxis()])
	}
	o := m.orientation
	active := m.stored[role][o]
	if v := m.views[role]; v != nil {
		v.SetOrientation(o)
		v.SetSlice(active)
	}
	if role == models.Fixed {
		m.mirrorFusionLocked()
	}
	m.mu.Unlock()

	m.emit([]Event{{Type: EventLoaded, Role: role, Orientation: o, Slice: active}})
	return nil
}

// SetOrientation switches every view to o. Each loaded role's stored slice
// for o is clamped against that role's range, re-stored and applied.
func (m *Manager) SetOrientation(o models.Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("invalid orientation %d", int(o))
	}

	var events []Event
	m.mu.Lock()
	m.orientation = o
	axis := o.SliceAxis()
	for _, r := range models.LoadableRoles {
		v := m.views[r]
		if v != nil {
			v.SetOrientation(o)
		}
		if !m.loaded[r] {
			continue
		}
		s := clamp(m.stored[r][o], 0, m.dims[r][axis]-1)
		m.stored[r][o] = s
		if v != nil {
			v.SetSlice(s)
		}
		events = append(events, Event{Type: EventOrientationChanged, Role: r, Orientation: o, Slice: s})
	}
	m.mirrorFusionLocked()
	m.mu.Unlock()

	m.emit(events)
	return nil
}

// ReportSliceChanged records a slice selected on the role's viewer for the
// current orientation. Reports from an unloaded role are ignored. A report
// from the fusion view is not recorded and puts the fusion view back on
// the fixed slice. The return value tells whether the report was recorded.
func (m *Manager) ReportSliceChanged(role models.Role, index int) bool {
	if role == models.Fusion {
		m.SyncFusion()
		return false
	}
	if !role.Loadable() {
		return false
	}

	m.mu.Lock()
	if !m.loaded[role] {
		m.mu.Unlock()
		return false
	}
	o := m.orientation
	s := clamp(index, 0, m.dims[role][o.SliceAxis()]-1)
	m.stored[role][o] = s
	if role == models.Fixed {
		m.mirrorFusionLocked()
	}
	m.mu.Unlock()

	m.emit([]Event{{Type: EventSliceChanged, Role: role, Orientation: o, Slice: s}})
	return true
}

// SyncFusion re-applies the fixed orientation and slice to the fusion
// view, typically right after a new fusion volume was installed on it.
func (m *Manager) SyncFusion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrorFusionLocked()
}

func (m *Manager) mirrorFusionLocked() {
	v := m.views[models.Fusion]
	if v == nil {
		return
	}
	v.SetOrientation(m.orientation)
	if m.loaded[models.Fixed] {
		v.SetSlice(m.stored[models.Fixed][m.orientation])
	}
}

// Orientation returns the global orientation.
func (m *Manager) Orientation() models.Orientation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orientation
}

// Loaded reports whether role has a volume. Fusion counts as loaded when
// the fixed role is.
func (m *Manager) Loaded(role models.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role == models.Fusion {
		return m.loaded[models.Fixed]
	}
	return role.Loadable() && m.loaded[role]
}

// StoredSlice returns the slice stored for (role, o). Fusion resolves to
// the fixed role. ok is false for an unloaded role.
func (m *Manager) StoredSlice(role models.Role, o models.Orientation) (slice int, ok bool) {
	if !o.Valid() {
		return 0, false
	}
	if role == models.Fusion {
		role = models.Fixed
	}
	if !role.Loadable() {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded[role] {
		return 0, false
	}
	return m.stored[role][o], true
}

// ActiveSlice returns the stored slice of role for the current orientation.
func (m *Manager) ActiveSlice(role models.Role) (int, bool) {
	if role == models.Fusion {
		role = models.Fixed
	}
	if !role.Loadable() {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded[role] {
		return 0, false
	}
	return m.stored[role][m.orientation], true
}
