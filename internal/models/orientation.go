package models

import (
	"fmt"
	"strings"
)

// Orientation is the anatomical viewing plane.
type Orientation int

const (
	Axial Orientation = iota
	Coronal
	Sagittal
)

// Orientations lists every orientation in table order.
var Orientations = [3]Orientation{Axial, Coronal, Sagittal}

// SliceAxis returns the voxel index axis perpendicular to the viewing plane.
func (o Orientation) SliceAxis() int {
	switch o {
	case Coronal:
		return 1
	case Sagittal:
		return 0
	default:
		return 2
	}
}

// Plane returns the canonical plane shown for the orientation.
func (o Orientation) Plane() string {
	switch o {
	case Coronal:
		return "XZ"
	case Sagittal:
		return "YZ"
	default:
		return "XY"
	}
}

func (o Orientation) String() string {
	switch o {
	case Axial:
		return "Axial"
	case Coronal:
		return "Coronal"
	case Sagittal:
		return "Sagittal"
	default:
		return "Unknown"
	}
}

// Valid reports whether o is one of the three orientations.
func (o Orientation) Valid() bool {
	return o >= Axial && o <= Sagittal
}

// ParseOrientation accepts the orientation name or its plane, case-insensitively.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "axial", "xy", "z":
		return Axial, nil
	case "coronal", "xz", "y":
		return Coronal, nil
	case "sagittal", "yz", "x":
		return Sagittal, nil
	}
	return Axial, fmt.Errorf("invalid orientation: %q (must be axial, coronal or sagittal)", s)
}

// Role identifies which of the three views a volume or event belongs to.
type Role int

const (
	Fixed Role = iota
	Moving
	Fusion
)

// LoadableRoles are the roles that own a loaded volume and slice storage.
var LoadableRoles = [2]Role{Fixed, Moving}

func (r Role) String() string {
	switch r {
	case Fixed:
		return "fixed"
	case Moving:
		return "moving"
	case Fusion:
		return "fusion"
	default:
		return "unknown"
	}
}

// Loadable reports whether the role owns a loaded volume.
func (r Role) Loadable() bool {
	return r == Fixed || r == Moving
}

// ParseRole parses "fixed", "moving" or "fusion".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "f":
		return Fixed, nil
	case "moving", "m":
		return Moving, nil
	case "fusion", "fused":
		return Fusion, nil
	}
	return Fixed, fmt.Errorf("invalid role: %q (must be fixed, moving or fusion)", s)
}
