// Package fusion blends a fixed volume with an aligned moving volume into a
// single overview volume on the fixed grid.
package fusion

import (
	"errors"
	"fmt"
	"math"

	"volfusion/internal/models"
)

var (
	// ErrOpacityOutOfRange is returned for an opacity outside [0,1]. Values are
	// never clamped silently.
	ErrOpacityOutOfRange = errors.New("moving opacity out of range [0,1]")

	// ErrGridMismatch is returned when the aligned volume does not share the fixed grid.
	ErrGridMismatch = errors.New("aligned volume does not share the fixed grid")
)

// FixedOpacity is the weight of the fixed volume in every blend.
const FixedOpacity = 1.0

// DefaultMovingOpacity is the weight of the moving volume unless configured.
const DefaultMovingOpacity = 0.5

// ValidateOpacity rejects NaN and values outside [0,1].
func ValidateOpacity(o float64) error {
	if math.IsNaN(o) || o < 0 || o > 1 {
		return fmt.Errorf("%w: %v", ErrOpacityOutOfRange, o)
	}
	return nil
}

// Blend computes out = clamp(1.0*fixed + movingOpacity*aligned) per voxel.
// The result is rounded to nearest and clamped to the int16 sample range.
func Blend(fixed, aligned *models.Volume, movingOpacity float64) (*models.Volume, error) {
	if err := ValidateOpacity(movingOpacity); err != nil {
		return nil, err
	}
	if fixed == nil || aligned == nil {
		return nil, fmt.Errorf("blend needs both volumes")
	}
	if !fixed.SameGrid(aligned.Geometry) || len(fixed.Voxels) != len(aligned.Voxels) {
		return nil, ErrGridMismatch
	}

	out := models.NewVolume(fixed.Geometry, fixed.Info)
	for i, f := range fixed.Voxels {
		out.Voxels[i] = models.ClampSample(FixedOpacity*float64(f) + movingOpacity*float64(aligned.Voxels[i]))
	}
	return out, nil
}
