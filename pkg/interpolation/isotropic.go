package interpolation

import (
	"context"
	"fmt"
	"math"

	"volfusion/internal/models"
)

// DefaultSpacing is the isotropic voxel size used when none is configured.
const DefaultSpacing = 1.0

// IsotropicSize returns the number of samples along an axis after
// resampling to spacing s: floor(extent/s + 0.5) + 1.
func IsotropicSize(inputSpacing float64, inputSize int, s float64) int {
	extent := inputSpacing * float64(inputSize-1)
	return int(math.Floor(extent/s+0.5)) + 1
}

// IsotropicGeometry computes the output grid for Isotropic. Origin and
// direction are unchanged.
func IsotropicGeometry(g models.Geometry, s float64) models.Geometry {
	out := g
	for i := 0; i < 3; i++ {
		out.Dims[i] = IsotropicSize(g.Spacing[i], g.Dims[i], s)
		out.Spacing[i] = s
	}
	return out
}

// Isotropic resamples v onto a grid with spacing s along every axis.
func Isotropic(ctx context.Context, v *models.Volume, s float64, workers int) (*models.Volume, error) {
	if !(s > 0) || math.IsInf(s, 0) {
		return nil, fmt.Errorf("target spacing must be positive, got %v", s)
	}
	if v == nil {
		return nil, fmt.Errorf("nil volume")
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid volume: %w", err)
	}

	dst := IsotropicGeometry(v.Geometry, s)
	var scale [3]float64
	for i := 0; i < 3; i++ {
		scale[i] = s / v.Spacing[i]
	}
	return Resample(ctx, v, dst, ScaleAffine(scale), workers)
}
