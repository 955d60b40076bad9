// Package registration performs geometric-center coarse alignment.
//
// The only transform estimated is a translation that superimposes the
// physical centers of the fixed and moving volumes. There is no rotation,
// scaling or intensity-driven optimization.
package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"volfusion/internal/models"
	"volfusion/pkg/interpolation"
)

// ErrMissingCounterpart is returned when one of the two volumes is absent.
// Callers treat it as "skip fusion", not as a failure.
var ErrMissingCounterpart = errors.New("alignment needs both fixed and moving volumes")

// Result is the outcome of a coarse alignment.
type Result struct {
	// Translation maps moving space onto fixed space: center(F) - center(M)
	Translation [3]float64

	// Aligned is the moving volume resampled onto the fixed grid
	Aligned *models.Volume

	// FixedID and MovingID identify the inputs the result was computed from
	FixedID  uuid.UUID
	MovingID uuid.UUID
}

// Center returns the physical center of the voxel grid:
// origin + D·(spacing∘(size-1)/2).
func Center(g models.Geometry) [3]float64 {
	half := mat.NewVecDense(3, nil)
	for i := 0; i < 3; i++ {
		half.SetVec(i, g.Spacing[i]*float64(g.Dims[i]-1)/2)
	}
	d := mat.NewDense(3, 3, append([]float64(nil), g.Direction[:]...))

	var c mat.VecDense
	c.MulVec(d, half)
	return [3]float64{g.Origin[0] + c.AtVec(0), g.Origin[1] + c.AtVec(1), g.Origin[2] + c.AtVec(2)}
}

// Translation returns center(fixed) - center(moving).
func Translation(fixed, moving models.Geometry) [3]float64 {
	cf := Center(fixed)
	cm := Center(moving)
	return [3]float64{cf[0] - cm[0], cf[1] - cm[1], cf[2] - cm[2]}
}

// IndexMapping builds the affine from a fixed-grid index to a continuous
// moving-grid index for a fixed->moving point mapping q = p - delta:
//
//	m = S_m⁻¹ D_mᵀ (O_f + D_f S_f j - delta - O_m)
func IndexMapping(fixed, moving models.Geometry, delta [3]float64) interpolation.Affine {
	df := mat.NewDense(3, 3, append([]float64(nil), fixed.Direction[:]...))
	dm := mat.NewDense(3, 3, append([]float64(nil), moving.Direction[:]...))
	sf := mat.NewDiagDense(3, fixed.Spacing[:])
	invSm := mat.NewDiagDense(3, []float64{1 / moving.Spacing[0], 1 / moving.Spacing[1], 1 / moving.Spacing[2]})

	var left, rot, lin mat.Dense
	left.Mul(invSm, dm.T())
	rot.Mul(&left, df)
	lin.Mul(&rot, sf)

	off := mat.NewVecDense(3, []float64{
		fixed.Origin[0] - delta[0] - moving.Origin[0],
		fixed.Origin[1] - delta[1] - moving.Origin[1],
		fixed.Origin[2] - delta[2] - moving.Origin[2],
	})
	var t mat.VecDense
	t.MulVec(&left, off)

	var a interpolation.Affine
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			a.M[r][c] = lin.At(r, c)
		}
		a.T[r] = t.AtVec(r)
	}
	return a
}

// Align computes the center translation and resamples moving onto exactly
// the fixed grid through the inverse mapping, with linear interpolation and
// a fill value of 0.
func Align(ctx context.Context, fixed, moving *models.Volume, workers int) (*Result, error) {
	if fixed == nil || moving == nil {
		return nil, ErrMissingCounterpart
	}
	if err := fixed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixed volume: %w", err)
	}
	if err := moving.Validate(); err != nil {
		return nil, fmt.Errorf("invalid moving volume: %w", err)
	}

	delta := Translation(fixed.Geometry, moving.Geometry)
	m := IndexMapping(fixed.Geometry, moving.Geometry, delta)

	aligned, err := interpolation.Resample(ctx, moving, fixed.Geometry, m, workers)
	if err != nil {
		return nil, fmt.Errorf("resampling moving volume: %w", err)
	}

	return &Result{
		Translation: delta,
		Aligned:     aligned,
		FixedID:     fixed.ID,
		MovingID:    moving.ID,
	}, nil
}
