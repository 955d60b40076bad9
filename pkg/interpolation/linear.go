package interpolation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"volfusion/internal/models"
)

// Affine maps a destination continuous index to a source continuous index:
// src = M·dst + T.
type Affine struct {
	M [3][3]float64
	T [3]float64
}

// ScaleAffine returns a pure per-axis scaling.
func ScaleAffine(scale [3]float64) Affine {
	var a Affine
	for i := 0; i < 3; i++ {
		a.M[i][i] = scale[i]
	}
	return a
}

// Apply maps p through the affine.
func (a Affine) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = a.M[r][0]*p[0] + a.M[r][1]*p[1] + a.M[r][2]*p[2] + a.T[r]
	}
	return out
}

// Trilinear samples v at continuous index c. Points outside the voxel-covered
// region [-0.5, dim-0.5] on any axis return ok=false; inside it, neighbors
// beyond the last voxel are clamped to the border.
func Trilinear(v *models.Volume, c [3]float64) (float64, bool) {
	var i0, i1 [3]int
	var f [3]float64
	for a := 0; a < 3; a++ {
		n := v.Dims[a]
		x := c[a]
		if math.IsNaN(x) || x < -0.5 || x > float64(n)-0.5 {
			return 0, false
		}
		if x < 0 {
			x = 0
		}
		fl := math.Floor(x)
		i0[a] = int(fl)
		if i0[a] >= n-1 {
			i0[a], i1[a], f[a] = n-1, n-1, 0
			continue
		}
		i1[a] = i0[a] + 1
		f[a] = x - fl
	}

	nx := v.Dims[0]
	nxy := v.Dims[0] * v.Dims[1]
	at := func(x, y, z int) float64 {
		return float64(v.Voxels[x+y*nx+z*nxy])
	}

	c00 := at(i0[0], i0[1], i0[2])*(1-f[0]) + at(i1[0], i0[1], i0[2])*f[0]
	c10 := at(i0[0], i1[1], i0[2])*(1-f[0]) + at(i1[0], i1[1], i0[2])*f[0]
	c01 := at(i0[0], i0[1], i1[2])*(1-f[0]) + at(i1[0], i0[1], i1[2])*f[0]
	c11 := at(i0[0], i1[1], i1[2])*(1-f[0]) + at(i1[0], i1[1], i1[2])*f[0]

	c0 := c00*(1-f[1]) + c10*f[1]
	c1 := c01*(1-f[1]) + c11*f[1]

	return c0*(1-f[2]) + c1*f[2], true
}

// Resample pulls every voxel of the destination grid from src through m,
// using trilinear interpolation and a fill value of 0. Work is split into
// z-slabs processed by up to workers goroutines.
func Resample(ctx context.Context, src *models.Volume, dst models.Geometry, m Affine, workers int) (*models.Volume, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source volume")
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source volume: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("invalid destination grid: %w", err)
	}
	if workers < 1 {
		workers = 1
	}

	out := models.NewVolume(dst, src.Info)
	depth := dst.Dims[2]
	slabsPerWorker := (depth + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < depth; start += slabsPerWorker {
		end := start + slabsPerWorker
		if end > depth {
			end = depth
		}
		g.Go(func() error {
			return resampleSlab(ctx, src, out, m, start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func resampleSlab(ctx context.Context, src, out *models.Volume, m Affine, zStart, zEnd int) error {
	nx, ny := out.Dims[0], out.Dims[1]
	for z := zStart; z < zEnd; z++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for y := 0; y < ny; y++ {
			row := m.Apply([3]float64{0, float64(y), float64(z)})
			idx := y*nx + z*nx*ny
			for x := 0; x < nx; x++ {
				c := [3]float64{
					row[0] + m.M[0][0]*float64(x),
					row[1] + m.M[1][0]*float64(x),
					row[2] + m.M[2][0]*float64(x),
				}
				if val, ok := Trilinear(src, c); ok {
					out.Voxels[idx+x] = models.ClampSample(val)
				}
			}
		}
	}
	return nil
}
