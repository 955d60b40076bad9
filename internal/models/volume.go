package models

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Geometry describes how a voxel grid sits in physical space.
type Geometry struct {
	// Dims is the number of voxels along each index axis
	Dims [3]int

	// Spacing is the physical size of a voxel along each index axis
	Spacing [3]float64

	// Origin is the physical position of voxel (0,0,0)
	Origin [3]float64

	// Direction holds the axis cosines in row-major order. Column i is the
	// physical direction of index axis i.
	Direction [9]float64
}

// IdentityDirection is the canonical (RAS) direction matrix.
var IdentityDirection = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// NumVoxels returns the product of the dimensions.
func (g Geometry) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Column returns the physical direction of index axis i.
func (g Geometry) Column(i int) [3]float64 {
	return [3]float64{g.Direction[i], g.Direction[3+i], g.Direction[6+i]}
}

// IndexToPhysical maps a continuous voxel index to a physical point.
func (g Geometry) IndexToPhysical(idx [3]float64) [3]float64 {
	var p [3]float64
	for r := 0; r < 3; r++ {
		p[r] = g.Origin[r]
		for c := 0; c < 3; c++ {
			p[r] += g.Direction[r*3+c] * idx[c] * g.Spacing[c]
		}
	}
	return p
}

// Extent returns the physical length covered by voxel centers along each axis.
func (g Geometry) Extent() [3]float64 {
	var e [3]float64
	for i := 0; i < 3; i++ {
		e[i] = g.Spacing[i] * float64(g.Dims[i]-1)
	}
	return e
}

// SameGrid reports whether two geometries describe the same voxel grid.
func (g Geometry) SameGrid(o Geometry) bool {
	const tol = 1e-6
	if g.Dims != o.Dims {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(g.Spacing[i]-o.Spacing[i]) > tol || math.Abs(g.Origin[i]-o.Origin[i]) > tol {
			return false
		}
	}
	for i := 0; i < 9; i++ {
		if math.Abs(g.Direction[i]-o.Direction[i]) > tol {
			return false
		}
	}
	return true
}

// Validate checks the basic invariants of the geometry.
func (g Geometry) Validate() error {
	for i := 0; i < 3; i++ {
		if g.Dims[i] <= 0 {
			return fmt.Errorf("dimension %d must be positive, got %d", i, g.Dims[i])
		}
		if !(g.Spacing[i] > 0) || math.IsInf(g.Spacing[i], 0) {
			return fmt.Errorf("spacing %d must be positive, got %v", i, g.Spacing[i])
		}
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d @ %.3gx%.3gx%.3g", g.Dims[0], g.Dims[1], g.Dims[2],
		g.Spacing[0], g.Spacing[1], g.Spacing[2])
}

// SeriesInfo carries the descriptive metadata of the series a volume came from.
type SeriesInfo struct {
	PatientName       string
	PatientID         string
	SeriesUID         string
	SeriesDescription string
	Modality          string
	Directory         string
}

// Volume is a 3D grid of signed 16-bit samples. A Volume is never modified
// once it has been returned by a pipeline stage.
type Volume struct {
	Geometry

	// ID identifies this particular buffer; every stage output gets a new one
	ID uuid.UUID

	// Voxels holds the samples, x fastest: idx = x + y*Dims[0] + z*Dims[0]*Dims[1]
	Voxels []int16

	// Info is copied along from the source series
	Info SeriesInfo
}

// NewVolume allocates a zero-filled volume for the given geometry.
func NewVolume(g Geometry, info SeriesInfo) *Volume {
	return &Volume{
		Geometry: g,
		ID:       uuid.New(),
		Voxels:   make([]int16, g.NumVoxels()),
		Info:     info,
	}
}

// Validate checks that the buffer matches the geometry.
func (v *Volume) Validate() error {
	if err := v.Geometry.Validate(); err != nil {
		return err
	}
	if len(v.Voxels) != v.NumVoxels() {
		return fmt.Errorf("voxel buffer has %d samples, geometry needs %d", len(v.Voxels), v.NumVoxels())
	}
	return nil
}

// Index returns the linear index of voxel (x,y,z).
func (v *Volume) Index(x, y, z int) int {
	return x + y*v.Dims[0] + z*v.Dims[0]*v.Dims[1]
}

// At returns the sample at voxel (x,y,z).
func (v *Volume) At(x, y, z int) int16 {
	return v.Voxels[v.Index(x, y, z)]
}

// SizeBytes returns the size of the voxel buffer in bytes.
func (v *Volume) SizeBytes() uint64 {
	return uint64(len(v.Voxels)) * 2
}

// ClampSample rounds a value to the nearest integer and clamps it into the int16 range.
func ClampSample(f float64) int16 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	if f > math.MaxInt16 {
		return math.MaxInt16
	}
	if f < math.MinInt16 {
		return math.MinInt16
	}
	return int16(f)
}
