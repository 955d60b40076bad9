// Package orientation re-labels volumes into the canonical RAS frame.
//
// Normalization never resamples: it only permutes index axes and reverses
// index order along some of them, so every voxel keeps its physical position.
package orientation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"volfusion/internal/models"
)

// ErrInvalidGeometry is returned when the direction matrix is not orthonormal.
var ErrInvalidGeometry = errors.New("invalid geometry: direction matrix is not orthonormal")

// Tolerance used for the orthonormality check. Direction cosines stored in
// DICOM headers are often written with only a few significant digits.
const Tolerance = 1e-3

// Mapping describes how the index axes of a volume are re-labeled.
type Mapping struct {
	// Target[i] is the canonical axis that index axis i becomes
	Target [3]int

	// Flip[i] is true when index order along axis i is reversed
	Flip [3]bool
}

// Identity reports whether the mapping leaves the volume untouched.
func (m Mapping) Identity() bool {
	return m.Target == [3]int{0, 1, 2} && m.Flip == [3]bool{}
}

func (m Mapping) String() string {
	axes := "xyz"
	s := ""
	for i := 0; i < 3; i++ {
		sign := "+"
		if m.Flip[i] {
			sign = "-"
		}
		s += fmt.Sprintf("%c->%s%c ", axes[i], sign, axes[m.Target[i]])
	}
	return s[:len(s)-1]
}

// CheckOrthonormal verifies DᵀD ≈ I.
func CheckOrthonormal(g models.Geometry) error {
	d := mat.NewDense(3, 3, g.Direction[:])
	var dtd mat.Dense
	dtd.Mul(d.T(), d)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := 0.0
			if r == c {
				want = 1
			}
			v := dtd.At(r, c)
			if math.IsNaN(v) || math.Abs(v-want) > Tolerance {
				return fmt.Errorf("%w: (DᵀD)[%d][%d] = %.6f", ErrInvalidGeometry, r, c, v)
			}
		}
	}
	return nil
}

// Permutation finds the signed axis permutation that brings the direction
// matrix closest to the identity. Axes are assigned greedily, largest
// cosine first, so ties between oblique axes resolve deterministically.
func Permutation(g models.Geometry) (Mapping, error) {
	if err := CheckOrthonormal(g); err != nil {
		return Mapping{}, err
	}

	var m Mapping
	usedAxis := [3]bool{}
	usedPhys := [3]bool{}
	for n := 0; n < 3; n++ {
		best, bestAxis, bestPhys := -1.0, -1, -1
		for axis := 0; axis < 3; axis++ {
			if usedAxis[axis] {
				continue
			}
			for phys := 0; phys < 3; phys++ {
				if usedPhys[phys] {
					continue
				}
				if v := math.Abs(g.Direction[phys*3+axis]); v > best {
					best, bestAxis, bestPhys = v, axis, phys
				}
			}
		}
		usedAxis[bestAxis] = true
		usedPhys[bestPhys] = true
		m.Target[bestAxis] = bestPhys
		m.Flip[bestAxis] = g.Direction[bestPhys*3+bestAxis] < 0
	}
	return m, nil
}

// IsCanonical reports whether normalizing g would change nothing.
func IsCanonical(g models.Geometry) bool {
	m, err := Permutation(g)
	return err == nil && m.Identity()
}

// Normalize returns v re-labeled into the canonical frame. A volume that is
// already canonical is returned as is.
func Normalize(v *models.Volume) (*models.Volume, error) {
	if err := checkVolume(v); err != nil {
		return nil, err
	}
	m, err := Permutation(v.Geometry)
	if err != nil {
		return nil, err
	}
	return remap(v, m), nil
}

// Remap re-labels v with a mapping previously obtained from
// Permutation(v.Geometry).
func Remap(v *models.Volume, m Mapping) (*models.Volume, error) {
	if err := checkVolume(v); err != nil {
		return nil, err
	}
	var seen [3]bool
	for _, t := range m.Target {
		if t < 0 || t > 2 || seen[t] {
			return nil, fmt.Errorf("invalid axis mapping %v", m.Target)
		}
		seen[t] = true
	}
	return remap(v, m), nil
}

func checkVolume(v *models.Volume) error {
	if v == nil {
		return fmt.Errorf("%w: nil volume", ErrInvalidGeometry)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return nil
}

func remap(v *models.Volume, m Mapping) *models.Volume {
	if m.Identity() {
		return v
	}

	g := Apply(v.Geometry, m)
	out := models.NewVolume(g, v.Info)

	src := v.Dims
	strides := [3]int{1, g.Dims[0], g.Dims[0] * g.Dims[1]}
	var step [3]int
	base := 0
	for a := 0; a < 3; a++ {
		s := strides[m.Target[a]]
		if m.Flip[a] {
			base += s * (src[a] - 1)
			s = -s
		}
		step[a] = s
	}

	i := 0
	for z := 0; z < src[2]; z++ {
		for y := 0; y < src[1]; y++ {
			dst := base + y*step[1] + z*step[2]
			for x := 0; x < src[0]; x++ {
				out.Voxels[dst] = v.Voxels[i]
				dst += step[0]
				i++
			}
		}
	}
	return out
}

// Apply computes the geometry produced by a mapping.
func Apply(g models.Geometry, m Mapping) models.Geometry {
	var out models.Geometry
	out.Origin = g.Origin
	for a := 0; a < 3; a++ {
		t := m.Target[a]
		out.Dims[t] = g.Dims[a]
		out.Spacing[t] = g.Spacing[a]
		col := g.Column(a)
		sign := 1.0
		if m.Flip[a] {
			sign = -1
			// The new first voxel along this axis is the old last one.
			for r := 0; r < 3; r++ {
				out.Origin[r] += col[r] * g.Spacing[a] * float64(g.Dims[a]-1)
			}
		}
		for r := 0; r < 3; r++ {
			out.Direction[r*3+t] = sign * col[r]
		}
	}
	return out
}
