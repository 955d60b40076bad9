package fusion

import (
	"errors"
	"math"
	"testing"

	"volfusion/internal/models"
)

func gridVolume(values []int16) *models.Volume {
	g := models.Geometry{
		Dims:      [3]int{len(values), 1, 1},
		Spacing:   [3]float64{1, 1, 1},
		Direction: models.IdentityDirection,
	}
	v := models.NewVolume(g, models.SeriesInfo{})
	copy(v.Voxels, values)
	return v
}

func TestBlendOpacities(t *testing.T) {
	fixed := gridVolume([]int16{0, 100, -200, 32000, -32000, 7})
	moving := gridVolume([]int16{50, 40, 300, 2000, -2000, -8})

	tests := []struct {
		opacity float64
		want    []int16
	}{
		{0.0, []int16{0, 100, -200, 32000, -32000, 7}},
		{0.5, []int16{25, 120, -50, 32767, -32768, 3}},
		{1.0, []int16{50, 140, 100, 32767, -32768, -1}},
	}
	for _, tt := range tests {
		out, err := Blend(fixed, moving, tt.opacity)
		if err != nil {
			t.Fatalf("Opacity %v: %v", tt.opacity, err)
		}
		for i, w := range tt.want {
			if out.Voxels[i] != w {
				t.Errorf("Opacity %v voxel %d: expected %d, got %d", tt.opacity, i, w, out.Voxels[i])
			}
		}
		if !out.SameGrid(fixed.Geometry) {
			t.Errorf("Opacity %v: fusion must share the fixed grid", tt.opacity)
		}
	}
}

func TestBlendZeroOpacityReproducesFixed(t *testing.T) {
	fixed := gridVolume([]int16{-32768, -1, 0, 1, 32767})
	moving := gridVolume([]int16{32767, 32767, 32767, 32767, 32767})
	out, err := Blend(fixed, moving, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range fixed.Voxels {
		if out.Voxels[i] != fixed.Voxels[i] {
			t.Errorf("Voxel %d: expected %d, got %d", i, fixed.Voxels[i], out.Voxels[i])
		}
	}
	if out.ID == fixed.ID {
		t.Error("Fusion must be a new volume")
	}
}

func TestBlendRejectsOpacity(t *testing.T) {
	v := gridVolume([]int16{1})
	for _, o := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		if _, err := Blend(v, v, o); !errors.Is(err, ErrOpacityOutOfRange) {
			t.Errorf("Opacity %v: expected ErrOpacityOutOfRange, got %v", o, err)
		}
	}
}

func TestBlendGridMismatch(t *testing.T) {
	a := gridVolume([]int16{1, 2})
	b := gridVolume([]int16{1, 2})
	b.Origin = [3]float64{0.5, 0, 0}
	if _, err := Blend(a, b, 0.5); !errors.Is(err, ErrGridMismatch) {
		t.Errorf("Expected ErrGridMismatch, got %v", err)
	}
	if _, err := Blend(a, gridVolume([]int16{1, 2, 3}), 0.5); !errors.Is(err, ErrGridMismatch) {
		t.Errorf("Expected ErrGridMismatch for different dims, got %v", err)
	}
}
