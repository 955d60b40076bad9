package registration

import (
	"context"
	"errors"
	"math"
	"testing"

	"volfusion/internal/models"
)

func volumeAt(dims [3]int, spacing, origin [3]float64, direction [9]float64) *models.Volume {
	return models.NewVolume(models.Geometry{
		Dims:      dims,
		Spacing:   spacing,
		Origin:    origin,
		Direction: direction,
	}, models.SeriesInfo{})
}

func approxEqual(a, b [3]float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestCenter(t *testing.T) {
	tests := []struct {
		name string
		g    models.Geometry
		want [3]float64
	}{
		{
			"identity",
			models.Geometry{Dims: [3]int{11, 5, 3}, Spacing: [3]float64{1, 2, 3}, Origin: [3]float64{1, 1, 1}, Direction: models.IdentityDirection},
			[3]float64{6, 5, 4},
		},
		{
			"flipped x",
			models.Geometry{Dims: [3]int{3, 1, 1}, Spacing: [3]float64{1, 1, 1}, Origin: [3]float64{10, 0, 0}, Direction: [9]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1}},
			[3]float64{9, 0, 0},
		},
		{
			"swapped axes",
			models.Geometry{Dims: [3]int{5, 3, 1}, Spacing: [3]float64{1, 1, 1}, Direction: [9]float64{0, 1, 0, 1, 0, 0, 0, 0, 1}},
			[3]float64{1, 2, 0},
		},
	}
	for _, tt := range tests {
		if got := Center(tt.g); !approxEqual(got, tt.want) {
			t.Errorf("%s: expected center %v, got %v", tt.name, tt.want, got)
		}
	}
}

// TestTranslationScenario: fixed center (0,0,0), moving center (5,-3,2)
func TestTranslationScenario(t *testing.T) {
	fixed := models.Geometry{Dims: [3]int{3, 3, 3}, Spacing: [3]float64{1, 1, 1}, Origin: [3]float64{-1, -1, -1}, Direction: models.IdentityDirection}
	moving := models.Geometry{Dims: [3]int{5, 5, 5}, Spacing: [3]float64{0.5, 0.5, 0.5}, Origin: [3]float64{4, -4, 1}, Direction: models.IdentityDirection}

	if c := Center(fixed); !approxEqual(c, [3]float64{0, 0, 0}) {
		t.Fatalf("Expected fixed center at origin, got %v", c)
	}
	if c := Center(moving); !approxEqual(c, [3]float64{5, -3, 2}) {
		t.Fatalf("Expected moving center (5,-3,2), got %v", c)
	}
	if d := Translation(fixed, moving); !approxEqual(d, [3]float64{-5, 3, -2}) {
		t.Errorf("Expected translation (-5,3,-2), got %v", d)
	}
}

func TestAlignShiftedCopy(t *testing.T) {
	fixed := volumeAt([3]int{5, 4, 3}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0}, models.IdentityDirection)
	moving := volumeAt([3]int{5, 4, 3}, [3]float64{1, 1, 1}, [3]float64{10, -7, 3}, models.IdentityDirection)
	for i := range moving.Voxels {
		moving.Voxels[i] = int16(3 * i)
	}

	res, err := Align(context.Background(), fixed, moving, 2)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if !approxEqual(res.Translation, [3]float64{-10, 7, -3}) {
		t.Errorf("Expected translation (-10,7,-3), got %v", res.Translation)
	}
	if !res.Aligned.SameGrid(fixed.Geometry) {
		t.Errorf("Aligned volume must share the fixed grid, got %v", res.Aligned.Geometry)
	}
	for i := range moving.Voxels {
		if res.Aligned.Voxels[i] != moving.Voxels[i] {
			t.Fatalf("Voxel %d: expected %d, got %d", i, moving.Voxels[i], res.Aligned.Voxels[i])
		}
	}
	if res.FixedID != fixed.ID || res.MovingID != moving.ID {
		t.Error("Result must record the identities of its inputs")
	}
}

func TestAlignResamplesOntoFixedSpacing(t *testing.T) {
	fixed := volumeAt([3]int{5, 5, 5}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0}, models.IdentityDirection)
	moving := volumeAt([3]int{3, 3, 3}, [3]float64{2, 2, 2}, [3]float64{100, 100, 100}, models.IdentityDirection)
	for z := 0; z < 3; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 3; x++ {
				moving.Voxels[moving.Index(x, y, z)] = int16(20 * x)
			}
		}
	}

	res, err := Align(context.Background(), fixed, moving, 1)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	for x := 0; x < 5; x++ {
		if got := res.Aligned.At(x, 2, 2); got != int16(10*x) {
			t.Errorf("x=%d: expected %d, got %d", x, 10*x, got)
		}
	}
}

func TestAlignDifferentDirections(t *testing.T) {
	// Moving is stored with x reversed; after alignment values must land
	// where the same physical content is in the fixed frame.
	fixed := volumeAt([3]int{4, 1, 1}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0}, models.IdentityDirection)
	moving := volumeAt([3]int{4, 1, 1}, [3]float64{1, 1, 1}, [3]float64{3, 0, 0}, [9]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1})
	copy(moving.Voxels, []int16{40, 30, 20, 10})

	res, err := Align(context.Background(), fixed, moving, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(res.Translation, [3]float64{0, 0, 0}) {
		t.Errorf("Expected zero translation, got %v", res.Translation)
	}
	want := []int16{10, 20, 30, 40}
	for i, w := range want {
		if res.Aligned.Voxels[i] != w {
			t.Errorf("Voxel %d: expected %d, got %d", i, w, res.Aligned.Voxels[i])
		}
	}
}

func TestAlignMissingCounterpart(t *testing.T) {
	v := volumeAt([3]int{2, 2, 2}, [3]float64{1, 1, 1}, [3]float64{}, models.IdentityDirection)
	if _, err := Align(context.Background(), v, nil, 1); !errors.Is(err, ErrMissingCounterpart) {
		t.Errorf("Expected ErrMissingCounterpart, got %v", err)
	}
	if _, err := Align(context.Background(), nil, v, 1); !errors.Is(err, ErrMissingCounterpart) {
		t.Errorf("Expected ErrMissingCounterpart, got %v", err)
	}
}
