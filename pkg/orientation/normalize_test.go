package orientation

import (
	"errors"
	"math"
	"testing"

	"volfusion/internal/models"
)

// patternVolume fills a volume with a unique value per voxel
func patternVolume(dims [3]int, spacing [3]float64, direction [9]float64) *models.Volume {
	g := models.Geometry{
		Dims:      dims,
		Spacing:   spacing,
		Origin:    [3]float64{-10, 5, 40},
		Direction: direction,
	}
	v := models.NewVolume(g, models.SeriesInfo{})
	for i := range v.Voxels {
		v.Voxels[i] = int16(i)
	}
	return v
}

// physicalLookup maps rounded physical positions to sample values
func physicalLookup(v *models.Volume) map[[3]int64]int16 {
	out := make(map[[3]int64]int16, len(v.Voxels))
	for z := 0; z < v.Dims[2]; z++ {
		for y := 0; y < v.Dims[1]; y++ {
			for x := 0; x < v.Dims[0]; x++ {
				p := v.IndexToPhysical([3]float64{float64(x), float64(y), float64(z)})
				key := [3]int64{int64(math.Round(p[0] * 1000)), int64(math.Round(p[1] * 1000)), int64(math.Round(p[2] * 1000))}
				out[key] = v.At(x, y, z)
			}
		}
	}
	return out
}

func TestNormalizeCanonicalIsUnchanged(t *testing.T) {
	v := patternVolume([3]int{4, 3, 2}, [3]float64{0.9, 0.9, 1.5}, models.IdentityDirection)
	out, err := Normalize(v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != v {
		t.Error("Expected canonical volume to be returned unchanged")
	}
	if out.Spacing != v.Spacing {
		t.Errorf("Expected spacing %v, got %v", v.Spacing, out.Spacing)
	}
}

func TestNormalizeFlipsAndPermutes(t *testing.T) {
	tests := []struct {
		name      string
		direction [9]float64
		wantDims  [3]int
	}{
		// LPS-style storage: x and y run the other way
		{"flip xy", [9]float64{-1, 0, 0, 0, -1, 0, 0, 0, 1}, [3]int{4, 3, 2}},
		// Coronal acquisition: index y runs along physical z, index z along -y
		{"coronal", [9]float64{1, 0, 0, 0, 0, -1, 0, 1, 0}, [3]int{4, 2, 3}},
		// Sagittal acquisition: index x runs along physical y, z along x
		{"sagittal", [9]float64{0, 0, 1, 1, 0, 0, 0, -1, 0}, [3]int{2, 4, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := patternVolume([3]int{4, 3, 2}, [3]float64{0.5, 1, 2}, tt.direction)
			out, err := Normalize(v)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if out.Dims != tt.wantDims {
				t.Errorf("Expected dims %v, got %v", tt.wantDims, out.Dims)
			}
			if out.Direction != models.IdentityDirection {
				t.Errorf("Expected identity direction, got %v", out.Direction)
			}
			if err := out.Validate(); err != nil {
				t.Fatalf("Normalized volume invalid: %v", err)
			}

			// Physical content must not change
			before := physicalLookup(v)
			after := physicalLookup(out)
			if len(before) != len(after) {
				t.Fatalf("Expected %d physical positions, got %d", len(before), len(after))
			}
			for k, val := range before {
				if got, ok := after[k]; !ok || got != val {
					t.Fatalf("Voxel at %v moved: expected %d, got %d (present=%v)", k, val, got, ok)
				}
			}

			// Idempotence
			again, err := Normalize(out)
			if err != nil {
				t.Fatalf("Second normalization failed: %v", err)
			}
			if again != out {
				t.Error("Expected normalize(normalize(V)) to return the same volume")
			}
		})
	}
}

func TestNormalizeSpacingFollowsAxes(t *testing.T) {
	v := patternVolume([3]int{4, 3, 2}, [3]float64{0.5, 1, 2}, [9]float64{1, 0, 0, 0, 0, -1, 0, 1, 0})
	out, err := Normalize(v)
	if err != nil {
		t.Fatal(err)
	}
	want := [3]float64{0.5, 2, 1}
	if out.Spacing != want {
		t.Errorf("Expected spacing %v, got %v", want, out.Spacing)
	}
}

func TestNormalizeOblique(t *testing.T) {
	a := 10 * math.Pi / 180
	c, s := math.Cos(a), math.Sin(a)
	// Rotation about z, with x flipped
	v := patternVolume([3]int{3, 3, 3}, [3]float64{1, 1, 1}, [9]float64{-c, -s, 0, -s, c, 0, 0, 0, 1})
	out, err := Normalize(v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if out.Direction[i*3+i] <= 0 {
			t.Errorf("Expected positive diagonal, got %v", out.Direction)
		}
	}
	if err := CheckOrthonormal(out.Geometry); err != nil {
		t.Errorf("Normalized direction must stay orthonormal: %v", err)
	}
	again, err := Normalize(out)
	if err != nil || again != out {
		t.Errorf("Expected oblique normalization to be idempotent (err=%v)", err)
	}
}

func TestNormalizeInvalidGeometry(t *testing.T) {
	tests := map[string][9]float64{
		"scaled":     {2, 0, 0, 0, 1, 0, 0, 0, 1},
		"degenerate": {1, 0, 0, 1, 0, 0, 0, 0, 1},
		"zero":       {},
		"nan":        {math.NaN(), 0, 0, 0, 1, 0, 0, 0, 1},
	}
	for name, d := range tests {
		v := patternVolume([3]int{2, 2, 2}, [3]float64{1, 1, 1}, d)
		if _, err := Normalize(v); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("%s: expected ErrInvalidGeometry, got %v", name, err)
		}
	}

	if _, err := Normalize(nil); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry for nil volume, got %v", err)
	}
}

func TestMappingString(t *testing.T) {
	m, err := Permutation(models.Geometry{Direction: [9]float64{-1, 0, 0, 0, 0, 1, 0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.String(); got != "x->-x y->+z z->+y" {
		t.Errorf("Unexpected mapping string %q", got)
	}
	if !IsCanonical(models.Geometry{Direction: models.IdentityDirection}) {
		t.Error("Identity direction must be canonical")
	}
}

func TestRemapMatchesNormalize(t *testing.T) {
	v := patternVolume([3]int{4, 3, 2}, [3]float64{1, 2, 3}, [9]float64{0, 0, 1, -1, 0, 0, 0, 1, 0})
	m, err := Permutation(v.Geometry)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Remap(v, m)
	if err != nil {
		t.Fatalf("Remap failed: %v", err)
	}
	want, err := Normalize(v)
	if err != nil {
		t.Fatal(err)
	}
	if got.Geometry != want.Geometry {
		t.Fatalf("Expected geometry %v, got %v", want.Geometry, got.Geometry)
	}
	for i := range want.Voxels {
		if got.Voxels[i] != want.Voxels[i] {
			t.Fatalf("Voxel %d: expected %d, got %d", i, want.Voxels[i], got.Voxels[i])
		}
	}
}

func TestRemapRejectsBadMapping(t *testing.T) {
	v := patternVolume([3]int{2, 2, 2}, [3]float64{1, 1, 1}, models.IdentityDirection)
	if _, err := Remap(v, Mapping{Target: [3]int{0, 0, 2}}); err == nil {
		t.Error("Expected error for a mapping that reuses an axis")
	}
	if _, err := Remap(nil, Mapping{Target: [3]int{0, 1, 2}}); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry for nil volume, got %v", err)
	}
}
