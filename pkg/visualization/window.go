package visualization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"volfusion/internal/models"
)

// maxWindowSamples bounds how many voxels AutoWindowLevel sorts.
const maxWindowSamples = 1 << 18

// AutoWindowLevel suggests a window/level spanning the 1st to 99th
// percentile of the volume's samples.
func AutoWindowLevel(v *models.Volume) (window, level float64) {
	if v == nil || len(v.Voxels) == 0 {
		return 1, 0
	}
	stride := len(v.Voxels)/maxWindowSamples + 1
	samples := make([]float64, 0, len(v.Voxels)/stride+1)
	for i := 0; i < len(v.Voxels); i += stride {
		samples = append(samples, float64(v.Voxels[i]))
	}
	sort.Float64s(samples)

	lo := stat.Quantile(0.01, stat.Empirical, samples, nil)
	hi := stat.Quantile(0.99, stat.Empirical, samples, nil)
	window = math.Max(hi-lo, 1)
	level = (hi + lo) / 2
	return window, level
}
