package models

// Slice represents a single 2D image of a series before it is stacked
// into a Volume.
type Slice struct {
	// Pixels holds the rescaled samples of the slice in row-major order
	Pixels []int16

	// Rows and Columns are the in-plane dimensions of the slice
	Rows    int
	Columns int

	// Index is the position of this slice in the sorted sequence
	Index int

	// InstanceNumber is the acquisition order reported by the file
	InstanceNumber int

	// Filename is the original filename of the slice
	Filename string

	// Thickness is the physical thickness of the slice in mm
	Thickness float64

	// Position is the physical position of the first pixel (patient coordinates)
	Position [3]float64

	// RowCosine and ColumnCosine give the in-plane axis directions
	RowCosine    [3]float64
	ColumnCosine [3]float64

	// PixelSpacing is the physical size of a pixel along columns and rows
	PixelSpacing [2]float64

	// SeriesUID identifies the series the slice belongs to
	SeriesUID string
}

// Normal returns the slice normal (row cosine x column cosine).
func (s *Slice) Normal() [3]float64 {
	r, c := s.RowCosine, s.ColumnCosine
	return [3]float64{
		r[1]*c[2] - r[2]*c[1],
		r[2]*c[0] - r[0]*c[2],
		r[0]*c[1] - r[1]*c[0],
	}
}

// Distance projects the slice position onto the given normal.
func (s *Slice) Distance(normal [3]float64) float64 {
	return s.Position[0]*normal[0] + s.Position[1]*normal[1] + s.Position[2]*normal[2]
}
