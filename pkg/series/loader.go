// Package series turns a directory of DICOM slice files into a raw volume.
package series

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"volfusion/internal/models"
)

// Loader yields the volume stored in a directory.
type Loader interface {
	LoadSeries(ctx context.Context, dir string) (*models.Volume, error)
}

// DicomLoader reads the first series found in a directory of DICOM files.
// Files that are not DICOM or carry no pixel data are skipped.
type DicomLoader struct{}

// NewDicomLoader creates a DICOM series loader
func NewDicomLoader() *DicomLoader {
	return &DicomLoader{}
}

// parsedSlice is a slice plus the series-level attributes read with it
type parsedSlice struct {
	models.Slice
	info models.SeriesInfo
}

// LoadSeries implements Loader.
func (l *DicomLoader) LoadSeries(ctx context.Context, dir string) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ReadError{Path: dir, Err: err}
	}

	bySeries := make(map[string][]*parsedSlice)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		s, err := readSlice(path)
		if err != nil {
			if errors.Is(err, ErrReadFailure) {
				return nil, err
			}
			continue
		}
		bySeries[s.SeriesUID] = append(bySeries[s.SeriesUID], s)
	}
	if len(bySeries) == 0 {
		return nil, errors.Wrapf(ErrNoSeriesFound, "in %s", dir)
	}

	uids := make([]string, 0, len(bySeries))
	for uid := range bySeries {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	slices := bySeries[uids[0]]
	vol, err := stack(slices)
	if err != nil {
		return nil, &ReadError{Path: dir, Err: err}
	}
	vol.Info.Directory = dir
	return vol, nil
}

// readSlice parses one file. A file that is not DICOM or has no pixel
// data returns a plain error and is skipped; a DICOM image whose pixels
// cannot be decoded returns a *ReadError.
func readSlice(path string) (*parsedSlice, error) {
	parsed, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "not a DICOM file")
	}
	ds := &parsed

	pixelElement, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, errors.Wrap(err, "no pixel data")
	}
	info, ok := pixelElement.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, errors.New("no pixel frames")
	}

	s := &parsedSlice{}
	s.Filename = filepath.Base(path)
	s.Rows = intValue(ds, tag.Rows, 0)
	s.Columns = intValue(ds, tag.Columns, 0)
	s.InstanceNumber = intValue(ds, tag.InstanceNumber, 0)
	s.SeriesUID = stringValue(ds, tag.SeriesInstanceUID, "")
	s.Thickness = floatValues(ds, tag.SliceThickness, []float64{0})[0]

	pos := floatValues(ds, tag.ImagePositionPatient, []float64{0, 0, 0})
	if len(pos) >= 3 {
		copy(s.Position[:], pos[:3])
	}
	iop := floatValues(ds, tag.ImageOrientationPatient, []float64{1, 0, 0, 0, 1, 0})
	if len(iop) < 6 {
		iop = []float64{1, 0, 0, 0, 1, 0}
	}
	copy(s.RowCosine[:], iop[0:3])
	copy(s.ColumnCosine[:], iop[3:6])

	// PixelSpacing is (row spacing, column spacing)
	ps := floatValues(ds, tag.PixelSpacing, []float64{1, 1})
	if len(ps) < 2 {
		ps = []float64{ps[0], ps[0]}
	}
	s.PixelSpacing = [2]float64{ps[1], ps[0]}

	s.info = models.SeriesInfo{
		PatientName:       stringValue(ds, tag.PatientName, "N/A"),
		PatientID:         stringValue(ds, tag.PatientID, "N/A"),
		SeriesUID:         stringValue(ds, tag.SeriesInstanceUID, "N/A"),
		SeriesDescription: stringValue(ds, tag.SeriesDescription, "N/A"),
		Modality:          stringValue(ds, tag.Modality, "N/A"),
	}

	signed := intValue(ds, tag.PixelRepresentation, 0) == 1
	slope := floatValues(ds, tag.RescaleSlope, []float64{1})[0]
	intercept := floatValues(ds, tag.RescaleIntercept, []float64{0})[0]
	if slope == 0 {
		slope = 1
	}

	if s.Rows < 1 || s.Columns < 1 {
		return nil, &ReadError{Path: path, Err: errors.Errorf("invalid image size %dx%d", s.Columns, s.Rows)}
	}
	spp := intValue(ds, tag.SamplesPerPixel, 1)
	pixels, err := framePixels(info.Frames[0], s.Rows*s.Columns, spp, signed)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	s.Pixels = make([]int16, len(pixels))
	for i := range s.Pixels {
		s.Pixels[i] = models.ClampSample(pixels[i]*slope + intercept)
	}
	return s, nil
}

// framePixels returns the first sample of each of the n pixels of a
// native frame.
func framePixels(f *frame.Frame, n, spp int, signed bool) ([]float64, error) {
	if f == nil || f.Encapsulated || f.NativeData == nil {
		return nil, errors.New("encapsulated pixel data is not supported")
	}
	if spp < 1 {
		spp = 1
	}
	out := make([]float64, n)
	short := errors.Errorf("frame holds fewer than %d pixels", n)

	switch data := f.NativeData.(type) {
	case *frame.NativeFrame[uint16]:
		if len(data.RawData) < n*spp {
			return nil, short
		}
		for i := range out {
			v := data.RawData[i*spp]
			if signed {
				out[i] = float64(int16(v))
			} else {
				out[i] = float64(v)
			}
		}
	case *frame.NativeFrame[int16]:
		if len(data.RawData) < n*spp {
			return nil, short
		}
		for i := range out {
			out[i] = float64(data.RawData[i*spp])
		}
	case *frame.NativeFrame[uint8]:
		if len(data.RawData) < n*spp {
			return nil, short
		}
		for i := range out {
			v := data.RawData[i*spp]
			if signed {
				out[i] = float64(int8(v))
			} else {
				out[i] = float64(v)
			}
		}
	case *frame.NativeFrame[uint32]:
		if len(data.RawData) < n*spp {
			return nil, short
		}
		for i := range out {
			v := data.RawData[i*spp]
			if signed {
				out[i] = float64(int32(v))
			} else {
				out[i] = float64(v)
			}
		}
	case *frame.NativeFrame[int32]:
		if len(data.RawData) < n*spp {
			return nil, short
		}
		for i := range out {
			out[i] = float64(data.RawData[i*spp])
		}
	default:
		return nil, errors.Errorf("unsupported pixel format %T", f.NativeData)
	}
	return out, nil
}

// stack orders slices along their normal and builds the volume geometry.
// Slices without usable positions fall back to instance-number order.
func stack(slices []*parsedSlice) (*models.Volume, error) {
	if len(slices) == 0 {
		return nil, ErrNoSeriesFound
	}
	first := slices[0]
	normal := first.Normal()

	sort.SliceStable(slices, func(i, j int) bool {
		di, dj := slices[i].Distance(normal), slices[j].Distance(normal)
		if math.Abs(di-dj) > 1e-6 {
			return di < dj
		}
		return slices[i].InstanceNumber < slices[j].InstanceNumber
	})

	rows, cols := slices[0].Rows, slices[0].Columns
	for i, s := range slices {
		if s.Rows != rows || s.Columns != cols {
			return nil, errors.Errorf("slice %s is %dx%d, expected %dx%d", s.Filename, s.Columns, s.Rows, cols, rows)
		}
		s.Index = i
	}

	sliceSpacing := 0.0
	if len(slices) > 1 {
		span := slices[len(slices)-1].Distance(normal) - slices[0].Distance(normal)
		sliceSpacing = math.Abs(span) / float64(len(slices)-1)
	}
	if sliceSpacing < 1e-6 {
		sliceSpacing = slices[0].Thickness
	}
	if sliceSpacing <= 0 {
		sliceSpacing = 1
	}

	head := slices[0]
	g := models.Geometry{
		Dims:    [3]int{cols, rows, len(slices)},
		Spacing: [3]float64{head.PixelSpacing[0], head.PixelSpacing[1], sliceSpacing},
		Origin:  head.Position,
	}
	r, c := head.RowCosine, head.ColumnCosine
	for k := 0; k < 3; k++ {
		g.Direction[k*3+0] = r[k]
		g.Direction[k*3+1] = c[k]
		g.Direction[k*3+2] = normal[k]
	}
	for i := 0; i < 2; i++ {
		if g.Spacing[i] <= 0 {
			g.Spacing[i] = 1
		}
	}

	vol := models.NewVolume(g, head.info)
	plane := rows * cols
	for z, s := range slices {
		copy(vol.Voxels[z*plane:(z+1)*plane], s.Pixels)
	}
	return vol, nil
}

func stringValue(ds *dicom.Dataset, t tag.Tag, fallback string) string {
	vals := stringValues(ds, t)
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return fallback
	}
	return strings.TrimSpace(vals[0])
}

func stringValues(ds *dicom.Dataset, t tag.Tag) []string {
	e, err := ds.FindElementByTag(t)
	if err != nil || e.Value == nil {
		return nil
	}
	switch v := e.Value.GetValue().(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out
	}
	return nil
}

func floatValues(ds *dicom.Dataset, t tag.Tag, fallback []float64) []float64 {
	vals := stringValues(ds, t)
	if len(vals) == 0 {
		return fallback
	}
	out := make([]float64, 0, len(vals))
	for _, s := range vals {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fallback
		}
		out = append(out, f)
	}
	return out
}

func intValue(ds *dicom.Dataset, t tag.Tag, fallback int) int {
	vals := floatValues(ds, t, nil)
	if len(vals) == 0 {
		return fallback
	}
	return int(vals[0])
}
