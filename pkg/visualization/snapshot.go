package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// captionColor matches the yellow overlay text of the slice views.
var captionColor = color.RGBA{255, 255, 0, 255}

// Compose scales a rendered slice by zoom and burns the caption lines into
// its top-left corner.
func Compose(img image.Image, lines []string, zoom int) *image.RGBA {
	if zoom < 1 {
		zoom = 1
	}
	b := img.Bounds()
	w, h := b.Dx()*zoom, b.Dy()*zoom

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()
	textWidth := 0
	for _, l := range lines {
		if tw := font.MeasureString(face, l).Ceil(); tw > textWidth {
			textWidth = tw
		}
	}
	// Keep the caption readable on tiny slices
	if w < textWidth+4 {
		w = textWidth + 4
	}
	if minH := lineHeight*len(lines) + 4; h < minH {
		h = minH
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.NearestNeighbor.Scale(dst, image.Rect(0, 0, b.Dx()*zoom, b.Dy()*zoom), img, b, draw.Src, nil)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(captionColor),
		Face: face,
	}
	for i, l := range lines {
		drawer.Dot = fixed.Point26_6{X: fixed.I(2), Y: fixed.I(2 + lineHeight*(i+1) - face.Descent)}
		drawer.DrawString(l)
	}
	return dst
}

// Snapshot renders the active slice, burns in the caption and writes it to
// path. The format follows the extension: .png, or .jpg/.jpeg.
func (v *Viewer) Snapshot(path string, lines []string, zoom int) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return fmt.Errorf("unsupported snapshot format: %s", filepath.Ext(path))
	}

	img, err := v.Render()
	if err != nil {
		return err
	}
	out := Compose(img, lines, zoom)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating snapshot directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if ext == ".png" {
		return png.Encode(file, out)
	}
	return jpeg.Encode(file, out, &jpeg.Options{Quality: 90})
}
