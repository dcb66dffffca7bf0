// Copyright (C) 2024 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package render draws detection overlays. Frames are rendered to
// grayscale between robust intensity quantiles, detected maxima are
// marked with square rings colored by scale, and the result can be
// zoomed and written out as JPEG.
package render

import (
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// Marker is one detection to draw, with an optional scale index for
// coloring.
type Marker struct {
	X, Y  uint32
	Scale int
}

// Options control overlay rendering. Zero values select the defaults.
type Options struct {
	Radius  int     // marker half-width in source pixels, default 3
	Zoom    int     // integer upscaling factor, default 1
	QLow    float64 // background black-point quantile, default 0.005
	QHigh   float64 // background white-point quantile, default 0.995
	Quality int     // JPEG quality, default 95
}

func (o *Options) setDefaults() {
	if o.Radius <= 0 {
		o.Radius = 3
	}
	if o.Zoom <= 0 {
		o.Zoom = 1
	}
	if o.QLow <= 0 {
		o.QLow = 0.005
	}
	if o.QHigh <= 0 || o.QHigh > 1 {
		o.QHigh = 0.995
	}
	if o.Quality <= 0 {
		o.Quality = 95
	}
}

// MarkersFromTable extracts the markers of one frame from a global
// maxima table with rows [x, y, frame] stored column-major. Scale
// indices are not part of the global table and come back as zero.
func MarkersFromTable(coords []uint32, frame uint32) []Marker {
	var ms []Marker
	for i := 0; i+2 < len(coords); i += 3 {
		if coords[i+2] == frame {
			ms = append(ms, Marker{X: coords[i], Y: coords[i+1]})
		}
	}
	return ms
}

// ScaleColors returns one marker color per scale, spread over an HCL
// hue ramp at constant chroma and lightness.
func ScaleColors(nScales int) []color.RGBA {
	if nScales < 1 {
		nScales = 1
	}
	cs := make([]color.RGBA, nScales)
	for s := 0; s < nScales; s++ {
		h := 360.0 * float64(s) / float64(nScales)
		r, g, b := colorful.Hcl(h, 0.6, 0.7).Clamped().RGB255()
		cs[s] = color.RGBA{r, g, b, 255}
	}
	return cs
}

// grayLevels maps frame data to [0,255] between the qLow and qHigh
// intensity quantiles.
func grayLevels[T img.Float](data []T, qLow, qHigh float64) (lo, scale float64) {
	sorted := make([]float64, len(data))
	for i, v := range data {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	lo = stat.Quantile(qLow, stat.Empirical, sorted, nil)
	hi := stat.Quantile(qHigh, stat.Empirical, sorted, nil)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, 255.0 / (hi - lo)
}

// Overlay renders a single [x, y] frame with its markers. nScales
// selects the color ramp; markers with scale indices outside
// [0, nScales) use the first color.
func Overlay[T img.Float](frame *img.Image[T], markers []Marker, nScales int, opt Options) (*image.RGBA, error) {
	opt.setDefaults()
	if len(frame.Dims) != 2 {
		return nil, errs.Shapef("frame has %d dimensions, want 2", len(frame.Dims))
	}
	width, height := int(frame.Dims[0]), int(frame.Dims[1])
	lo, scale := grayLevels(frame.Data, opt.QLow, opt.QHigh)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := frame.Data[y*width:]
		for x := 0; x < width; x++ {
			v := (float64(row[x]) - lo) * scale
			if math.IsNaN(v) || v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			g := uint8(v)
			dst.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}

	colors := ScaleColors(nScales)
	for _, m := range markers {
		c := colors[0]
		if m.Scale >= 0 && m.Scale < len(colors) {
			c = colors[m.Scale]
		}
		drawRing(dst, int(m.X), int(m.Y), opt.Radius, c)
	}

	if opt.Zoom > 1 {
		zoomed := image.NewRGBA(image.Rect(0, 0, width*opt.Zoom, height*opt.Zoom))
		xdraw.NearestNeighbor.Scale(zoomed, zoomed.Bounds(), dst, dst.Bounds(), xdraw.Src, nil)
		dst = zoomed
	}
	return dst, nil
}

// drawRing draws the outline of a square of half-width r centered on
// (mx, my), clipped to the image bounds.
func drawRing(dst *image.RGBA, mx, my, r int, c color.RGBA) {
	b := dst.Bounds()
	for x := mx - r; x <= mx+r; x++ {
		if x < b.Min.X || x >= b.Max.X {
			continue
		}
		if y := my - r; y >= b.Min.Y && y < b.Max.Y {
			dst.SetRGBA(x, y, c)
		}
		if y := my + r; y >= b.Min.Y && y < b.Max.Y {
			dst.SetRGBA(x, y, c)
		}
	}
	for y := my - r + 1; y <= my+r-1; y++ {
		if y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		if x := mx - r; x >= b.Min.X && x < b.Max.X {
			dst.SetRGBA(x, y, c)
		}
		if x := mx + r; x >= b.Min.X && x < b.Max.X {
			dst.SetRGBA(x, y, c)
		}
	}
}

// WriteJPG encodes the overlay to the given writer.
func WriteJPG(w io.Writer, m *image.RGBA, quality int) error {
	if quality <= 0 {
		quality = 95
	}
	return jpeg.Encode(w, m, &jpeg.Options{Quality: quality})
}

// WriteJPGToFile encodes the overlay to the named file.
func WriteJPGToFile(fileName string, m *image.RGBA, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return WriteJPG(writer, m, quality)
}
