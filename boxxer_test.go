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

package boxxer

import (
	"errors"
	"math"
	"testing"

	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/maxima"
)

// addBlob2D adds an isotropic Gaussian of the given amplitude to one
// frame of a [x, y, nFrames] stack.
func addBlob2D(stack *img.Image[float64], frame uint32, cx, cy, sigma, amp float64) {
	f, err := stack.Frame(frame)
	if err != nil {
		panic(err)
	}
	sx, sy := int(f.Dims[0]), int(f.Dims[1])
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			f.Data[y*sx+x] += amp * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
		}
	}
}

func addBlob3D(stack *img.Image[float64], frame uint32, cx, cy, cz, sigma, amp float64) {
	f, err := stack.Frame(frame)
	if err != nil {
		panic(err)
	}
	sx, sy, sz := int(f.Dims[0]), int(f.Dims[1]), int(f.Dims[2])
	for z := 0; z < sz; z++ {
		for y := 0; y < sy; y++ {
			for x := 0; x < sx; x++ {
				dx, dy, dz := float64(x)-cx, float64(y)-cy, float64(z)-cz
				f.Data[(z*sy+y)*sx+x] += amp * math.Exp(-(dx*dx+dy*dy+dz*dz)/(2*sigma*sigma))
			}
		}
	}
}

// hasDetection reports whether any column of a coords table with the
// given number of rows lies within one pixel of center on every spatial
// row and matches the frame index exactly.
func hasDetection(coords []uint32, rows int, center []int, frame int) bool {
	n := len(coords) / rows
	for i := 0; i < n; i++ {
		c := coords[i*rows : (i+1)*rows]
		ok := int(c[rows-1]) == frame
		for r := 0; r < rows-1 && ok; r++ {
			d := int(c[r]) - center[r]
			ok = d >= -1 && d <= 1
		}
		if ok {
			return true
		}
	}
	return false
}

func argmax(vals []float64) int {
	m := 0
	for i := range vals {
		if vals[i] > vals[m] {
			m = i
		}
	}
	return m
}

func TestCombineFrameMaxima(t *testing.T) {
	frameCoords := [][]uint32{
		{1, 2, 0, 3, 4, 2},
		nil,
		{5, 6, 1},
	}
	frameVals := [][]float64{{0.5, 0.7}, nil, {0.9}}
	coords, vals := combineFrameMaxima(frameCoords, frameVals, 3, 2)
	wantCoords := []uint32{1, 2, 0, 3, 4, 0, 5, 6, 2}
	wantVals := []float64{0.5, 0.7, 0.9}
	if len(coords) != len(wantCoords) || len(vals) != len(wantVals) {
		t.Fatalf("got %d coords %d vals, want %d and %d", len(coords), len(vals), len(wantCoords), len(wantVals))
	}
	for i := range wantCoords {
		if coords[i] != wantCoords[i] {
			t.Errorf("coords[%d]=%d, want %d", i, coords[i], wantCoords[i])
		}
	}
	for i := range wantVals {
		if vals[i] != wantVals[i] {
			t.Errorf("vals[%d]=%v, want %v", i, vals[i], wantVals[i])
		}
	}
}

func TestCombineFrameMaximaEmpty(t *testing.T) {
	coords, vals := combineFrameMaxima([][]uint32{nil, nil}, [][]float32{nil, nil}, 3, 2)
	if coords == nil || vals == nil {
		t.Errorf("empty tables should be non-nil")
	}
	if len(coords) != 0 || len(vals) != 0 {
		t.Errorf("got %d coords %d vals, want empty", len(coords), len(vals))
	}
}

func TestNew2DValidation(t *testing.T) {
	good := [][]float32{{1, 2}, {1, 2}}
	if _, err := New2D[float32]([]uint32{16, 16}, good); err != nil {
		t.Fatalf("valid arguments rejected: %v", err)
	}
	if _, err := New2D[float32]([]uint32{16}, good); !errors.Is(err, ErrParameterShape) {
		t.Errorf("1-dim size accepted")
	}
	if _, err := New2D[float32]([]uint32{16, 0}, good); !errors.Is(err, ErrParameterValue) {
		t.Errorf("zero dimension accepted")
	}
	if _, err := New2D[float32]([]uint32{16, 16}, [][]float32{{1, 2}}); !errors.Is(err, ErrParameterShape) {
		t.Errorf("1-row sigma accepted")
	}
	if _, err := New2D[float32]([]uint32{16, 16}, [][]float32{{1, 2}, {1}}); !errors.Is(err, ErrParameterShape) {
		t.Errorf("ragged sigma accepted")
	}
	if _, err := New2D[float32]([]uint32{16, 16}, [][]float32{{}, {}}); !errors.Is(err, ErrParameterValue) {
		t.Errorf("zero scales accepted")
	}
	if _, err := New2D[float32]([]uint32{16, 16}, [][]float32{{1, -2}, {1, 2}}); !errors.Is(err, ErrParameterValue) {
		t.Errorf("negative sigma accepted")
	}
	if _, err := New3D[float32]([]uint32{16, 16}, [][]float32{{1}, {1}, {1}}); !errors.Is(err, ErrParameterShape) {
		t.Errorf("2-dim size accepted for 3D")
	}
}

func TestSetDoGSigmaRatio(t *testing.T) {
	b, err := New2D[float64]([]uint32{16, 16}, [][]float64{{1}, {1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetDoGSigmaRatio(1.0); !errors.Is(err, ErrParameterValue) {
		t.Errorf("ratio 1.0 accepted")
	}
	if err := b.SetDoGSigmaRatio(1.5); err != nil {
		t.Errorf("ratio 1.5 rejected: %v", err)
	}
}

func TestScaleSpaceLoGMaxima2DBlob(t *testing.T) {
	stack, err := img.New[float64]([]uint32{32, 32, 1})
	if err != nil {
		t.Fatal(err)
	}
	addBlob2D(stack, 0, 16, 12, 2.0, 1.0)
	b, err := New2D[float64]([]uint32{32, 32}, [][]float64{{1, 1.5, 2}, {1, 1.5, 2}})
	if err != nil {
		t.Fatal(err)
	}
	coords, vals, err := b.ScaleSpaceLoGMaxima(stack, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) == 0 {
		t.Fatal("no maxima detected")
	}
	m := argmax(vals)
	x, y, f := int(coords[3*m]), int(coords[3*m+1]), coords[3*m+2]
	if x < 15 || x > 17 || y < 11 || y > 13 || f != 0 {
		t.Errorf("brightest maximum at (%d,%d) frame %d, want near (16,12) frame 0", x, y, f)
	}
}

func TestScaleSpaceDoGMaxima2DBlob(t *testing.T) {
	stack, err := img.New[float64]([]uint32{32, 32, 1})
	if err != nil {
		t.Fatal(err)
	}
	addBlob2D(stack, 0, 10, 20, 1.8, 1.0)
	b, err := New2D[float64]([]uint32{32, 32}, [][]float64{{1, 1.5, 2}, {1, 1.5, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetDoGSigmaRatio(1.5); err != nil {
		t.Fatal(err)
	}
	coords, vals, err := b.ScaleSpaceDoGMaxima(stack, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) == 0 {
		t.Fatal("no maxima detected")
	}
	m := argmax(vals)
	x, y := int(coords[3*m]), int(coords[3*m+1])
	if x < 9 || x > 11 || y < 19 || y > 21 {
		t.Errorf("brightest maximum at (%d,%d), want near (10,20)", x, y)
	}
}

func TestScaleSpaceLoGMaxima2DTwoBlobs(t *testing.T) {
	stack, err := img.New[float64]([]uint32{48, 32, 1})
	if err != nil {
		t.Fatal(err)
	}
	addBlob2D(stack, 0, 12, 10, 1.5, 1.0)
	addBlob2D(stack, 0, 36, 22, 2.0, 0.8)
	b, err := New2D[float64]([]uint32{48, 32}, [][]float64{{1, 1.5, 2}, {1, 1.5, 2}})
	if err != nil {
		t.Fatal(err)
	}
	coords, _, err := b.ScaleSpaceLoGMaxima(stack, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !hasDetection(coords, 3, []int{12, 10}, 0) {
		t.Errorf("blob at (12,10) not detected")
	}
	if !hasDetection(coords, 3, []int{36, 22}, 0) {
		t.Errorf("blob at (36,22) not detected")
	}
}

func TestScaleSpaceLoGMaxima3DBlob(t *testing.T) {
	stack, err := img.New[float64]([]uint32{16, 14, 12, 1})
	if err != nil {
		t.Fatal(err)
	}
	addBlob3D(stack, 0, 8, 7, 6, 1.5, 1.0)
	b, err := New3D[float64]([]uint32{16, 14, 12}, [][]float64{{1, 1.5, 2}, {1, 1.5, 2}, {1, 1.5, 2}})
	if err != nil {
		t.Fatal(err)
	}
	coords, vals, err := b.ScaleSpaceLoGMaxima(stack, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) == 0 {
		t.Fatal("no maxima detected")
	}
	m := argmax(vals)
	x, y, z, f := int(coords[4*m]), int(coords[4*m+1]), int(coords[4*m+2]), coords[4*m+3]
	if x < 7 || x > 9 || y < 6 || y > 8 || z < 5 || z > 7 || f != 0 {
		t.Errorf("brightest maximum at (%d,%d,%d) frame %d, want near (8,7,6) frame 0", x, y, z, f)
	}
}

func TestScaleSpaceDoGMaxima3DBlob(t *testing.T) {
	stack, err := img.New[float64]([]uint32{14, 12, 10, 1})
	if err != nil {
		t.Fatal(err)
	}
	addBlob3D(stack, 0, 7, 6, 5, 1.5, 1.0)
	b, err := New3D[float64]([]uint32{14, 12, 10}, [][]float64{{1, 1.5, 2}, {1, 1.5, 2}, {1, 1.5, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetDoGSigmaRatio(1.5); err != nil {
		t.Fatal(err)
	}
	coords, vals, err := b.ScaleSpaceDoGMaxima(stack, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) == 0 {
		t.Fatal("no maxima detected")
	}
	m := argmax(vals)
	x, y, z := int(coords[4*m]), int(coords[4*m+1]), int(coords[4*m+2])
	if x < 6 || x > 8 || y < 5 || y > 7 || z < 4 || z > 6 {
		t.Errorf("brightest maximum at (%d,%d,%d), want near (7,6,5)", x, y, z)
	}
}

func TestFrameMaximaRefineIdempotent(t *testing.T) {
	stack, err := img.New[float64]([]uint32{24, 18, 1})
	if err != nil {
		t.Fatal(err)
	}
	addBlob2D(stack, 0, 8, 9, 1.5, 1.0)
	addBlob2D(stack, 0, 10, 9, 1.5, 0.6) // dominated by the first blob
	b, err := New2D[float64]([]uint32{24, 18}, [][]float64{{1, 1.5, 2}, {1, 1.5, 2}})
	if err != nil {
		t.Fatal(err)
	}
	filters, err := b.makeFilters(kindLoG)
	if err != nil {
		t.Fatal(err)
	}
	cube, err := img.New[float64]([]uint32{24, 18, 3})
	if err != nil {
		t.Fatal(err)
	}
	frame, err := stack.Frame(0)
	if err != nil {
		t.Fatal(err)
	}
	for s := 0; s < b.nScales; s++ {
		out, err := cube.Frame(uint32(s))
		if err != nil {
			t.Fatal(err)
		}
		if err := filters[s].Apply(frame, out); err != nil {
			t.Fatal(err)
		}
	}
	finder, err := maxima.NewFinder2D[float64]([]uint32{24, 18}, 3)
	if err != nil {
		t.Fatal(err)
	}
	coords, vals, err := b.frameMaxima(cube, finder, 5)
	if err != nil {
		t.Fatal(err)
	}
	c2 := append([]uint32(nil), coords...)
	v2 := append([]float64(nil), vals...)
	c2, v2, err = b.frameMaximaRefine(cube, c2, v2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(v2) != len(vals) {
		t.Fatalf("second rejection pass changed %d maxima to %d", len(vals), len(v2))
	}
	for i := range vals {
		if v2[i] != vals[i] || c2[3*i] != coords[3*i] || c2[3*i+1] != coords[3*i+1] || c2[3*i+2] != coords[3*i+2] {
			t.Errorf("maximum %d changed on second rejection pass", i)
		}
	}
}

func TestScaleSpaceLoGMaximaConstantStack(t *testing.T) {
	stack, err := img.New[float64]([]uint32{20, 20, 2})
	if err != nil {
		t.Fatal(err)
	}
	for i := range stack.Data {
		stack.Data[i] = 0.4
	}
	b, err := New2D[float64]([]uint32{20, 20}, [][]float64{{1, 2}, {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	coords, vals, err := b.ScaleSpaceLoGMaxima(stack, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 0 || len(coords) != 0 {
		t.Errorf("%d maxima on a constant stack, want 0", len(vals))
	}
}

func TestScaleSpaceMaximaSplitStack(t *testing.T) {
	full, err := img.New[float64]([]uint32{24, 20, 4})
	if err != nil {
		t.Fatal(err)
	}
	centers := [][2]float64{{6, 5}, {17, 8}, {11, 14}, {19, 16}}
	for n, c := range centers {
		addBlob2D(full, uint32(n), c[0], c[1], 1.5, 1.0)
	}
	b, err := New2D[float64]([]uint32{24, 20}, [][]float64{{1, 1.5}, {1, 1.5}})
	if err != nil {
		t.Fatal(err)
	}
	fullCoords, fullVals, err := b.ScaleSpaceLoGMaxima(full, 3, 3)
	if err != nil {
		t.Fatal(err)
	}

	half := 2 * 24 * 20
	lo, err := img.Wrap([]uint32{24, 20, 2}, full.Data[:half])
	if err != nil {
		t.Fatal(err)
	}
	hi, err := img.Wrap([]uint32{24, 20, 2}, full.Data[half:])
	if err != nil {
		t.Fatal(err)
	}
	loCoords, loVals, err := b.ScaleSpaceLoGMaxima(lo, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	hiCoords, hiVals, err := b.ScaleSpaceLoGMaxima(hi, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range hiCoords {
		if i%3 == 2 {
			hiCoords[i] += 2
		}
	}
	coords := append(loCoords, hiCoords...)
	vals := append(loVals, hiVals...)
	if len(vals) != len(fullVals) {
		t.Fatalf("split runs found %d maxima, full run %d", len(vals), len(fullVals))
	}
	for i := range fullVals {
		if vals[i] != fullVals[i] {
			t.Errorf("vals[%d]=%v differs from full run %v", i, vals[i], fullVals[i])
		}
	}
	for i := range fullCoords {
		if coords[i] != fullCoords[i] {
			t.Errorf("coords[%d]=%d differs from full run %d", i, coords[i], fullCoords[i])
		}
	}
}

func TestFilterScaledLoGMatchesFree(t *testing.T) {
	stack, err := img.New[float64]([]uint32{18, 14, 2})
	if err != nil {
		t.Fatal(err)
	}
	addBlob2D(stack, 0, 9, 7, 1.5, 1.0)
	addBlob2D(stack, 1, 4, 10, 1.5, 0.7)

	sigma := []float64{1.4, 1.4}
	b, err := New2D[float64]([]uint32{18, 14}, [][]float64{{1.4}, {1.4}})
	if err != nil {
		t.Fatal(err)
	}
	scaled, err := img.New[float64]([]uint32{18, 14, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.FilterScaledLoG(stack, scaled); err != nil {
		t.Fatal(err)
	}

	want, err := img.New[float64]([]uint32{18, 14, 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := FilterLoG2D(stack, want, sigma); err != nil {
		t.Fatal(err)
	}
	for i := range want.Data {
		if scaled.Data[i] != want.Data[i] {
			t.Fatalf("scaled[%d]=%v, want %v", i, scaled.Data[i], want.Data[i])
		}
	}
}

func TestFilterScaledShapeMismatch(t *testing.T) {
	b, err := New2D[float64]([]uint32{16, 16}, [][]float64{{1, 2}, {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	stack, _ := img.New[float64]([]uint32{16, 16, 1})
	bad, _ := img.New[float64]([]uint32{16, 16, 1, 1})
	if err := b.FilterScaledLoG(stack, bad); !errors.Is(err, ErrParameterShape) {
		t.Errorf("got %v, want parameter shape error", err)
	}
	wrongStack, _ := img.New[float64]([]uint32{16, 15, 1})
	good, _ := img.New[float64]([]uint32{16, 16, 2, 1})
	if err := b.FilterScaledLoG(wrongStack, good); !errors.Is(err, ErrParameterShape) {
		t.Errorf("got %v, want parameter shape error", err)
	}
}

func TestScaleSpaceMaximaBadScaleNeighborhood(t *testing.T) {
	b, err := New2D[float64]([]uint32{16, 16}, [][]float64{{1}, {1}})
	if err != nil {
		t.Fatal(err)
	}
	stack, _ := img.New[float64]([]uint32{16, 16, 1})
	if _, _, err := b.ScaleSpaceLoGMaxima(stack, 3, 4); !errors.Is(err, ErrParameterValue) {
		t.Errorf("even scale neighborhood accepted")
	}
	if _, _, err := b.ScaleSpaceLoGMaxima(stack, 3, -1); !errors.Is(err, ErrParameterValue) {
		t.Errorf("negative scale neighborhood accepted")
	}
}

func TestEnumerateImageMaxima2D(t *testing.T) {
	stack, err := img.New[float32]([]uint32{12, 10, 3})
	if err != nil {
		t.Fatal(err)
	}
	spikes := [][2]int{{3, 4}, {8, 2}, {5, 7}}
	for n, s := range spikes {
		f, err := stack.Frame(uint32(n))
		if err != nil {
			t.Fatal(err)
		}
		f.Data[s[1]*12+s[0]] = 1
	}
	coords, vals, err := EnumerateImageMaxima2D(stack, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 {
		t.Fatalf("%d maxima, want 3", len(vals))
	}
	for n, s := range spikes {
		c := coords[3*n : 3*n+3]
		if int(c[0]) != s[0] || int(c[1]) != s[1] || int(c[2]) != n {
			t.Errorf("maximum %d at (%d,%d) frame %d, want (%d,%d) frame %d",
				n, c[0], c[1], c[2], s[0], s[1], n)
		}
		if vals[n] != 1 {
			t.Errorf("maximum %d value %v, want 1", n, vals[n])
		}
	}
}

func TestEnumerateImageMaxima3D(t *testing.T) {
	stack, err := img.New[float32]([]uint32{8, 7, 6, 2})
	if err != nil {
		t.Fatal(err)
	}
	spikes := [][3]int{{2, 3, 4}, {6, 1, 2}}
	for n, s := range spikes {
		f, err := stack.Frame(uint32(n))
		if err != nil {
			t.Fatal(err)
		}
		f.Data[(s[2]*7+s[1])*8+s[0]] = 1
	}
	coords, vals, err := EnumerateImageMaxima3D(stack, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 {
		t.Fatalf("%d maxima, want 2", len(vals))
	}
	for n, s := range spikes {
		c := coords[4*n : 4*n+4]
		if int(c[0]) != s[0] || int(c[1]) != s[1] || int(c[2]) != s[2] || int(c[3]) != n {
			t.Errorf("maximum %d at %v, want %v frame %d", n, c, s, n)
		}
	}
}

func TestFilterGauss2DConstant(t *testing.T) {
	stack, err := img.New[float64]([]uint32{14, 11, 2})
	if err != nil {
		t.Fatal(err)
	}
	for i := range stack.Data {
		stack.Data[i] = 0.25
	}
	out, _ := img.New[float64](stack.Dims)
	if err := FilterGauss2D(stack, out, []float64{1.5, 2.0}); err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if math.Abs(v-0.25) > 1e-13 {
			t.Fatalf("out[%d]=%v, want 0.25", i, v)
		}
	}
}

func TestFilterStackShapeMismatch(t *testing.T) {
	stack, _ := img.New[float64]([]uint32{8, 8, 1})
	out, _ := img.New[float64]([]uint32{8, 9, 1})
	if err := FilterGauss2D(stack, out, []float64{1, 1}); !errors.Is(err, ErrParameterShape) {
		t.Errorf("got %v, want parameter shape error", err)
	}
	vol, _ := img.New[float64]([]uint32{8, 8, 8})
	if err := FilterGauss3D(vol, vol, []float64{1, 1, 1}); !errors.Is(err, ErrParameterShape) {
		t.Errorf("3-dim stack accepted as 3D frame stack")
	}
}

func TestPoolSize(t *testing.T) {
	prev := MaxThreads
	defer func() { MaxThreads = prev }()

	MaxThreads = 1
	if n := poolSize(0); n != 1 {
		t.Errorf("poolSize with thread cap 1 returned %d", n)
	}
	MaxThreads = 0
	if n := poolSize(0); n < 1 {
		t.Errorf("poolSize returned %d, want at least 1", n)
	}
	// absurd per-worker footprint still yields one worker
	if n := poolSize(1 << 62); n != 1 {
		t.Errorf("poolSize with huge footprint returned %d", n)
	}
}

func TestParallelFramesError(t *testing.T) {
	err := parallelFrames(4, 2, func(frames <-chan int) error {
		for range frames {
		}
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Errorf("got %v, want boom", err)
	}
	if err := parallelFrames(3, 2, func(frames <-chan int) error {
		for range frames {
		}
		return nil
	}); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}
