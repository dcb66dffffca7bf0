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

package maxima

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// maximaRow is one maxima table entry; toRows normalizes a column-major
// table into sorted rows for order-independent comparison.
type maximaRow struct {
	coords [3]uint32
	val    float64
}

func toRows[T img.Float](coords []uint32, vals []T, d int) []maximaRow {
	rows := make([]maximaRow, len(vals))
	for i := range vals {
		for r := 0; r < d; r++ {
			rows[i].coords[r] = coords[i*d+r]
		}
		rows[i].val = float64(vals[i])
	}
	sort.Slice(rows, func(i, j int) bool {
		for r := 0; r < 3; r++ {
			if rows[i].coords[r] != rows[j].coords[r] {
				return rows[i].coords[r] < rows[j].coords[r]
			}
		}
		return false
	})
	return rows
}

func rowsEqual(a, b []maximaRow) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func randImage[T img.Float](rng *fastrand.RNG, dims []uint32) *img.Image[T] {
	im, err := img.New[T](dims)
	if err != nil {
		panic(err)
	}
	for i := range im.Data {
		im.Data[i] = T(float64(rng.Uint32()) / float64(math.MaxUint32))
	}
	return im
}

func TestFind2DMatchesSlow(t *testing.T) {
	rng := fastrand.RNG{}
	for _, dims := range [][]uint32{{8, 8}, {16, 11}, {33, 7}, {5, 21}} {
		f, err := NewFinder2D[float64](dims, 3)
		if err != nil {
			t.Fatal(err)
		}
		for rep := 0; rep < 5; rep++ {
			im := randImage[float64](&rng, dims)
			fc, fv, err := f.Find(im)
			if err != nil {
				t.Fatal(err)
			}
			sc, sv, err := f.FindSlow(im)
			if err != nil {
				t.Fatal(err)
			}
			if !rowsEqual(toRows(fc, fv, 2), toRows(sc, sv, 2)) {
				t.Errorf("%v rep %d: fast %d maxima, slow %d maxima differ", dims, rep, len(fv), len(sv))
			}
		}
	}
}

func TestFind3DMatchesSlow(t *testing.T) {
	rng := fastrand.RNG{}
	for _, dims := range [][]uint32{{6, 5, 4}, {9, 8, 7}, {4, 11, 5}} {
		f, err := NewFinder3D[float64](dims, 3)
		if err != nil {
			t.Fatal(err)
		}
		for rep := 0; rep < 5; rep++ {
			im := randImage[float64](&rng, dims)
			fc, fv, err := f.Find(im)
			if err != nil {
				t.Fatal(err)
			}
			sc, sv, err := f.FindSlow(im)
			if err != nil {
				t.Fatal(err)
			}
			if !rowsEqual(toRows(fc, fv, 3), toRows(sc, sv, 3)) {
				t.Errorf("%v rep %d: fast %d maxima, slow %d maxima differ", dims, rep, len(fv), len(sv))
			}
		}
	}
}

func TestFind2DSinglePeak(t *testing.T) {
	dims := []uint32{16, 8}
	im, _ := img.New[float32](dims)
	im.Data[3*16+5] = 1
	for _, boxsize := range []int{3, 5, 7} {
		f, err := NewFinder2D[float32](dims, boxsize)
		if err != nil {
			t.Fatal(err)
		}
		coords, vals, err := f.Find(im)
		if err != nil {
			t.Fatal(err)
		}
		if len(vals) != 1 {
			t.Fatalf("boxsize %d: %d maxima, want 1", boxsize, len(vals))
		}
		if coords[0] != 5 || coords[1] != 3 || vals[0] != 1 {
			t.Errorf("boxsize %d: got (%d,%d)=%v, want (5,3)=1", boxsize, coords[0], coords[1], vals[0])
		}
	}
}

func TestFind2DPlateauRejected(t *testing.T) {
	dims := []uint32{12, 9}
	im, _ := img.New[float32](dims)
	for i := range im.Data {
		im.Data[i] = 0.5
	}
	f, err := NewFinder2D[float32](dims, 3)
	if err != nil {
		t.Fatal(err)
	}
	_, vals, err := f.Find(im)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 0 {
		t.Errorf("%d maxima on a constant image, want 0", len(vals))
	}
}

func TestFind2DBoxsizeSuppression(t *testing.T) {
	dims := []uint32{16, 16}
	im, _ := img.New[float32](dims)
	im.Data[4*16+4] = 1.0
	im.Data[4*16+6] = 0.9 // Chebyshev distance 2 from the first peak
	im.Data[9*16+12] = 0.8

	cases := []struct {
		boxsize int
		want    int
	}{
		{3, 3}, // all three are strict 3x3 maxima
		{5, 2}, // the 0.9 peak is dominated within distance 2
		{7, 2},
	}
	for _, c := range cases {
		f, err := NewFinder2D[float32](dims, c.boxsize)
		if err != nil {
			t.Fatal(err)
		}
		_, vals, err := f.Find(im)
		if err != nil {
			t.Fatal(err)
		}
		if len(vals) != c.want {
			t.Errorf("boxsize %d: %d maxima, want %d", c.boxsize, len(vals), c.want)
		}
	}
}

func TestFind2DEdgePeaks(t *testing.T) {
	dims := []uint32{10, 7}
	im, _ := img.New[float32](dims)
	im.Data[0] = 1.0       // corner (0,0)
	im.Data[6*10+9] = 0.9  // corner (9,6)
	im.Data[0*10+5] = 0.8  // edge (5,0)
	im.Data[3*10+9] = 0.7  // edge (9,3)
	f, err := NewFinder2D[float32](dims, 3)
	if err != nil {
		t.Fatal(err)
	}
	coords, vals, err := f.Find(im)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 4 {
		t.Fatalf("%d maxima, want 4: %v %v", len(vals), coords, vals)
	}
}

func TestFind3DSinglePeak(t *testing.T) {
	dims := []uint32{10, 9, 8}
	im, _ := img.New[float32](dims)
	idx := (4*9+3)*10 + 6 // (x,y,z) = (6,3,4)
	im.Data[idx] = 1
	for _, boxsize := range []int{3, 5, 7} {
		f, err := NewFinder3D[float32](dims, boxsize)
		if err != nil {
			t.Fatal(err)
		}
		coords, vals, err := f.Find(im)
		if err != nil {
			t.Fatal(err)
		}
		if len(vals) != 1 {
			t.Fatalf("boxsize %d: %d maxima, want 1", boxsize, len(vals))
		}
		if coords[0] != 6 || coords[1] != 3 || coords[2] != 4 {
			t.Errorf("boxsize %d: got (%d,%d,%d), want (6,3,4)", boxsize, coords[0], coords[1], coords[2])
		}
	}
}

func TestFind3DPlateauRejected(t *testing.T) {
	dims := []uint32{6, 6, 6}
	im, _ := img.New[float32](dims)
	for i := range im.Data {
		im.Data[i] = 1
	}
	f, err := NewFinder3D[float32](dims, 3)
	if err != nil {
		t.Fatal(err)
	}
	_, vals, err := f.Find(im)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 0 {
		t.Errorf("%d maxima on a constant volume, want 0", len(vals))
	}
}

func TestNewFinderValidation(t *testing.T) {
	if _, err := NewFinder2D[float32]([]uint32{8, 8}, 4); !errors.Is(err, errs.ErrParameterValue) {
		t.Errorf("even boxsize accepted")
	}
	if _, err := NewFinder2D[float32]([]uint32{8, 8}, 1); !errors.Is(err, errs.ErrParameterValue) {
		t.Errorf("boxsize 1 accepted")
	}
	if _, err := NewFinder2D[float32]([]uint32{8, 4}, 5); !errors.Is(err, errs.ErrParameterValue) {
		t.Errorf("boxsize exceeding an axis accepted")
	}
	if _, err := NewFinder2D[float32]([]uint32{8, 8, 8}, 3); !errors.Is(err, errs.ErrParameterShape) {
		t.Errorf("3-dim size accepted for 2D finder")
	}
	if _, err := NewFinder3D[float32]([]uint32{8, 8}, 3); !errors.Is(err, errs.ErrParameterShape) {
		t.Errorf("2-dim size accepted for 3D finder")
	}
}

func TestFindShapeMismatch(t *testing.T) {
	f, err := NewFinder2D[float32]([]uint32{8, 8}, 3)
	if err != nil {
		t.Fatal(err)
	}
	im, _ := img.New[float32]([]uint32{8, 9})
	if _, _, err := f.Find(im); !errors.Is(err, errs.ErrParameterShape) {
		t.Errorf("got %v, want parameter shape error", err)
	}
}
