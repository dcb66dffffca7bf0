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

package img

import (
	"testing"
)

func TestNew(t *testing.T) {
	im, err := New[float32]([]uint32{4, 3, 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(im.Data) != 24 {
		t.Errorf("data length %d, want 24", len(im.Data))
	}
	if im.Pixels() != 24 {
		t.Errorf("pixels %d, want 24", im.Pixels())
	}
	if _, err := New[float32](nil); err == nil {
		t.Errorf("empty dims accepted")
	}
	if _, err := New[float32]([]uint32{4, 0}); err == nil {
		t.Errorf("zero dimension accepted")
	}
}

func TestWrap(t *testing.T) {
	data := make([]float64, 6)
	if _, err := Wrap([]uint32{3, 2}, data); err != nil {
		t.Fatal(err)
	}
	if _, err := Wrap([]uint32{3, 3}, data); err == nil {
		t.Errorf("length mismatch accepted")
	}
}

func TestFrame(t *testing.T) {
	im, err := New[float32]([]uint32{2, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	for i := range im.Data {
		im.Data[i] = float32(i)
	}
	f, err := im.Frame(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Dims) != 2 || f.Dims[0] != 2 || f.Dims[1] != 2 {
		t.Errorf("frame dims %v, want [2 2]", f.Dims)
	}
	for i, v := range f.Data {
		if v != float32(4+i) {
			t.Errorf("frame data[%d]=%v, want %v", i, v, 4+i)
		}
	}
	// frames are views on the stack storage
	f.Data[0] = 99
	if im.Data[4] != 99 {
		t.Errorf("frame write did not reach the stack")
	}
	if _, err := im.Frame(3); err == nil {
		t.Errorf("out of range frame accepted")
	}
}

func TestSameShape(t *testing.T) {
	a, _ := New[float32]([]uint32{4, 5})
	b, _ := New[float32]([]uint32{4, 5})
	c, _ := New[float32]([]uint32{5, 4})
	d, _ := New[float32]([]uint32{4, 5, 1})
	if !a.SameShape(b) {
		t.Errorf("equal shapes reported different")
	}
	if a.SameShape(c) || a.SameShape(d) {
		t.Errorf("different shapes reported equal")
	}
}

func TestEps(t *testing.T) {
	if e := Eps[float32](); e != 1.1920929e-7 {
		t.Errorf("float32 epsilon %v", e)
	}
	if e := Eps[float64](); e != 2.220446049250313e-16 {
		t.Errorf("float64 epsilon %v", e)
	}
}
