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

// Package maxima finds strict local maxima in 2D images and 3D volumes.
// The fast path runs a 3x3(x3) core with skip tables over the interior,
// followed by explicit enumeration of corners, edges and faces. Larger
// odd neighborhoods refine the core results by checking the remaining
// shell of each candidate.
package maxima

import (
	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// MinBoxsize is the smallest supported neighborhood edge length.
const MinBoxsize = 3

// Finder2D locates strict local maxima in 2D images of a fixed size.
// It owns its candidate storage and skip tables and is not safe for
// concurrent use.
type Finder2D[T img.Float] struct {
	size    []uint32
	boxsize int
	maxN    int
	coords  []uint32
	vals    []T
	n       int
	skipBuf []uint8
}

// NewFinder2D builds a finder for images of the given size and an odd
// neighborhood edge length boxsize >= 3 that fits every axis.
func NewFinder2D[T img.Float](size []uint32, boxsize int) (*Finder2D[T], error) {
	if len(size) != 2 {
		return nil, errs.Shapef("image size has %d dimensions, want 2", len(size))
	}
	if boxsize < MinBoxsize || boxsize%2 == 0 {
		return nil, errs.Valuef("boxsize must be odd and >=%d, got %d", MinBoxsize, boxsize)
	}
	for i, s := range size {
		if int(s) < boxsize {
			return nil, errs.Valuef("boxsize %d exceeds image dimension %d of size %d", boxsize, i, s)
		}
	}
	maxN := int(size[0]) * int(size[1]) / 4
	return &Finder2D[T]{
		size:    append([]uint32(nil), size...),
		boxsize: boxsize,
		maxN:    maxN,
		coords:  make([]uint32, 2*maxN),
		vals:    make([]T, maxN),
		skipBuf: make([]uint8, 2*int(size[0])),
	}, nil
}

func (f *Finder2D[T]) detect(x, y int, val T) error {
	if f.n >= f.maxN {
		return errs.Logicalf("cannot add more maxima, capacity %d reached", f.maxN)
	}
	f.coords[2*f.n] = uint32(x)
	f.coords[2*f.n+1] = uint32(y)
	f.vals[f.n] = val
	f.n++
	return nil
}

func (f *Finder2D[T]) read() ([]uint32, []T) {
	return append([]uint32(nil), f.coords[:2*f.n]...),
		append([]T(nil), f.vals[:f.n]...)
}

func (f *Finder2D[T]) checkShape(im *img.Image[T]) error {
	if len(im.Dims) != 2 || im.Dims[0] != f.size[0] || im.Dims[1] != f.size[1] {
		return errs.Shapef("image shape %v does not match finder size %v", im.Dims, f.size)
	}
	return nil
}

// Find returns the coordinates and values of all strict maxima of the
// neighborhood configured at construction. Coordinates are stored as
// [x0,y0, x1,y1, ...].
func (f *Finder2D[T]) Find(im *img.Image[T]) ([]uint32, []T, error) {
	if err := f.checkShape(im); err != nil {
		return nil, nil, err
	}
	f.n = 0
	var err error
	switch {
	case f.boxsize == 3:
		err = f.maxima3x3(im.Data)
	case f.boxsize == 5:
		err = f.maxima5x5(im.Data)
	default:
		err = f.maximaNxN(im.Data, f.boxsize)
	}
	if err != nil {
		return nil, nil, err
	}
	coords, vals := f.read()
	return coords, vals, nil
}

// FindSlow is the straightforward reference finder used for validation.
// It supports boxsize 3 only.
func (f *Finder2D[T]) FindSlow(im *img.Image[T]) ([]uint32, []T, error) {
	if err := f.checkShape(im); err != nil {
		return nil, nil, err
	}
	f.n = 0
	if err := f.maxima3x3Slow(im.Data); err != nil {
		return nil, nil, err
	}
	coords, vals := f.read()
	return coords, vals, nil
}

func (f *Finder2D[T]) maxima3x3(d []T) error {
	sX, sY := int(f.size[0]), int(f.size[1])
	for i := range f.skipBuf {
		f.skipBuf[i] = 0
	}
	skip := f.skipBuf[:sX]
	skipNext := f.skipBuf[sX : 2*sX]
	for y := 1; y < sY-1; y++ {
		row := d[y*sX : (y+1)*sX]
		rowP := d[(y-1)*sX:]
		rowN := d[(y+1)*sX:]
		for x := 1; x < sX-1; x++ {
			if skip[x] != 0 {
				continue
			}
			val := row[x]
			if val <= row[x+1] { // increasing trend, follow until it ends
				for {
					x++
					val = row[x]
					if !(x < sX-1 && val <= row[x+1]) {
						break
					}
				}
				if x >= sX-1 {
					break
				}
			}
			if val <= row[x-1] {
				continue
			}
			skip[x+1] = 1 // 1D max, next pixel cannot be one
			// next row, recording any pixels to skip there
			if val <= rowN[x-1] {
				continue
			}
			skipNext[x-1] = 1
			if val <= rowN[x] {
				continue
			}
			skipNext[x] = 1
			if val <= rowN[x+1] {
				continue
			}
			skipNext[x+1] = 1
			// previous row
			if val <= rowP[x-1] || val <= rowP[x] || val <= rowP[x+1] {
				continue
			}
			if err := f.detect(x, y, val); err != nil {
				return err
			}
		}
		for i := range skip {
			skip[i] = 0
		}
		skip, skipNext = skipNext, skip
	}
	return f.maxima3x3Edges(d)
}

func (f *Finder2D[T]) maxima3x3Slow(d []T) error {
	if err := f.maxima3x3Edges(d); err != nil {
		return err
	}
	sX, sY := int(f.size[0]), int(f.size[1])
	for y := 1; y < sY-1; y++ {
		row := d[y*sX:]
		rowP := d[(y-1)*sX:]
		rowN := d[(y+1)*sX:]
		for x := 1; x < sX-1; x++ {
			val := row[x]
			if val <= rowP[x-1] || val <= row[x-1] || val <= rowN[x-1] ||
				val <= rowP[x] || val <= rowN[x] ||
				val <= rowP[x+1] || val <= row[x+1] || val <= rowN[x+1] {
				continue
			}
			if err := f.detect(x, y, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxima3x3Edges enumerates the image border counterclockwise, corners
// included, comparing only against the in-bounds neighbors.
func (f *Finder2D[T]) maxima3x3Edges(d []T) error {
	sX, sY := int(f.size[0]), int(f.size[1])
	at := func(x, y int) T { return d[y*sX+x] }
	// corner x=0, y=0
	x, y := 0, 0
	val := at(x, y)
	if val > at(x, y+1) && val > at(x+1, y) && val > at(x+1, y+1) {
		if err := f.detect(x, y, val); err != nil {
			return err
		}
	}
	// edge x=1..sX-2, y=0
	for x = 1; x < sX-1; x++ {
		val = at(x, y)
		if val > at(x-1, y) && val > at(x+1, y) && val > at(x-1, y+1) && val > at(x, y+1) && val > at(x+1, y+1) {
			if err := f.detect(x, y, val); err != nil {
				return err
			}
		}
	}
	// corner x=sX-1, y=0
	val = at(x, y)
	if val > at(x, y+1) && val > at(x-1, y) && val > at(x-1, y+1) {
		if err := f.detect(x, y, val); err != nil {
			return err
		}
	}
	// edge x=sX-1, y=1..sY-2
	for y = 1; y < sY-1; y++ {
		val = at(x, y)
		if val > at(x, y-1) && val > at(x, y+1) && val > at(x-1, y-1) && val > at(x-1, y) && val > at(x-1, y+1) {
			if err := f.detect(x, y, val); err != nil {
				return err
			}
		}
	}
	// corner x=sX-1, y=sY-1
	val = at(x, y)
	if val > at(x, y-1) && val > at(x-1, y) && val > at(x-1, y-1) {
		if err := f.detect(x, y, val); err != nil {
			return err
		}
	}
	// edge x=sX-2..1, y=sY-1
	for x = sX - 2; x >= 1; x-- {
		val = at(x, y)
		if val > at(x-1, y) && val > at(x+1, y) && val > at(x-1, y-1) && val > at(x, y-1) && val > at(x+1, y-1) {
			if err := f.detect(x, y, val); err != nil {
				return err
			}
		}
	}
	// corner x=0, y=sY-1
	val = at(x, y)
	if val > at(x, y-1) && val > at(x+1, y) && val > at(x+1, y-1) {
		if err := f.detect(x, y, val); err != nil {
			return err
		}
	}
	// edge x=0, y=sY-2..1
	for y = sY - 2; y >= 1; y-- {
		val = at(x, y)
		if val > at(x, y-1) && val > at(x, y+1) && val > at(x+1, y-1) && val > at(x+1, y) && val > at(x+1, y+1) {
			if err := f.detect(x, y, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxima5x5 refines the 3x3 candidates by checking only the shell at
// Chebyshev distance two, since the inner 3x3 is already verified.
func (f *Finder2D[T]) maxima5x5(d []T) error {
	if err := f.maxima3x3(d); err != nil {
		return err
	}
	sX, sY := int(f.size[0]), int(f.size[1])
	at := func(x, y int) T { return d[y*sX+x] }
	w := 0
	for n := 0; n < f.n; n++ {
		mx := int(f.coords[2*n])
		my := int(f.coords[2*n+1])
		val := f.vals[n]
		xl, xu := max(0, mx-2), min(sX-1, mx+2)
		yl, yu := max(0, my-2), min(sY-1, my+2)
		ok := true
		if my >= 2 {
			for x := xl; x <= xu; x++ {
				if at(x, my-2) > val {
					ok = false
					break
				}
			}
		}
		if ok && mx >= 2 {
			for y := yl; y <= yu; y++ {
				if at(mx-2, y) > val {
					ok = false
					break
				}
			}
		}
		if ok && mx+2 < sX {
			for y := yl; y <= yu; y++ {
				if at(mx+2, y) > val {
					ok = false
					break
				}
			}
		}
		if ok && my+2 < sY {
			for x := xl; x <= xu; x++ {
				if at(x, my+2) > val {
					ok = false
					break
				}
			}
		}
		if ok {
			f.coords[2*w] = uint32(mx)
			f.coords[2*w+1] = uint32(my)
			f.vals[w] = val
			w++
		}
	}
	f.n = w
	return nil
}

// maximaNxN refines the 3x3 candidates against the full n x n box,
// skipping the parts of the middle rows the core already verified.
func (f *Finder2D[T]) maximaNxN(d []T, boxsize int) error {
	if err := f.maxima3x3(d); err != nil {
		return err
	}
	if boxsize <= 3 {
		return errs.Logicalf("boxsize %d should not use the nxn refinement", boxsize)
	}
	k := (boxsize - 1) / 2
	sX, sY := int(f.size[0]), int(f.size[1])
	at := func(x, y int) T { return d[y*sX+x] }
	w := 0
	for n := 0; n < f.n; n++ {
		mx := int(f.coords[2*n])
		my := int(f.coords[2*n+1])
		val := f.vals[n]
		xl, xu := max(0, mx-k), min(sX-1, mx+k)
		yl, yu := max(0, my-k), min(sY-1, my+k)
		ok := true
	columns:
		for y := yl; y <= yu; y++ {
			if my-1 <= y && y <= my+1 { // middle rows: inner 3x3 already verified
				for x := xl; x <= mx-2; x++ {
					if at(x, y) > val {
						ok = false
						break columns
					}
				}
				for x := mx + 2; x <= xu; x++ {
					if at(x, y) > val {
						ok = false
						break columns
					}
				}
			} else {
				for x := xl; x <= xu; x++ {
					if at(x, y) > val {
						ok = false
						break columns
					}
				}
			}
		}
		if ok {
			f.coords[2*w] = uint32(mx)
			f.coords[2*w+1] = uint32(my)
			f.vals[w] = val
			w++
		}
	}
	f.n = w
	return nil
}
