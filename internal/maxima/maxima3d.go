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
	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// Finder3D locates strict local maxima in 3D volumes of a fixed size.
// Not safe for concurrent use.
type Finder3D[T img.Float] struct {
	size         []uint32
	boxsize      int
	maxN         int
	coords       []uint32
	vals         []T
	n            int
	skipBuf      []uint8
	skipPlaneBuf []uint8
}

// NewFinder3D builds a finder for volumes of the given size and an odd
// neighborhood edge length boxsize >= 3 that fits every axis.
func NewFinder3D[T img.Float](size []uint32, boxsize int) (*Finder3D[T], error) {
	if len(size) != 3 {
		return nil, errs.Shapef("volume size has %d dimensions, want 3", len(size))
	}
	if boxsize < MinBoxsize || boxsize%2 == 0 {
		return nil, errs.Valuef("boxsize must be odd and >=%d, got %d", MinBoxsize, boxsize)
	}
	for i, s := range size {
		if int(s) < boxsize {
			return nil, errs.Valuef("boxsize %d exceeds volume dimension %d of size %d", boxsize, i, s)
		}
	}
	maxN := int(size[0]) * int(size[1]) * int(size[2]) / 8
	return &Finder3D[T]{
		size:         append([]uint32(nil), size...),
		boxsize:      boxsize,
		maxN:         maxN,
		coords:       make([]uint32, 3*maxN),
		vals:         make([]T, maxN),
		skipBuf:      make([]uint8, 2*int(size[0])),
		skipPlaneBuf: make([]uint8, 2*int(size[0])*int(size[1])),
	}, nil
}

func (f *Finder3D[T]) detect(x, y, z int, val T) error {
	if f.n >= f.maxN {
		return errs.Logicalf("cannot add more maxima, capacity %d reached", f.maxN)
	}
	f.coords[3*f.n] = uint32(x)
	f.coords[3*f.n+1] = uint32(y)
	f.coords[3*f.n+2] = uint32(z)
	f.vals[f.n] = val
	f.n++
	return nil
}

func (f *Finder3D[T]) read() ([]uint32, []T) {
	return append([]uint32(nil), f.coords[:3*f.n]...),
		append([]T(nil), f.vals[:f.n]...)
}

func (f *Finder3D[T]) checkShape(im *img.Image[T]) error {
	if len(im.Dims) != 3 || im.Dims[0] != f.size[0] || im.Dims[1] != f.size[1] || im.Dims[2] != f.size[2] {
		return errs.Shapef("volume shape %v does not match finder size %v", im.Dims, f.size)
	}
	return nil
}

// Find returns the coordinates and values of all strict maxima of the
// neighborhood configured at construction. Coordinates are stored as
// [x0,y0,z0, x1,y1,z1, ...].
func (f *Finder3D[T]) Find(im *img.Image[T]) ([]uint32, []T, error) {
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
func (f *Finder3D[T]) FindSlow(im *img.Image[T]) ([]uint32, []T, error) {
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

func (f *Finder3D[T]) maxima3x3(d []T) error {
	sX, sY, sZ := int(f.size[0]), int(f.size[1]), int(f.size[2])
	sXY := sX * sY
	at := func(x, y, z int) T { return d[z*sXY+y*sX+x] }
	for i := range f.skipBuf {
		f.skipBuf[i] = 0
	}
	for i := range f.skipPlaneBuf {
		f.skipPlaneBuf[i] = 0
	}
	skip := f.skipBuf[:sX]
	skipNext := f.skipBuf[sX : 2*sX]
	skipPlane := f.skipPlaneBuf[:sXY]
	skipPlaneNext := f.skipPlaneBuf[sXY : 2*sXY]
	for z := 1; z < sZ-1; z++ {
		for y := 1; y < sY-1; y++ {
			for x := 1; x < sX-1; x++ {
				if skip[x] != 0 {
					continue
				}
				if skipPlane[y*sX+x] != 0 {
					continue
				}
				val := at(x, y, z)
				if val <= at(x+1, y, z) { // increasing trend, follow until it ends
					for {
						x++
						val = at(x, y, z)
						if !(x < sX-1 && val <= at(x+1, y, z)) {
							break
						}
					}
					if x >= sX-1 {
						break
					}
				}
				if val <= at(x-1, y, z) {
					continue
				}
				skip[x+1] = 1 // 1D max, next pixel cannot be one
				// next row, recording any pixels to skip there
				if val <= at(x-1, y+1, z) {
					continue
				}
				skipNext[x-1] = 1
				if val <= at(x, y+1, z) {
					continue
				}
				skipNext[x] = 1
				if val <= at(x+1, y+1, z) {
					continue
				}
				skipNext[x+1] = 1
				// next plane, recording any pixels to skip there
				if val <= at(x-1, y-1, z+1) {
					continue
				}
				skipPlaneNext[(y-1)*sX+x-1] = 1
				if val <= at(x, y-1, z+1) {
					continue
				}
				skipPlaneNext[(y-1)*sX+x] = 1
				if val <= at(x+1, y-1, z+1) {
					continue
				}
				skipPlaneNext[(y-1)*sX+x+1] = 1
				if val <= at(x-1, y, z+1) {
					continue
				}
				skipPlaneNext[y*sX+x-1] = 1
				if val <= at(x, y, z+1) {
					continue
				}
				skipPlaneNext[y*sX+x] = 1
				if val <= at(x+1, y, z+1) {
					continue
				}
				skipPlaneNext[y*sX+x+1] = 1
				if val <= at(x-1, y+1, z+1) {
					continue
				}
				skipPlaneNext[(y+1)*sX+x-1] = 1
				if val <= at(x, y+1, z+1) {
					continue
				}
				skipPlaneNext[(y+1)*sX+x] = 1
				if val <= at(x+1, y+1, z+1) {
					continue
				}
				skipPlaneNext[(y+1)*sX+x+1] = 1
				// previous row
				if val <= at(x-1, y-1, z) || val <= at(x, y-1, z) || val <= at(x+1, y-1, z) {
					continue
				}
				// previous plane
				if val <= at(x-1, y-1, z-1) || val <= at(x, y-1, z-1) || val <= at(x+1, y-1, z-1) ||
					val <= at(x-1, y, z-1) || val <= at(x, y, z-1) || val <= at(x+1, y, z-1) ||
					val <= at(x-1, y+1, z-1) || val <= at(x, y+1, z-1) || val <= at(x+1, y+1, z-1) {
					continue
				}
				if err := f.detect(x, y, z, val); err != nil {
					return err
				}
			}
			for i := range skip {
				skip[i] = 0
			}
			skip, skipNext = skipNext, skip
		}
		for i := range skipPlane {
			skipPlane[i] = 0
		}
		skipPlane, skipPlaneNext = skipPlaneNext, skipPlane
		for i := range skip {
			skip[i] = 0
		}
	}
	return f.maxima3x3Edges(d)
}

func (f *Finder3D[T]) maxima3x3Slow(d []T) error {
	if err := f.maxima3x3Edges(d); err != nil {
		return err
	}
	sX, sY, sZ := int(f.size[0]), int(f.size[1]), int(f.size[2])
	sXY := sX * sY
	at := func(x, y, z int) T { return d[z*sXY+y*sX+x] }
	for z := 1; z < sZ-1; z++ {
		for y := 1; y < sY-1; y++ {
			for x := 1; x < sX-1; x++ {
				val := at(x, y, z)
				ok := true
			neighbors:
				for dz := -1; dz <= 1; dz++ {
					for dy := -1; dy <= 1; dy++ {
						for dx := -1; dx <= 1; dx++ {
							if dx == 0 && dy == 0 && dz == 0 {
								continue
							}
							if val <= at(x+dx, y+dy, z+dz) {
								ok = false
								break neighbors
							}
						}
					}
				}
				if ok {
					if err := f.detect(x, y, z, val); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// maxima3x3Edges enumerates the volume boundary: the forward face's
// corners and edges, the four receding edges, the backward face's
// corners and edges, then the six faces' interiors.
func (f *Finder3D[T]) maxima3x3Edges(d []T) error {
	sX, sY, sZ := int(f.size[0]), int(f.size[1]), int(f.size[2])
	sXY := sX * sY
	at := func(x, y, z int) T { return d[z*sXY+y*sX+x] }
	// strict check against the in-bounds part of the 3x3x3 neighborhood
	check := func(x, y, z int) error {
		val := at(x, y, z)
		for dz := -1; dz <= 1; dz++ {
			zz := z + dz
			if zz < 0 || zz >= sZ {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				yy := y + dy
				if yy < 0 || yy >= sY {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= sX {
						continue
					}
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					if val <= at(xx, yy, zz) {
						return nil
					}
				}
			}
		}
		return f.detect(x, y, z, val)
	}
	// forward face z=0: corners and edges, counterclockwise
	if err := check(0, 0, 0); err != nil {
		return err
	}
	for x := 1; x < sX-1; x++ {
		if err := check(x, 0, 0); err != nil {
			return err
		}
	}
	if err := check(sX-1, 0, 0); err != nil {
		return err
	}
	for y := 1; y < sY-1; y++ {
		if err := check(sX-1, y, 0); err != nil {
			return err
		}
	}
	if err := check(sX-1, sY-1, 0); err != nil {
		return err
	}
	for x := sX - 2; x >= 1; x-- {
		if err := check(x, sY-1, 0); err != nil {
			return err
		}
	}
	if err := check(0, sY-1, 0); err != nil {
		return err
	}
	for y := sY - 2; y >= 1; y-- {
		if err := check(0, y, 0); err != nil {
			return err
		}
	}
	// four receding edges z=1..sZ-2
	for z := 1; z < sZ-1; z++ {
		if err := check(0, 0, z); err != nil {
			return err
		}
	}
	for z := 1; z < sZ-1; z++ {
		if err := check(sX-1, 0, z); err != nil {
			return err
		}
	}
	for z := 1; z < sZ-1; z++ {
		if err := check(sX-1, sY-1, z); err != nil {
			return err
		}
	}
	for z := 1; z < sZ-1; z++ {
		if err := check(0, sY-1, z); err != nil {
			return err
		}
	}
	// backward face z=sZ-1: corners and edges, counterclockwise
	if err := check(0, 0, sZ-1); err != nil {
		return err
	}
	for x := 1; x < sX-1; x++ {
		if err := check(x, 0, sZ-1); err != nil {
			return err
		}
	}
	if err := check(sX-1, 0, sZ-1); err != nil {
		return err
	}
	for y := 1; y < sY-1; y++ {
		if err := check(sX-1, y, sZ-1); err != nil {
			return err
		}
	}
	if err := check(sX-1, sY-1, sZ-1); err != nil {
		return err
	}
	for x := sX - 2; x >= 1; x-- {
		if err := check(x, sY-1, sZ-1); err != nil {
			return err
		}
	}
	if err := check(0, sY-1, sZ-1); err != nil {
		return err
	}
	for y := sY - 2; y >= 1; y-- {
		if err := check(0, y, sZ-1); err != nil {
			return err
		}
	}
	// six face interiors
	for z := 1; z < sZ-1; z++ { // top x=0
		for y := 1; y < sY-1; y++ {
			if err := check(0, y, z); err != nil {
				return err
			}
		}
	}
	for z := 1; z < sZ-1; z++ { // bottom x=sX-1
		for y := 1; y < sY-1; y++ {
			if err := check(sX-1, y, z); err != nil {
				return err
			}
		}
	}
	for z := 1; z < sZ-1; z++ { // left y=0
		for x := 1; x < sX-1; x++ {
			if err := check(x, 0, z); err != nil {
				return err
			}
		}
	}
	for z := 1; z < sZ-1; z++ { // right y=sY-1
		for x := 1; x < sX-1; x++ {
			if err := check(x, sY-1, z); err != nil {
				return err
			}
		}
	}
	for y := 1; y < sY-1; y++ { // front z=0
		for x := 1; x < sX-1; x++ {
			if err := check(x, y, 0); err != nil {
				return err
			}
		}
	}
	for y := 1; y < sY-1; y++ { // rear z=sZ-1
		for x := 1; x < sX-1; x++ {
			if err := check(x, y, sZ-1); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxima5x5 refines the 3x3x3 candidates by checking only the shell at
// Chebyshev distance two, since the inner 3x3x3 is already verified.
func (f *Finder3D[T]) maxima5x5(d []T) error {
	if err := f.maxima3x3(d); err != nil {
		return err
	}
	sX, sY, sZ := int(f.size[0]), int(f.size[1]), int(f.size[2])
	sXY := sX * sY
	at := func(x, y, z int) T { return d[z*sXY+y*sX+x] }
	w := 0
	for n := 0; n < f.n; n++ {
		mx := int(f.coords[3*n])
		my := int(f.coords[3*n+1])
		mz := int(f.coords[3*n+2])
		val := f.vals[n]
		xl, xu := max(0, mx-2), min(sX-1, mx+2)
		yl, yu := max(0, my-2), min(sY-1, my+2)
		zl, zu := max(0, mz-1), min(sZ-1, mz+1)
		ok := true
		if mz >= 2 { // forward plane
			for y := yl; ok && y <= yu; y++ {
				for x := xl; x <= xu; x++ {
					if at(x, y, mz-2) > val {
						ok = false
						break
					}
				}
			}
		}
		for z := zl; ok && z <= zu; z++ { // ring of the three middle planes
			if my >= 2 {
				for x := xl; x <= xu; x++ {
					if at(x, my-2, z) > val {
						ok = false
						break
					}
				}
			}
			if ok && mx+2 < sX {
				for y := yl; y <= yu; y++ {
					if at(mx+2, y, z) > val {
						ok = false
						break
					}
				}
			}
			if ok && my+2 < sY {
				for x := xl; x <= xu; x++ {
					if at(x, my+2, z) > val {
						ok = false
						break
					}
				}
			}
			if ok && mx >= 2 {
				for y := yl; y <= yu; y++ {
					if at(mx-2, y, z) > val {
						ok = false
						break
					}
				}
			}
		}
		if ok && mz+2 < sZ { // backward plane
			for y := yl; ok && y <= yu; y++ {
				for x := xl; x <= xu; x++ {
					if at(x, y, mz+2) > val {
						ok = false
						break
					}
				}
			}
		}
		if ok {
			f.coords[3*w] = uint32(mx)
			f.coords[3*w+1] = uint32(my)
			f.coords[3*w+2] = uint32(mz)
			f.vals[w] = val
			w++
		}
	}
	f.n = w
	return nil
}

// maximaNxN refines the 3x3x3 candidates against the full n x n x n box,
// skipping the parts of the middle rows the core already verified.
func (f *Finder3D[T]) maximaNxN(d []T, boxsize int) error {
	if err := f.maxima3x3(d); err != nil {
		return err
	}
	if boxsize <= 3 {
		return errs.Logicalf("boxsize %d should not use the nxn refinement", boxsize)
	}
	k := (boxsize - 1) / 2
	sX, sY, sZ := int(f.size[0]), int(f.size[1]), int(f.size[2])
	sXY := sX * sY
	at := func(x, y, z int) T { return d[z*sXY+y*sX+x] }
	w := 0
	for n := 0; n < f.n; n++ {
		mx := int(f.coords[3*n])
		my := int(f.coords[3*n+1])
		mz := int(f.coords[3*n+2])
		val := f.vals[n]
		xl, xu := max(0, mx-k), min(sX-1, mx+k)
		yl, yu := max(0, my-k), min(sY-1, my+k)
		zl, zu := max(0, mz-k), min(sZ-1, mz+k)
		ok := true
	planes:
		for z := zl; z <= zu; z++ {
			for y := yl; y <= yu; y++ {
				if mz-1 <= z && z <= mz+1 && my-1 <= y && y <= my+1 { // inner 3x3x3 already verified
					for x := xl; x <= mx-2; x++ {
						if at(x, y, z) > val {
							ok = false
							break planes
						}
					}
					for x := mx + 2; x <= xu; x++ {
						if at(x, y, z) > val {
							ok = false
							break planes
						}
					}
				} else {
					for x := xl; x <= xu; x++ {
						if at(x, y, z) > val {
							ok = false
							break planes
						}
					}
				}
			}
		}
		if ok {
			f.coords[3*w] = uint32(mx)
			f.coords[3*w+1] = uint32(my)
			f.coords[3*w+2] = uint32(mz)
			f.vals[w] = val
			w++
		}
	}
	f.n = w
	return nil
}
