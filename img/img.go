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

// Package img provides a generic dense image container shared by the
// filtering and maxima detection code. Pixels are stored column-major,
// i.e. axis 0 is the fastest varying dimension.
package img

import (
	"fmt"
	"math"

	"github.com/mlnoga/boxxer/internal/errs"
)

// Float is the element type constraint for all image and kernel data.
type Float interface {
	~float32 | ~float64
}

// Image is a dense d-dimensional image. Dims holds the size of each axis,
// with axis 0 varying fastest in Data.
type Image[T Float] struct {
	Dims []uint32
	Data []T
}

// New allocates a zeroed image of the given dimensions.
// All dimensions must be strictly positive.
func New[T Float](dims []uint32) (*Image[T], error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: image dimensions empty", errs.ErrParameterShape)
	}
	n := uint64(1)
	for i, d := range dims {
		if d == 0 {
			return nil, fmt.Errorf("%w: image dimension %d is zero", errs.ErrParameterValue, i)
		}
		n *= uint64(d)
	}
	return &Image[T]{Dims: append([]uint32(nil), dims...), Data: make([]T, n)}, nil
}

// Wrap builds an image header around existing data without copying.
// len(data) must equal the product of the dimensions.
func Wrap[T Float](dims []uint32, data []T) (*Image[T], error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: image dimensions empty", errs.ErrParameterShape)
	}
	n := uint64(1)
	for i, d := range dims {
		if d == 0 {
			return nil, fmt.Errorf("%w: image dimension %d is zero", errs.ErrParameterValue, i)
		}
		n *= uint64(d)
	}
	if uint64(len(data)) != n {
		return nil, fmt.Errorf("%w: data length %d does not match dimensions %v", errs.ErrParameterShape, len(data), dims)
	}
	return &Image[T]{Dims: append([]uint32(nil), dims...), Data: data}, nil
}

// Pixels returns the total number of pixels.
func (im *Image[T]) Pixels() int {
	n := 1
	for _, d := range im.Dims {
		n *= int(d)
	}
	return n
}

// SameShape reports whether two images have identical dimensions.
func (im *Image[T]) SameShape(other *Image[T]) bool {
	if len(im.Dims) != len(other.Dims) {
		return false
	}
	for i, d := range im.Dims {
		if d != other.Dims[i] {
			return false
		}
	}
	return true
}

// Frame returns a view of frame f of a stack whose last axis indexes frames.
// The returned image shares storage with the stack.
func (im *Image[T]) Frame(f uint32) (*Image[T], error) {
	nd := len(im.Dims)
	if nd < 2 {
		return nil, fmt.Errorf("%w: cannot take frame of %d-dimensional image", errs.ErrParameterShape, nd)
	}
	if f >= im.Dims[nd-1] {
		return nil, fmt.Errorf("%w: frame %d out of range [0,%d)", errs.ErrParameterValue, f, im.Dims[nd-1])
	}
	sz := 1
	for _, d := range im.Dims[:nd-1] {
		sz *= int(d)
	}
	return &Image[T]{
		Dims: append([]uint32(nil), im.Dims[:nd-1]...),
		Data: im.Data[int(f)*sz : (int(f)+1)*sz],
	}, nil
}

// Eps returns the machine epsilon of the element type.
func Eps[T Float]() T {
	if _, ok := any(T(0)).(float32); ok {
		return T(math.Float32frombits(0x34000000)) // 2^-23
	}
	return T(math.Float64frombits(0x3cb0000000000000)) // 2^-52
}
