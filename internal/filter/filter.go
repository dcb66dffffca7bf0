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

// Package filter provides separable Gaussian, difference-of-Gaussian and
// Laplacian-of-Gaussian filters for 2D images and 3D volumes. A filter
// object owns its kernels and scratch buffers and is not safe for
// concurrent use; build one per worker.
package filter

import (
	"math"

	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// DefaultSigmaHWRatio sets the default kernel half-width as a multiple
// of sigma, hw = ceil(ratio*sigma). Adjustable via the settings file.
var DefaultSigmaHWRatio = 3.0

// DefaultDoGSigmaRatio is the default ratio of inhibitory to excitatory
// sigma for difference-of-Gaussian filters.
var DefaultDoGSigmaRatio = 1.1

// Filter is the common surface of all filter objects.
type Filter[T img.Float] interface {
	Apply(in, out *img.Image[T]) error
	SetKernelHW(hw []int) error
}

// common holds the shape and scratch state shared by every filter.
type common[T img.Float] struct {
	size  []uint32
	sigma []T
	hw    []int
	buf0  []T
	buf1  []T
}

func newCommon[T img.Float](dim int, size []uint32, sigma []T, nbufs int) (*common[T], error) {
	if len(size) != dim {
		return nil, errs.Shapef("image size has %d dimensions, want %d", len(size), dim)
	}
	if len(sigma) != dim {
		return nil, errs.Shapef("sigma has %d dimensions, want %d", len(sigma), dim)
	}
	n := 1
	for i, s := range size {
		if s == 0 {
			return nil, errs.Valuef("image dimension %d is zero", i)
		}
		n *= int(s)
	}
	for i, s := range sigma {
		if s <= 0 {
			return nil, errs.Valuef("sigma[%d]=%v must be positive", i, s)
		}
	}
	c := &common[T]{
		size:  append([]uint32(nil), size...),
		sigma: append([]T(nil), sigma...),
		hw:    make([]int, dim),
	}
	for i, s := range sigma {
		c.hw[i] = int(math.Ceil(DefaultSigmaHWRatio * float64(s)))
		if c.hw[i] < 1 {
			c.hw[i] = 1
		}
	}
	c.buf0 = make([]T, n)
	if nbufs > 1 {
		c.buf1 = make([]T, n)
	}
	return c, nil
}

func (c *common[T]) checkHW(hw []int) error {
	if len(hw) != len(c.size) {
		return errs.Shapef("kernel half-widths have %d dimensions, want %d", len(hw), len(c.size))
	}
	for i, h := range hw {
		if h < 1 {
			return errs.Valuef("kernel half-width[%d]=%d must be at least 1", i, h)
		}
	}
	return nil
}

func (c *common[T]) checkShapes(in, out *img.Image[T]) error {
	if len(in.Dims) != len(c.size) {
		return errs.Shapef("input has %d dimensions, want %d", len(in.Dims), len(c.size))
	}
	for i, s := range c.size {
		if in.Dims[i] != s {
			return errs.Shapef("input dimension %d is %d, want %d", i, in.Dims[i], s)
		}
	}
	if !in.SameShape(out) {
		return errs.Shapef("output shape %v does not match input shape %v", out.Dims, in.Dims)
	}
	return nil
}

func addTo[T img.Float](dst, src []T) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func subFrom[T img.Float](dst, src []T) {
	for i := range dst {
		dst[i] -= src[i]
	}
}
