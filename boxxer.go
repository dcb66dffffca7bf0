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

// Package boxxer detects diffraction-limited Gaussian blobs in 2D and
// 3D image stacks. A scale-space of Laplacian-of-Gaussian or
// difference-of-Gaussian responses is computed per frame, strict local
// maxima are found per scale, and candidates dominated by a brighter
// response at any scale within a box neighborhood are rejected. Frames
// are processed in parallel by a worker pool sized from GOMAXPROCS and
// physical memory.
package boxxer

import (
	"github.com/mlnoga/boxxer/internal/errs"
)

type filterKind int

const (
	kindGauss filterKind = iota
	kindLoG
	kindDoG
)

// Error kinds returned by this module, for use with errors.Is.
var (
	ErrParameterValue = errs.ErrParameterValue
	ErrParameterShape = errs.ErrParameterShape
	ErrLogical        = errs.ErrLogical
	ErrNumerical      = errs.ErrNumerical
)

// combineFrameMaxima merges per-frame maxima tables into a global one.
// Each input column has inRows coordinate rows, of which the first
// keepRows are retained; a trailing row holding the frame index is
// appended. Values follow unchanged.
func combineFrameMaxima[T any](frameCoords [][]uint32, frameVals [][]T, inRows, keepRows int) ([]uint32, []T) {
	total := 0
	for _, v := range frameVals {
		total += len(v)
	}
	coords := make([]uint32, 0, total*(keepRows+1))
	vals := make([]T, 0, total)
	if total == 0 { // no frame contributes any rows to copy
		return coords, vals
	}
	for n, v := range frameVals {
		c := frameCoords[n]
		for i := range v {
			coords = append(coords, c[i*inRows:i*inRows+keepRows]...)
			coords = append(coords, uint32(n))
		}
		vals = append(vals, v...)
	}
	return coords, vals
}
