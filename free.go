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
	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
	"github.com/mlnoga/boxxer/internal/filter"
	"github.com/mlnoga/boxxer/internal/maxima"
)

// One-shot filtering of full stacks, without an orchestrator handle.
// Stacks are [x, y, nFrames] for 2D and [x, y, z, nFrames] for 3D, and
// outputs must match the input shape.

func checkStackShapes[T img.Float](stack, out *img.Image[T], d int) ([]uint32, int, error) {
	if len(stack.Dims) != d+1 {
		return nil, 0, errs.Shapef("stack has %d dimensions, want %d", len(stack.Dims), d+1)
	}
	if !stack.SameShape(out) {
		return nil, 0, errs.Shapef("output shape %v does not match stack shape %v", out.Dims, stack.Dims)
	}
	return stack.Dims[:d], int(stack.Dims[d]), nil
}

func filterStack[T img.Float](stack, out *img.Image[T], d int, mk func(size []uint32) (filter.Filter[T], error)) error {
	size, nT, err := checkStackShapes(stack, out, d)
	if err != nil {
		return err
	}
	frameSize := 1
	for _, s := range size {
		frameSize *= int(s)
	}
	nW := poolSize(uint64(frameSize) * 3 * 8)
	return parallelFrames(nT, nW, func(frames <-chan int) error {
		f, err := mk(size)
		if err != nil {
			return err
		}
		for n := range frames {
			in, err := stack.Frame(uint32(n))
			if err != nil {
				return err
			}
			o, err := out.Frame(uint32(n))
			if err != nil {
				return err
			}
			if err := f.Apply(in, o); err != nil {
				return err
			}
		}
		return nil
	})
}

// FilterGauss2D applies a Gaussian with per-axis sigmas to every frame.
func FilterGauss2D[T img.Float](stack, out *img.Image[T], sigma []T) error {
	return filterStack(stack, out, 2, func(size []uint32) (filter.Filter[T], error) {
		return filter.NewGauss2D(size, sigma)
	})
}

// FilterLoG2D applies a Laplacian of Gaussian to every frame.
func FilterLoG2D[T img.Float](stack, out *img.Image[T], sigma []T) error {
	return filterStack(stack, out, 2, func(size []uint32) (filter.Filter[T], error) {
		return filter.NewLoG2D(size, sigma)
	})
}

// FilterDoG2D applies a difference of Gaussians with the given sigma
// ratio to every frame.
func FilterDoG2D[T img.Float](stack, out *img.Image[T], sigma []T, sigmaRatio T) error {
	return filterStack(stack, out, 2, func(size []uint32) (filter.Filter[T], error) {
		f, err := filter.NewDoG2D(size, sigma)
		if err != nil {
			return nil, err
		}
		if err := f.SetSigmaRatio(sigmaRatio); err != nil {
			return nil, err
		}
		return f, nil
	})
}

// FilterGauss3D applies a Gaussian with per-axis sigmas to every volume.
func FilterGauss3D[T img.Float](stack, out *img.Image[T], sigma []T) error {
	return filterStack(stack, out, 3, func(size []uint32) (filter.Filter[T], error) {
		return filter.NewGauss3D(size, sigma)
	})
}

// FilterLoG3D applies a Laplacian of Gaussian to every volume.
func FilterLoG3D[T img.Float](stack, out *img.Image[T], sigma []T) error {
	return filterStack(stack, out, 3, func(size []uint32) (filter.Filter[T], error) {
		return filter.NewLoG3D(size, sigma)
	})
}

// FilterDoG3D applies a difference of Gaussians with the given sigma
// ratio to every volume.
func FilterDoG3D[T img.Float](stack, out *img.Image[T], sigma []T, sigmaRatio T) error {
	return filterStack(stack, out, 3, func(size []uint32) (filter.Filter[T], error) {
		f, err := filter.NewDoG3D(size, sigma)
		if err != nil {
			return nil, err
		}
		if err := f.SetSigmaRatio(sigmaRatio); err != nil {
			return nil, err
		}
		return f, nil
	})
}

// EnumerateImageMaxima2D finds the strict neighborhood maxima of every
// frame of a [x, y, nFrames] stack in parallel. The returned table has
// rows [x, y, frame].
func EnumerateImageMaxima2D[T img.Float](stack *img.Image[T], neighborhood int) ([]uint32, []T, error) {
	if len(stack.Dims) != 3 {
		return nil, nil, errs.Shapef("stack has %d dimensions, want 3", len(stack.Dims))
	}
	size := stack.Dims[:2]
	nT := int(stack.Dims[2])
	frameCoords := make([][]uint32, nT)
	frameVals := make([][]T, nT)
	nW := poolSize(0)
	err := parallelFrames(nT, nW, func(frames <-chan int) error {
		finder, err := maxima.NewFinder2D[T](size, neighborhood)
		if err != nil {
			return err
		}
		for n := range frames {
			frame, err := stack.Frame(uint32(n))
			if err != nil {
				return err
			}
			c, v, err := finder.Find(frame)
			if err != nil {
				return err
			}
			frameCoords[n], frameVals[n] = c, v
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	coords, vals := combineFrameMaxima(frameCoords, frameVals, 2, 2)
	return coords, vals, nil
}

// EnumerateImageMaxima3D finds the strict neighborhood maxima of every
// volume of a [x, y, z, nFrames] stack in parallel. The returned table
// has rows [x, y, z, frame].
func EnumerateImageMaxima3D[T img.Float](stack *img.Image[T], neighborhood int) ([]uint32, []T, error) {
	if len(stack.Dims) != 4 {
		return nil, nil, errs.Shapef("stack has %d dimensions, want 4", len(stack.Dims))
	}
	size := stack.Dims[:3]
	nT := int(stack.Dims[3])
	frameCoords := make([][]uint32, nT)
	frameVals := make([][]T, nT)
	nW := poolSize(0)
	err := parallelFrames(nT, nW, func(frames <-chan int) error {
		finder, err := maxima.NewFinder3D[T](size, neighborhood)
		if err != nil {
			return err
		}
		for n := range frames {
			vol, err := stack.Frame(uint32(n))
			if err != nil {
				return err
			}
			c, v, err := finder.Find(vol)
			if err != nil {
				return err
			}
			frameCoords[n], frameVals[n] = c, v
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	coords, vals := combineFrameMaxima(frameCoords, frameVals, 3, 3)
	return coords, vals, nil
}
