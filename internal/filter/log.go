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

package filter

import (
	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/kernels"
)

// LoG2D computes a scale-normalized Laplacian of Gaussian as the sum of
// two separable terms, LoGx*Gy + Gx*LoGy.
type LoG2D[T img.Float] struct {
	*common[T]
	gX, gY     []T
	logX, logY []T
}

// NewLoG2D builds a Laplacian-of-Gaussian filter for images of the
// given size.
func NewLoG2D[T img.Float](size []uint32, sigma []T) (*LoG2D[T], error) {
	c, err := newCommon(2, size, sigma, 2)
	if err != nil {
		return nil, err
	}
	f := &LoG2D[T]{common: c}
	if err := f.SetKernelHW(c.hw); err != nil {
		return nil, err
	}
	return f, nil
}

// SetKernelHW rebuilds the Gaussian and LoG kernels with the given
// per-axis half-widths.
func (f *LoG2D[T]) SetKernelHW(hw []int) error {
	if err := f.checkHW(hw); err != nil {
		return err
	}
	gX, err := kernels.GaussHalfKernel(f.sigma[0], hw[0])
	if err != nil {
		return err
	}
	gY, err := kernels.GaussHalfKernel(f.sigma[1], hw[1])
	if err != nil {
		return err
	}
	logX, err := kernels.LoGHalfKernel(f.sigma[0], hw[0], kernels.LogZeroSum)
	if err != nil {
		return err
	}
	logY, err := kernels.LoGHalfKernel(f.sigma[1], hw[1], kernels.LogZeroSum)
	if err != nil {
		return err
	}
	f.gX, f.gY, f.logX, f.logY = gX, gY, logX, logY
	copy(f.hw, hw)
	return nil
}

// Apply filters in into out. Both must match the constructed size.
func (f *LoG2D[T]) Apply(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy := int(f.size[0]), int(f.size[1])
	if err := kernels.FIR2DY(in.Data, f.buf0, f.logY, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DX(f.buf0, out.Data, f.gX, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DY(in.Data, f.buf0, f.gY, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DX(f.buf0, f.buf1, f.logX, sx, sy); err != nil {
		return err
	}
	addTo(out.Data, f.buf1)
	return nil
}

func (f *LoG2D[T]) applySmall(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy := int(f.size[0]), int(f.size[1])
	if err := kernels.FIR2DYSmall(in.Data, f.buf0, f.logY, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DXSmall(f.buf0, out.Data, f.gX, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DYSmall(in.Data, f.buf0, f.gY, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DXSmall(f.buf0, f.buf1, f.logX, sx, sy); err != nil {
		return err
	}
	addTo(out.Data, f.buf1)
	return nil
}

// LoG3D computes a 3D scale-normalized Laplacian of Gaussian as the sum
// of three separable terms, folded through two scratch buffers.
type LoG3D[T img.Float] struct {
	*common[T]
	gX, gY, gZ       []T
	logX, logY, logZ []T
}

// NewLoG3D builds a Laplacian-of-Gaussian filter for volumes of the
// given size.
func NewLoG3D[T img.Float](size []uint32, sigma []T) (*LoG3D[T], error) {
	c, err := newCommon(3, size, sigma, 2)
	if err != nil {
		return nil, err
	}
	f := &LoG3D[T]{common: c}
	if err := f.SetKernelHW(c.hw); err != nil {
		return nil, err
	}
	return f, nil
}

// SetKernelHW rebuilds the Gaussian and LoG kernels with the given
// per-axis half-widths.
func (f *LoG3D[T]) SetKernelHW(hw []int) error {
	if err := f.checkHW(hw); err != nil {
		return err
	}
	var err error
	g := make([][]T, 3)
	lg := make([][]T, 3)
	for i := 0; i < 3; i++ {
		if g[i], err = kernels.GaussHalfKernel(f.sigma[i], hw[i]); err != nil {
			return err
		}
		if lg[i], err = kernels.LoGHalfKernel(f.sigma[i], hw[i], kernels.LogZeroSum); err != nil {
			return err
		}
	}
	f.gX, f.gY, f.gZ = g[0], g[1], g[2]
	f.logX, f.logY, f.logZ = lg[0], lg[1], lg[2]
	copy(f.hw, hw)
	return nil
}

// Apply filters in into out. Both must match the constructed size.
// The Gz result is shared between the first two terms, so the pass over
// the input runs only twice.
func (f *LoG3D[T]) Apply(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy, sz := int(f.size[0]), int(f.size[1]), int(f.size[2])
	if err := kernels.FIR3DZ(in.Data, f.buf0, f.gZ, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DY(f.buf0, f.buf1, f.gY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DX(f.buf1, out.Data, f.logX, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DY(f.buf0, f.buf1, f.logY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DX(f.buf1, f.buf0, f.gX, sx, sy, sz); err != nil {
		return err
	}
	addTo(out.Data, f.buf0)
	if err := kernels.FIR3DZ(in.Data, f.buf0, f.logZ, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DY(f.buf0, f.buf1, f.gY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DX(f.buf1, f.buf0, f.gX, sx, sy, sz); err != nil {
		return err
	}
	addTo(out.Data, f.buf0)
	return nil
}

func (f *LoG3D[T]) applySmall(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy, sz := int(f.size[0]), int(f.size[1]), int(f.size[2])
	if err := kernels.FIR3DZSmall(in.Data, f.buf0, f.gZ, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DYSmall(f.buf0, f.buf1, f.gY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DXSmall(f.buf1, out.Data, f.logX, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DYSmall(f.buf0, f.buf1, f.logY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DXSmall(f.buf1, f.buf0, f.gX, sx, sy, sz); err != nil {
		return err
	}
	addTo(out.Data, f.buf0)
	if err := kernels.FIR3DZSmall(in.Data, f.buf0, f.logZ, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DYSmall(f.buf0, f.buf1, f.gY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DXSmall(f.buf1, f.buf0, f.gX, sx, sy, sz); err != nil {
		return err
	}
	addTo(out.Data, f.buf0)
	return nil
}
