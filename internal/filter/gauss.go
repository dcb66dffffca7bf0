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

// Gauss2D applies a separable 2D Gaussian with per-axis sigmas.
type Gauss2D[T img.Float] struct {
	*common[T]
	kx, ky []T
}

// NewGauss2D builds a Gaussian filter for images of the given size.
func NewGauss2D[T img.Float](size []uint32, sigma []T) (*Gauss2D[T], error) {
	c, err := newCommon(2, size, sigma, 1)
	if err != nil {
		return nil, err
	}
	f := &Gauss2D[T]{common: c}
	if err := f.SetKernelHW(c.hw); err != nil {
		return nil, err
	}
	return f, nil
}

// SetKernelHW rebuilds the kernels with the given per-axis half-widths.
func (f *Gauss2D[T]) SetKernelHW(hw []int) error {
	if err := f.checkHW(hw); err != nil {
		return err
	}
	kx, err := kernels.GaussHalfKernel(f.sigma[0], hw[0])
	if err != nil {
		return err
	}
	ky, err := kernels.GaussHalfKernel(f.sigma[1], hw[1])
	if err != nil {
		return err
	}
	f.kx, f.ky = kx, ky
	copy(f.hw, hw)
	return nil
}

// Apply filters in into out. Both must match the constructed size.
func (f *Gauss2D[T]) Apply(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy := int(f.size[0]), int(f.size[1])
	if err := kernels.FIR2DX(in.Data, f.buf0, f.kx, sx, sy); err != nil {
		return err
	}
	return kernels.FIR2DY(f.buf0, out.Data, f.ky, sx, sy)
}

func (f *Gauss2D[T]) applySmall(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy := int(f.size[0]), int(f.size[1])
	if err := kernels.FIR2DXSmall(in.Data, f.buf0, f.kx, sx, sy); err != nil {
		return err
	}
	return kernels.FIR2DYSmall(f.buf0, out.Data, f.ky, sx, sy)
}

// Gauss3D applies a separable 3D Gaussian with per-axis sigmas.
type Gauss3D[T img.Float] struct {
	*common[T]
	kx, ky, kz []T
}

// NewGauss3D builds a Gaussian filter for volumes of the given size.
func NewGauss3D[T img.Float](size []uint32, sigma []T) (*Gauss3D[T], error) {
	c, err := newCommon(3, size, sigma, 2)
	if err != nil {
		return nil, err
	}
	f := &Gauss3D[T]{common: c}
	if err := f.SetKernelHW(c.hw); err != nil {
		return nil, err
	}
	return f, nil
}

// SetKernelHW rebuilds the kernels with the given per-axis half-widths.
func (f *Gauss3D[T]) SetKernelHW(hw []int) error {
	if err := f.checkHW(hw); err != nil {
		return err
	}
	kx, err := kernels.GaussHalfKernel(f.sigma[0], hw[0])
	if err != nil {
		return err
	}
	ky, err := kernels.GaussHalfKernel(f.sigma[1], hw[1])
	if err != nil {
		return err
	}
	kz, err := kernels.GaussHalfKernel(f.sigma[2], hw[2])
	if err != nil {
		return err
	}
	f.kx, f.ky, f.kz = kx, ky, kz
	copy(f.hw, hw)
	return nil
}

// Apply filters in into out. Both must match the constructed size.
func (f *Gauss3D[T]) Apply(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy, sz := int(f.size[0]), int(f.size[1]), int(f.size[2])
	if err := kernels.FIR3DX(in.Data, f.buf0, f.kx, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DY(f.buf0, f.buf1, f.ky, sx, sy, sz); err != nil {
		return err
	}
	return kernels.FIR3DZ(f.buf1, out.Data, f.kz, sx, sy, sz)
}

func (f *Gauss3D[T]) applySmall(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy, sz := int(f.size[0]), int(f.size[1]), int(f.size[2])
	if err := kernels.FIR3DXSmall(in.Data, f.buf0, f.kx, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DYSmall(f.buf0, f.buf1, f.ky, sx, sy, sz); err != nil {
		return err
	}
	return kernels.FIR3DZSmall(f.buf1, out.Data, f.kz, sx, sy, sz)
}
