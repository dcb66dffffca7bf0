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
	"github.com/mlnoga/boxxer/internal/errs"
	"github.com/mlnoga/boxxer/internal/kernels"
)

// DoG2D computes a difference of Gaussians, excitatory sigma minus
// inhibitory sigma*ratio, sharing one half-width per axis.
type DoG2D[T img.Float] struct {
	*common[T]
	ratio      T
	kexX, kexY []T
	kinX, kinY []T
}

// NewDoG2D builds a difference-of-Gaussian filter for images of the
// given size, with the default sigma ratio.
func NewDoG2D[T img.Float](size []uint32, sigma []T) (*DoG2D[T], error) {
	c, err := newCommon(2, size, sigma, 2)
	if err != nil {
		return nil, err
	}
	f := &DoG2D[T]{common: c, ratio: T(DefaultDoGSigmaRatio)}
	if err := f.SetKernelHW(c.hw); err != nil {
		return nil, err
	}
	return f, nil
}

// SetSigmaRatio changes the inhibitory-to-excitatory sigma ratio,
// which must exceed 1, and rebuilds the inhibitory kernels.
func (f *DoG2D[T]) SetSigmaRatio(ratio T) error {
	if ratio <= 1 {
		return errs.Valuef("DoG sigma ratio %v must exceed 1", ratio)
	}
	f.ratio = ratio
	return f.SetKernelHW(f.hw)
}

// SetKernelHW rebuilds both kernel pairs with the given half-widths.
func (f *DoG2D[T]) SetKernelHW(hw []int) error {
	if err := f.checkHW(hw); err != nil {
		return err
	}
	kexX, err := kernels.GaussHalfKernel(f.sigma[0], hw[0])
	if err != nil {
		return err
	}
	kexY, err := kernels.GaussHalfKernel(f.sigma[1], hw[1])
	if err != nil {
		return err
	}
	kinX, err := kernels.GaussHalfKernel(f.sigma[0]*f.ratio, hw[0])
	if err != nil {
		return err
	}
	kinY, err := kernels.GaussHalfKernel(f.sigma[1]*f.ratio, hw[1])
	if err != nil {
		return err
	}
	f.kexX, f.kexY, f.kinX, f.kinY = kexX, kexY, kinX, kinY
	copy(f.hw, hw)
	return nil
}

// Apply filters in into out. Both must match the constructed size.
func (f *DoG2D[T]) Apply(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy := int(f.size[0]), int(f.size[1])
	if err := kernels.FIR2DX(in.Data, f.buf0, f.kexX, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DY(f.buf0, out.Data, f.kexY, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DX(in.Data, f.buf0, f.kinX, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DY(f.buf0, f.buf1, f.kinY, sx, sy); err != nil {
		return err
	}
	subFrom(out.Data, f.buf1)
	return nil
}

func (f *DoG2D[T]) applySmall(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy := int(f.size[0]), int(f.size[1])
	if err := kernels.FIR2DXSmall(in.Data, f.buf0, f.kexX, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DYSmall(f.buf0, out.Data, f.kexY, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DXSmall(in.Data, f.buf0, f.kinX, sx, sy); err != nil {
		return err
	}
	if err := kernels.FIR2DYSmall(f.buf0, f.buf1, f.kinY, sx, sy); err != nil {
		return err
	}
	subFrom(out.Data, f.buf1)
	return nil
}

// DoG3D computes a 3D difference of Gaussians.
type DoG3D[T img.Float] struct {
	*common[T]
	ratio            T
	kexX, kexY, kexZ []T
	kinX, kinY, kinZ []T
}

// NewDoG3D builds a difference-of-Gaussian filter for volumes of the
// given size, with the default sigma ratio.
func NewDoG3D[T img.Float](size []uint32, sigma []T) (*DoG3D[T], error) {
	c, err := newCommon(3, size, sigma, 2)
	if err != nil {
		return nil, err
	}
	f := &DoG3D[T]{common: c, ratio: T(DefaultDoGSigmaRatio)}
	if err := f.SetKernelHW(c.hw); err != nil {
		return nil, err
	}
	return f, nil
}

// SetSigmaRatio changes the inhibitory-to-excitatory sigma ratio,
// which must exceed 1, and rebuilds the inhibitory kernels.
func (f *DoG3D[T]) SetSigmaRatio(ratio T) error {
	if ratio <= 1 {
		return errs.Valuef("DoG sigma ratio %v must exceed 1", ratio)
	}
	f.ratio = ratio
	return f.SetKernelHW(f.hw)
}

// SetKernelHW rebuilds both kernel triples with the given half-widths.
func (f *DoG3D[T]) SetKernelHW(hw []int) error {
	if err := f.checkHW(hw); err != nil {
		return err
	}
	var err error
	kex := make([][]T, 3)
	kin := make([][]T, 3)
	for i := 0; i < 3; i++ {
		if kex[i], err = kernels.GaussHalfKernel(f.sigma[i], hw[i]); err != nil {
			return err
		}
		if kin[i], err = kernels.GaussHalfKernel(f.sigma[i]*f.ratio, hw[i]); err != nil {
			return err
		}
	}
	f.kexX, f.kexY, f.kexZ = kex[0], kex[1], kex[2]
	f.kinX, f.kinY, f.kinZ = kin[0], kin[1], kin[2]
	copy(f.hw, hw)
	return nil
}

// Apply filters in into out. Both must match the constructed size.
func (f *DoG3D[T]) Apply(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy, sz := int(f.size[0]), int(f.size[1]), int(f.size[2])
	if err := kernels.FIR3DX(in.Data, f.buf0, f.kexX, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DY(f.buf0, f.buf1, f.kexY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DZ(f.buf1, out.Data, f.kexZ, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DX(in.Data, f.buf0, f.kinX, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DY(f.buf0, f.buf1, f.kinY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DZ(f.buf1, f.buf0, f.kinZ, sx, sy, sz); err != nil {
		return err
	}
	subFrom(out.Data, f.buf0)
	return nil
}

func (f *DoG3D[T]) applySmall(in, out *img.Image[T]) error {
	if err := f.checkShapes(in, out); err != nil {
		return err
	}
	sx, sy, sz := int(f.size[0]), int(f.size[1]), int(f.size[2])
	if err := kernels.FIR3DXSmall(in.Data, f.buf0, f.kexX, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DYSmall(f.buf0, f.buf1, f.kexY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DZSmall(f.buf1, out.Data, f.kexZ, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DXSmall(in.Data, f.buf0, f.kinX, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DYSmall(f.buf0, f.buf1, f.kinY, sx, sy, sz); err != nil {
		return err
	}
	if err := kernels.FIR3DZSmall(f.buf1, f.buf0, f.kinZ, sx, sy, sz); err != nil {
		return err
	}
	subFrom(out.Data, f.buf0)
	return nil
}
