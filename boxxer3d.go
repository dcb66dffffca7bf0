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

// Boxxer3D orchestrates scale-space blob detection on stacks of 3D
// volumes. Scale sigmas are fixed at construction; each worker builds
// its own filter and finder objects, so the orchestrator itself is safe
// for concurrent use.
type Boxxer3D[T img.Float] struct {
	imsize     []uint32
	sigma      [][]T // 3 rows x nScales columns
	nScales    int
	sigmaRatio T
}

// New3D builds an orchestrator for volumes of size imsize. sigma holds
// one row per axis and one column per scale.
func New3D[T img.Float](imsize []uint32, sigma [][]T) (*Boxxer3D[T], error) {
	if len(imsize) != 3 {
		return nil, errs.Shapef("volume size has %d dimensions, want 3", len(imsize))
	}
	for i, s := range imsize {
		if s == 0 {
			return nil, errs.Valuef("volume dimension %d is zero", i)
		}
	}
	if len(sigma) != 3 {
		return nil, errs.Shapef("sigma has %d rows, want 3", len(sigma))
	}
	nScales := len(sigma[0])
	if nScales < 1 {
		return nil, errs.Valuef("sigma must have at least one scale column")
	}
	for r := range sigma {
		if len(sigma[r]) != nScales {
			return nil, errs.Shapef("sigma row %d has %d columns, want %d", r, len(sigma[r]), nScales)
		}
		for s, v := range sigma[r] {
			if v <= 0 {
				return nil, errs.Valuef("sigma[%d][%d]=%v must be positive", r, s, v)
			}
		}
	}
	b := &Boxxer3D[T]{
		imsize:     append([]uint32(nil), imsize...),
		nScales:    nScales,
		sigmaRatio: T(filter.DefaultDoGSigmaRatio),
	}
	b.sigma = make([][]T, 3)
	for r := range sigma {
		b.sigma[r] = append([]T(nil), sigma[r]...)
	}
	return b, nil
}

// NScales returns the number of scales.
func (b *Boxxer3D[T]) NScales() int { return b.nScales }

// SetDoGSigmaRatio sets the inhibitory-to-excitatory sigma ratio used
// by the DoG operations. The ratio must exceed 1.
func (b *Boxxer3D[T]) SetDoGSigmaRatio(ratio T) error {
	if ratio <= 1 {
		return errs.Valuef("DoG sigma ratio %v must exceed 1", ratio)
	}
	b.sigmaRatio = ratio
	return nil
}

func (b *Boxxer3D[T]) scaleSigma(s int) []T {
	return []T{b.sigma[0][s], b.sigma[1][s], b.sigma[2][s]}
}

func (b *Boxxer3D[T]) voxels() int {
	return int(b.imsize[0]) * int(b.imsize[1]) * int(b.imsize[2])
}

func (b *Boxxer3D[T]) checkStack(stack *img.Image[T]) (int, error) {
	if len(stack.Dims) != 4 || stack.Dims[0] != b.imsize[0] || stack.Dims[1] != b.imsize[1] || stack.Dims[2] != b.imsize[2] {
		return 0, errs.Shapef("stack shape %v does not match volume size %v", stack.Dims, b.imsize)
	}
	return int(stack.Dims[3]), nil
}

func (b *Boxxer3D[T]) makeFilters(kind filterKind) ([]filter.Filter[T], error) {
	filters := make([]filter.Filter[T], b.nScales)
	for s := 0; s < b.nScales; s++ {
		var f filter.Filter[T]
		var err error
		switch kind {
		case kindLoG:
			f, err = filter.NewLoG3D(b.imsize, b.scaleSigma(s))
		case kindDoG:
			var d *filter.DoG3D[T]
			d, err = filter.NewDoG3D(b.imsize, b.scaleSigma(s))
			if err == nil {
				err = d.SetSigmaRatio(b.sigmaRatio)
			}
			f = d
		default:
			f, err = filter.NewGauss3D(b.imsize, b.scaleSigma(s))
		}
		if err != nil {
			return nil, err
		}
		filters[s] = f
	}
	return filters, nil
}

// FilterScaledLoG filters every volume of stack at every scale into
// scaled, whose shape must be [x, y, z, nScales, nFrames].
func (b *Boxxer3D[T]) FilterScaledLoG(stack, scaled *img.Image[T]) error {
	return b.filterScaled(stack, scaled, kindLoG)
}

// FilterScaledDoG is FilterScaledLoG with difference-of-Gaussian
// responses.
func (b *Boxxer3D[T]) FilterScaledDoG(stack, scaled *img.Image[T]) error {
	return b.filterScaled(stack, scaled, kindDoG)
}

func (b *Boxxer3D[T]) filterScaled(stack, scaled *img.Image[T], kind filterKind) error {
	nT, err := b.checkStack(stack)
	if err != nil {
		return err
	}
	if len(scaled.Dims) != 5 || scaled.Dims[0] != b.imsize[0] || scaled.Dims[1] != b.imsize[1] ||
		scaled.Dims[2] != b.imsize[2] || int(scaled.Dims[3]) != b.nScales || int(scaled.Dims[4]) != nT {
		return errs.Shapef("scaled shape %v does not match [%d %d %d %d %d]",
			scaled.Dims, b.imsize[0], b.imsize[1], b.imsize[2], b.nScales, nT)
	}
	nW := poolSize(uint64(b.voxels()) * uint64(3*b.nScales) * 8)
	return parallelFrames(nT, nW, func(frames <-chan int) error {
		filters, err := b.makeFilters(kind)
		if err != nil {
			return err
		}
		for n := range frames {
			in, err := stack.Frame(uint32(n))
			if err != nil {
				return err
			}
			cube, err := scaled.Frame(uint32(n))
			if err != nil {
				return err
			}
			for s := 0; s < b.nScales; s++ {
				out, err := cube.Frame(uint32(s))
				if err != nil {
					return err
				}
				if err := filters[s].Apply(in, out); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ScaleSpaceLoGMaxima runs LoG scale-space detection over all volumes.
// The returned coordinate table has rows [x, y, z, frame] stored
// column-major, with one column per detected blob.
func (b *Boxxer3D[T]) ScaleSpaceLoGMaxima(stack *img.Image[T], neighborhood, scaleNeighborhood int) ([]uint32, []T, error) {
	return b.scaleSpaceMaxima(stack, neighborhood, scaleNeighborhood, kindLoG)
}

// ScaleSpaceDoGMaxima is ScaleSpaceLoGMaxima with difference-of-Gaussian
// responses.
func (b *Boxxer3D[T]) ScaleSpaceDoGMaxima(stack *img.Image[T], neighborhood, scaleNeighborhood int) ([]uint32, []T, error) {
	return b.scaleSpaceMaxima(stack, neighborhood, scaleNeighborhood, kindDoG)
}

func (b *Boxxer3D[T]) scaleSpaceMaxima(stack *img.Image[T], neighborhood, scaleNeighborhood int, kind filterKind) ([]uint32, []T, error) {
	nT, err := b.checkStack(stack)
	if err != nil {
		return nil, nil, err
	}
	if scaleNeighborhood < 1 || scaleNeighborhood%2 == 0 {
		return nil, nil, errs.Valuef("scale neighborhood %d must be odd and positive", scaleNeighborhood)
	}
	frameCoords := make([][]uint32, nT)
	frameVals := make([][]T, nT)
	nW := poolSize(uint64(b.voxels()) * uint64(3*b.nScales+1) * 8)
	err = parallelFrames(nT, nW, func(frames <-chan int) error {
		filters, err := b.makeFilters(kind)
		if err != nil {
			return err
		}
		finder, err := maxima.NewFinder3D[T](b.imsize, neighborhood)
		if err != nil {
			return err
		}
		cube, err := img.New[T]([]uint32{b.imsize[0], b.imsize[1], b.imsize[2], uint32(b.nScales)})
		if err != nil {
			return err
		}
		for n := range frames {
			in, err := stack.Frame(uint32(n))
			if err != nil {
				return err
			}
			for s := 0; s < b.nScales; s++ {
				out, err := cube.Frame(uint32(s))
				if err != nil {
					return err
				}
				if err := filters[s].Apply(in, out); err != nil {
					return err
				}
			}
			coords, vals, err := b.frameMaxima(cube, finder, scaleNeighborhood)
			if err != nil {
				return err
			}
			frameCoords[n], frameVals[n] = coords, vals
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	coords, vals := combineFrameMaxima(frameCoords, frameVals, 4, 3)
	return coords, vals, nil
}

// frameMaxima finds the per-scale maxima of one volume's scale cube and
// rejects candidates dominated within the scale neighborhood box at any
// scale. Columns come back as [x, y, z, scale].
func (b *Boxxer3D[T]) frameMaxima(cube *img.Image[T], finder *maxima.Finder3D[T], scaleNeighborhood int) ([]uint32, []T, error) {
	var coords []uint32
	var vals []T
	for s := 0; s < b.nScales; s++ {
		vol, err := cube.Frame(uint32(s))
		if err != nil {
			return nil, nil, err
		}
		c, v, err := finder.Find(vol)
		if err != nil {
			return nil, nil, err
		}
		for i := range v {
			coords = append(coords, c[3*i], c[3*i+1], c[3*i+2], uint32(s))
			vals = append(vals, v[i])
		}
	}
	return b.frameMaximaRefine(cube, coords, vals, scaleNeighborhood)
}

func (b *Boxxer3D[T]) frameMaximaRefine(cube *img.Image[T], coords []uint32, vals []T, scaleNeighborhood int) ([]uint32, []T, error) {
	delta := (scaleNeighborhood - 1) / 2
	sX, sY, sZ := int(b.imsize[0]), int(b.imsize[1]), int(b.imsize[2])
	sXY := sX * sY
	d := cube.Data
	w := 0
	for n := range vals {
		mx, my, mz := int(coords[4*n]), int(coords[4*n+1]), int(coords[4*n+2])
		v := vals[n]
		ok := true
	scales:
		for s := 0; s < b.nScales; s++ {
			vol := d[s*sXY*sZ:]
			for k := max(0, mz-delta); k <= min(sZ-1, mz+delta); k++ {
				plane := vol[k*sXY:]
				for j := max(0, my-delta); j <= min(sY-1, my+delta); j++ {
					row := plane[j*sX:]
					for i := max(0, mx-delta); i <= min(sX-1, mx+delta); i++ {
						if row[i] > v {
							ok = false
							break scales
						}
					}
				}
			}
		}
		if ok {
			copy(coords[4*w:4*w+4], coords[4*n:4*n+4])
			vals[w] = v
			w++
		}
	}
	return coords[:4*w], vals[:w], nil
}
