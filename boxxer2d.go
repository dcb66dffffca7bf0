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

// Boxxer2D orchestrates scale-space blob detection on stacks of 2D
// frames. Scale sigmas are fixed at construction; each worker builds
// its own filter and finder objects, so the orchestrator itself is safe
// for concurrent use.
type Boxxer2D[T img.Float] struct {
	imsize     []uint32
	sigma      [][]T // 2 rows x nScales columns
	nScales    int
	sigmaRatio T
}

// New2D builds an orchestrator for frames of size imsize. sigma holds
// one row per axis and one column per scale.
func New2D[T img.Float](imsize []uint32, sigma [][]T) (*Boxxer2D[T], error) {
	if len(imsize) != 2 {
		return nil, errs.Shapef("image size has %d dimensions, want 2", len(imsize))
	}
	for i, s := range imsize {
		if s == 0 {
			return nil, errs.Valuef("image dimension %d is zero", i)
		}
	}
	if len(sigma) != 2 {
		return nil, errs.Shapef("sigma has %d rows, want 2", len(sigma))
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
	b := &Boxxer2D[T]{
		imsize:     append([]uint32(nil), imsize...),
		nScales:    nScales,
		sigmaRatio: T(filter.DefaultDoGSigmaRatio),
	}
	b.sigma = make([][]T, 2)
	for r := range sigma {
		b.sigma[r] = append([]T(nil), sigma[r]...)
	}
	return b, nil
}

// NScales returns the number of scales.
func (b *Boxxer2D[T]) NScales() int { return b.nScales }

// SetDoGSigmaRatio sets the inhibitory-to-excitatory sigma ratio used
// by the DoG operations. The ratio must exceed 1.
func (b *Boxxer2D[T]) SetDoGSigmaRatio(ratio T) error {
	if ratio <= 1 {
		return errs.Valuef("DoG sigma ratio %v must exceed 1", ratio)
	}
	b.sigmaRatio = ratio
	return nil
}

func (b *Boxxer2D[T]) scaleSigma(s int) []T {
	return []T{b.sigma[0][s], b.sigma[1][s]}
}

func (b *Boxxer2D[T]) pixels() int {
	return int(b.imsize[0]) * int(b.imsize[1])
}

func (b *Boxxer2D[T]) checkStack(stack *img.Image[T]) (int, error) {
	if len(stack.Dims) != 3 || stack.Dims[0] != b.imsize[0] || stack.Dims[1] != b.imsize[1] {
		return 0, errs.Shapef("stack shape %v does not match frame size %v", stack.Dims, b.imsize)
	}
	return int(stack.Dims[2]), nil
}

func (b *Boxxer2D[T]) makeFilters(kind filterKind) ([]filter.Filter[T], error) {
	filters := make([]filter.Filter[T], b.nScales)
	for s := 0; s < b.nScales; s++ {
		var f filter.Filter[T]
		var err error
		switch kind {
		case kindLoG:
			f, err = filter.NewLoG2D(b.imsize, b.scaleSigma(s))
		case kindDoG:
			var d *filter.DoG2D[T]
			d, err = filter.NewDoG2D(b.imsize, b.scaleSigma(s))
			if err == nil {
				err = d.SetSigmaRatio(b.sigmaRatio)
			}
			f = d
		default:
			f, err = filter.NewGauss2D(b.imsize, b.scaleSigma(s))
		}
		if err != nil {
			return nil, err
		}
		filters[s] = f
	}
	return filters, nil
}

// FilterScaledLoG filters every frame of stack at every scale into
// scaled, whose shape must be [x, y, nScales, nFrames].
func (b *Boxxer2D[T]) FilterScaledLoG(stack, scaled *img.Image[T]) error {
	return b.filterScaled(stack, scaled, kindLoG)
}

// FilterScaledDoG is FilterScaledLoG with difference-of-Gaussian
// responses.
func (b *Boxxer2D[T]) FilterScaledDoG(stack, scaled *img.Image[T]) error {
	return b.filterScaled(stack, scaled, kindDoG)
}

func (b *Boxxer2D[T]) filterScaled(stack, scaled *img.Image[T], kind filterKind) error {
	nT, err := b.checkStack(stack)
	if err != nil {
		return err
	}
	if len(scaled.Dims) != 4 || scaled.Dims[0] != b.imsize[0] || scaled.Dims[1] != b.imsize[1] ||
		int(scaled.Dims[2]) != b.nScales || int(scaled.Dims[3]) != nT {
		return errs.Shapef("scaled shape %v does not match [%d %d %d %d]",
			scaled.Dims, b.imsize[0], b.imsize[1], b.nScales, nT)
	}
	nW := poolSize(uint64(b.pixels()) * uint64(3*b.nScales) * 8)
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

// ScaleSpaceLoGMaxima runs LoG scale-space detection over all frames.
// The returned coordinate table has rows [x, y, frame] stored
// column-major, with one column per detected blob.
func (b *Boxxer2D[T]) ScaleSpaceLoGMaxima(stack *img.Image[T], neighborhood, scaleNeighborhood int) ([]uint32, []T, error) {
	return b.scaleSpaceMaxima(stack, neighborhood, scaleNeighborhood, kindLoG)
}

// ScaleSpaceDoGMaxima is ScaleSpaceLoGMaxima with difference-of-Gaussian
// responses.
func (b *Boxxer2D[T]) ScaleSpaceDoGMaxima(stack *img.Image[T], neighborhood, scaleNeighborhood int) ([]uint32, []T, error) {
	return b.scaleSpaceMaxima(stack, neighborhood, scaleNeighborhood, kindDoG)
}

func (b *Boxxer2D[T]) scaleSpaceMaxima(stack *img.Image[T], neighborhood, scaleNeighborhood int, kind filterKind) ([]uint32, []T, error) {
	nT, err := b.checkStack(stack)
	if err != nil {
		return nil, nil, err
	}
	if scaleNeighborhood < 1 || scaleNeighborhood%2 == 0 {
		return nil, nil, errs.Valuef("scale neighborhood %d must be odd and positive", scaleNeighborhood)
	}
	frameCoords := make([][]uint32, nT)
	frameVals := make([][]T, nT)
	nW := poolSize(uint64(b.pixels()) * uint64(3*b.nScales+1) * 8)
	err = parallelFrames(nT, nW, func(frames <-chan int) error {
		filters, err := b.makeFilters(kind)
		if err != nil {
			return err
		}
		finder, err := maxima.NewFinder2D[T](b.imsize, neighborhood)
		if err != nil {
			return err
		}
		cube, err := img.New[T]([]uint32{b.imsize[0], b.imsize[1], uint32(b.nScales)})
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
	coords, vals := combineFrameMaxima(frameCoords, frameVals, 3, 2)
	return coords, vals, nil
}

// frameMaxima finds the per-scale maxima of one frame's scale cube and
// rejects candidates dominated within the scale neighborhood box at any
// scale. Columns come back as [x, y, scale].
func (b *Boxxer2D[T]) frameMaxima(cube *img.Image[T], finder *maxima.Finder2D[T], scaleNeighborhood int) ([]uint32, []T, error) {
	var coords []uint32
	var vals []T
	for s := 0; s < b.nScales; s++ {
		plane, err := cube.Frame(uint32(s))
		if err != nil {
			return nil, nil, err
		}
		c, v, err := finder.Find(plane)
		if err != nil {
			return nil, nil, err
		}
		for i := range v {
			coords = append(coords, c[2*i], c[2*i+1], uint32(s))
			vals = append(vals, v[i])
		}
	}
	return b.frameMaximaRefine(cube, coords, vals, scaleNeighborhood)
}

func (b *Boxxer2D[T]) frameMaximaRefine(cube *img.Image[T], coords []uint32, vals []T, scaleNeighborhood int) ([]uint32, []T, error) {
	delta := (scaleNeighborhood - 1) / 2
	sX, sY := int(b.imsize[0]), int(b.imsize[1])
	d := cube.Data
	w := 0
	for n := range vals {
		mx, my := int(coords[3*n]), int(coords[3*n+1])
		v := vals[n]
		ok := true
	scales:
		for s := 0; s < b.nScales; s++ {
			plane := d[s*sX*sY:]
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
		if ok {
			copy(coords[3*w:3*w+3], coords[3*n:3*n+3])
			vals[w] = v
			w++
		}
	}
	return coords[:3*w], vals[:w], nil
}
