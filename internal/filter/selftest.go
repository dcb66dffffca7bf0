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
)

type fastSmall[T img.Float] interface {
	Apply(in, out *img.Image[T]) error
	applySmall(in, out *img.Image[T]) error
}

// SelfTest runs a filter's fast and reference paths on the given image
// and returns ErrNumerical if any pixel differs by more than four
// machine epsilons relative to its magnitude.
func SelfTest[T img.Float](f fastSmall[T], in *img.Image[T]) error {
	fast, err := img.New[T](in.Dims)
	if err != nil {
		return err
	}
	small, err := img.New[T](in.Dims)
	if err != nil {
		return err
	}
	if err := f.Apply(in, fast); err != nil {
		return err
	}
	if err := f.applySmall(in, small); err != nil {
		return err
	}
	eps := 4 * img.Eps[T]()
	for i := range fast.Data {
		a, b := fast.Data[i], small.Data[i]
		d := a - b
		if d < 0 {
			d = -d
		}
		m := a
		if m < 0 {
			m = -m
		}
		if bb := b; bb < 0 {
			if -bb > m {
				m = -bb
			}
		} else if bb > m {
			m = bb
		}
		if m < 1 {
			m = 1
		}
		if d > eps*m {
			return errs.Numericalf("fast and reference paths disagree at pixel %d: %v vs %v", i, a, b)
		}
	}
	return nil
}
