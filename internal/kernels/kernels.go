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

// Package kernels builds symmetric FIR half-kernels and applies them
// along individual axes of 1D, 2D and 3D column-major data.
package kernels

import (
	"math"

	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// MaxKernelHW caps the half-width of any generated kernel.
// Adjustable via the settings file.
var MaxKernelHW = 64

// LogZeroSum enables the zero-sum correction for LoG kernels, so that a
// constant input filters to exactly zero at the cost of slightly biased
// coefficients.
var LogZeroSum = false

// GaussHalfKernel returns the half-kernel k[0..hw] of a sampled Gaussian
// with standard deviation sigma, normalized so that the implied full
// kernel sums to one: k[0] + 2*sum(k[1..hw]) == 1.
func GaussHalfKernel[T img.Float](sigma T, hw int) ([]T, error) {
	if sigma <= 0 {
		return nil, errs.Valuef("gauss kernel sigma %v must be positive", sigma)
	}
	if hw < 1 {
		return nil, errs.Valuef("gauss kernel half-width %d must be at least 1", hw)
	}
	if hw > MaxKernelHW {
		return nil, errs.Valuef("gauss kernel half-width %d exceeds maximum %d", hw, MaxKernelHW)
	}
	s := float64(sigma)
	tmp := make([]float64, hw+1)
	sum := 0.0
	for r := 0; r <= hw; r++ {
		v := math.Exp(-float64(r) * float64(r) / (2 * s * s))
		tmp[r] = v
		if r == 0 {
			sum += v
		} else {
			sum += 2 * v
		}
	}
	k := make([]T, hw+1)
	for r := 0; r <= hw; r++ {
		k[r] = T(tmp[r] / sum)
	}
	return k, nil
}

// LoGHalfKernel returns the half-kernel of a scale-normalized Laplacian
// of Gaussian, k[r] = N*(1 - r^2/sigma^2)*exp(-r^2/(2 sigma^2)) with
// N = 1/(sigma^2 sqrt(2 pi)). If zeroSum is set, the mean of the implied
// full kernel is subtracted from every coefficient.
func LoGHalfKernel[T img.Float](sigma T, hw int, zeroSum bool) ([]T, error) {
	if sigma <= 0 {
		return nil, errs.Valuef("LoG kernel sigma %v must be positive", sigma)
	}
	if hw < 1 {
		return nil, errs.Valuef("LoG kernel half-width %d must be at least 1", hw)
	}
	if hw > MaxKernelHW {
		return nil, errs.Valuef("LoG kernel half-width %d exceeds maximum %d", hw, MaxKernelHW)
	}
	s := float64(sigma)
	norm := 1.0 / (s * s * math.Sqrt(2*math.Pi))
	tmp := make([]float64, hw+1)
	for r := 0; r <= hw; r++ {
		r2 := float64(r) * float64(r)
		tmp[r] = norm * (1 - r2/(s*s)) * math.Exp(-r2/(2*s*s))
	}
	if zeroSum {
		sum := tmp[0]
		for r := 1; r <= hw; r++ {
			sum += 2 * tmp[r]
		}
		mean := sum / float64(2*hw+1)
		for r := 0; r <= hw; r++ {
			tmp[r] -= mean
		}
	}
	k := make([]T, hw+1)
	for r := 0; r <= hw; r++ {
		k[r] = T(tmp[r])
	}
	return k, nil
}
