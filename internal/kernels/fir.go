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

package kernels

import (
	"github.com/mlnoga/boxxer/img"
	"github.com/mlnoga/boxxer/internal/errs"
)

// Boundaries use half-sample mirroring: index -1 maps to 0, -2 to 1,
// L maps to L-1, L+1 to L-2.
func reflect(i, l int) int {
	if i < 0 {
		return -i - 1
	}
	if i >= l {
		return 2*l - i - 1
	}
	return i
}

// FIR1D convolves in with the symmetric half-kernel k into out, using
// three regions so the interior loop carries no boundary tests.
// Requires len(in) >= 2*hw+2; shorter inputs take the small path.
func FIR1D[T img.Float](in, out, k []T) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	l := len(in)
	if l <= 2*hw+1 {
		return FIR1DSmall(in, out, k)
	}
	// leading edge
	for x := 0; x < hw; x++ {
		acc := k[0] * in[x]
		for r := 1; r <= x; r++ {
			acc += k[r] * (in[x-r] + in[x+r])
		}
		for r := x + 1; r <= hw; r++ {
			acc += k[r] * (in[x+r] + in[r-x-1])
		}
		out[x] = acc
	}
	// interior
	for x := hw; x < l-hw; x++ {
		acc := k[0] * in[x]
		for r := 1; r <= hw; r++ {
			acc += k[r] * (in[x-r] + in[x+r])
		}
		out[x] = acc
	}
	// trailing edge
	for x := l - hw; x < l; x++ {
		acc := k[0] * in[x]
		for r := 1; r <= l-x-1; r++ {
			acc += k[r] * (in[x-r] + in[x+r])
		}
		for r := l - x; r <= hw; r++ {
			acc += k[r] * (in[x-r] + in[2*l-r-x-1])
		}
		out[x] = acc
	}
	return nil
}

// FIR1DSmall is the reference pass. It works for any input length and
// drops contributions that fall beyond the doubly mirrored range.
func FIR1DSmall[T img.Float](in, out, k []T) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	l := len(in)
	for x := 0; x < l; x++ {
		acc := k[0] * in[x]
		for r := 1; r <= hw; r++ {
			if i := x - r; i >= -l {
				acc += k[r] * in[reflect(i, l)]
			}
			if i := x + r; i < 2*l {
				acc += k[r] * in[reflect(i, l)]
			}
		}
		out[x] = acc
	}
	return nil
}

// FIR1DInplace filters data in place. Writes trail the read position by
// hw samples through a small ring buffer, so each output still sees the
// unmodified inputs it depends on. buf must hold at least hw+1 elements.
func FIR1DInplace[T img.Float](data, k, buf []T) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	if len(buf) < hw+1 {
		return errs.Logicalf("FIR in-place buffer length %d below required %d", len(buf), hw+1)
	}
	l := len(data)
	for x := 0; x < l; x++ {
		acc := k[0] * data[x]
		for r := 1; r <= hw; r++ {
			if i := x - r; i >= -l {
				acc += k[r] * data[reflect(i, l)]
			}
			if i := x + r; i < 2*l {
				acc += k[r] * data[reflect(i, l)]
			}
		}
		buf[x%(hw+1)] = acc
		if x >= hw {
			data[x-hw] = buf[(x-hw)%(hw+1)]
		}
	}
	for x := l - hw; x < l; x++ {
		if x < 0 {
			continue
		}
		data[x] = buf[x%(hw+1)]
	}
	return nil
}

// FIR2DX filters every row of a sizeX x sizeY image along axis 0.
func FIR2DX[T img.Float](in, out, k []T, sizeX, sizeY int) error {
	for y := 0; y < sizeY; y++ {
		o := y * sizeX
		if err := FIR1D(in[o:o+sizeX], out[o:o+sizeX], k); err != nil {
			return err
		}
	}
	return nil
}

// FIR2DXSmall is the reference variant of FIR2DX.
func FIR2DXSmall[T img.Float](in, out, k []T, sizeX, sizeY int) error {
	for y := 0; y < sizeY; y++ {
		o := y * sizeX
		if err := FIR1DSmall(in[o:o+sizeX], out[o:o+sizeX], k); err != nil {
			return err
		}
	}
	return nil
}

// FIR2DY filters along axis 1 with strided row accumulation: each output
// row is k[0] times its input row plus k[r] times the mirrored row pairs.
func FIR2DY[T img.Float](in, out, k []T, sizeX, sizeY int) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	if sizeY <= 2*hw+1 {
		return FIR2DYSmall(in, out, k, sizeX, sizeY)
	}
	for y := 0; y < sizeY; y++ {
		o := out[y*sizeX : (y+1)*sizeX]
		i0 := in[y*sizeX : (y+1)*sizeX]
		for x := range o {
			o[x] = k[0] * i0[x]
		}
		for r := 1; r <= hw; r++ {
			im := in[reflect(y-r, sizeY)*sizeX:]
			ip := in[reflect(y+r, sizeY)*sizeX:]
			kr := k[r]
			for x := range o {
				o[x] += kr * (im[x] + ip[x])
			}
		}
	}
	return nil
}

// FIR2DYSmall is the reference variant of FIR2DY for any sizeY.
func FIR2DYSmall[T img.Float](in, out, k []T, sizeX, sizeY int) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	for y := 0; y < sizeY; y++ {
		o := out[y*sizeX : (y+1)*sizeX]
		i0 := in[y*sizeX : (y+1)*sizeX]
		for x := range o {
			o[x] = k[0] * i0[x]
		}
		for r := 1; r <= hw; r++ {
			kr := k[r]
			if i := y - r; i >= -sizeY {
				im := in[reflect(i, sizeY)*sizeX:]
				for x := range o {
					o[x] += kr * im[x]
				}
			}
			if i := y + r; i < 2*sizeY {
				ip := in[reflect(i, sizeY)*sizeX:]
				for x := range o {
					o[x] += kr * ip[x]
				}
			}
		}
	}
	return nil
}

// FIR3DX filters every contiguous row of a sizeX x sizeY x sizeZ volume.
func FIR3DX[T img.Float](in, out, k []T, sizeX, sizeY, sizeZ int) error {
	return FIR2DX(in, out, k, sizeX, sizeY*sizeZ)
}

// FIR3DXSmall is the reference variant of FIR3DX.
func FIR3DXSmall[T img.Float](in, out, k []T, sizeX, sizeY, sizeZ int) error {
	return FIR2DXSmall(in, out, k, sizeX, sizeY*sizeZ)
}

// FIR3DY applies the axis-1 pass to every z plane.
func FIR3DY[T img.Float](in, out, k []T, sizeX, sizeY, sizeZ int) error {
	sizeXY := sizeX * sizeY
	for z := 0; z < sizeZ; z++ {
		o := z * sizeXY
		if err := FIR2DY(in[o:o+sizeXY], out[o:o+sizeXY], k, sizeX, sizeY); err != nil {
			return err
		}
	}
	return nil
}

// FIR3DYSmall is the reference variant of FIR3DY.
func FIR3DYSmall[T img.Float](in, out, k []T, sizeX, sizeY, sizeZ int) error {
	sizeXY := sizeX * sizeY
	for z := 0; z < sizeZ; z++ {
		o := z * sizeXY
		if err := FIR2DYSmall(in[o:o+sizeXY], out[o:o+sizeXY], k, sizeX, sizeY); err != nil {
			return err
		}
	}
	return nil
}

// FIR3DZ filters along axis 2 with plane-sized strides.
func FIR3DZ[T img.Float](in, out, k []T, sizeX, sizeY, sizeZ int) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	if sizeZ <= 2*hw+1 {
		return FIR3DZSmall(in, out, k, sizeX, sizeY, sizeZ)
	}
	sizeXY := sizeX * sizeY
	for z := 0; z < sizeZ; z++ {
		o := out[z*sizeXY : (z+1)*sizeXY]
		i0 := in[z*sizeXY : (z+1)*sizeXY]
		for x := range o {
			o[x] = k[0] * i0[x]
		}
		for r := 1; r <= hw; r++ {
			im := in[reflect(z-r, sizeZ)*sizeXY:]
			ip := in[reflect(z+r, sizeZ)*sizeXY:]
			kr := k[r]
			for x := range o {
				o[x] += kr * (im[x] + ip[x])
			}
		}
	}
	return nil
}

// FIR3DZSmall is the reference variant of FIR3DZ for any sizeZ.
func FIR3DZSmall[T img.Float](in, out, k []T, sizeX, sizeY, sizeZ int) error {
	hw := len(k) - 1
	if hw < 1 {
		return errs.Logicalf("FIR half-width %d must be at least 1", hw)
	}
	sizeXY := sizeX * sizeY
	for z := 0; z < sizeZ; z++ {
		o := out[z*sizeXY : (z+1)*sizeXY]
		i0 := in[z*sizeXY : (z+1)*sizeXY]
		for x := range o {
			o[x] = k[0] * i0[x]
		}
		for r := 1; r <= hw; r++ {
			kr := k[r]
			if i := z - r; i >= -sizeZ {
				im := in[reflect(i, sizeZ)*sizeXY:]
				for x := range o {
					o[x] += kr * im[x]
				}
			}
			if i := z + r; i < 2*sizeZ {
				ip := in[reflect(i, sizeZ)*sizeXY:]
				for x := range o {
					o[x] += kr * ip[x]
				}
			}
		}
	}
	return nil
}
