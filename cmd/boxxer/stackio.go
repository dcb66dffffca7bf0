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

package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/mlnoga/boxxer/img"
)

// readStack reads a raw little-endian float32 stack of the given
// dimensions, axis 0 fastest-varying.
func readStack(fileName string, dims []uint32) (*img.Image[float32], error) {
	stack, err := img.New[float32](dims)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if err := binary.Read(reader, binary.LittleEndian, stack.Data); err != nil {
		return nil, fmt.Errorf("reading %d float32 values from %s: %w", len(stack.Data), fileName, err)
	}
	return stack, nil
}

// writeMaximaCSV writes the column-major maxima table as one CSV line
// per maximum, coordinate rows first, value last.
func writeMaximaCSV(fileName string, coords []uint32, vals []float32, rows int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	switch rows {
	case 3:
		fmt.Fprintln(writer, "x,y,frame,value")
	case 4:
		fmt.Fprintln(writer, "x,y,z,frame,value")
	default:
		return fmt.Errorf("unsupported coordinate row count %d", rows)
	}
	for i, v := range vals {
		for r := 0; r < rows; r++ {
			fmt.Fprintf(writer, "%d,", coords[i*rows+r])
		}
		fmt.Fprintf(writer, "%g\n", v)
	}
	return nil
}
