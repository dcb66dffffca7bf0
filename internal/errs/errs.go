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

// Package errs defines the error kinds shared across the detection pipeline.
package errs

import (
	"errors"
	"fmt"
)

// The four error kinds. Callers classify failures with errors.Is.
var (
	ErrParameterValue = errors.New("parameter value error")
	ErrParameterShape = errors.New("parameter shape error")
	ErrLogical        = errors.New("logical error")
	ErrNumerical      = errors.New("numerical error")
)

// Valuef wraps ErrParameterValue with a formatted message.
func Valuef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParameterValue, fmt.Sprintf(format, args...))
}

// Shapef wraps ErrParameterShape with a formatted message.
func Shapef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParameterShape, fmt.Sprintf(format, args...))
}

// Logicalf wraps ErrLogical with a formatted message.
func Logicalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrLogical, fmt.Sprintf(format, args...))
}

// Numericalf wraps ErrNumerical with a formatted message.
func Numericalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNumerical, fmt.Sprintf(format, args...))
}
