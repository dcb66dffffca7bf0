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

// Package config loads detection tunables from a YAML file and applies
// them to the filter and kernel packages.
package config

import (
	"os"

	"github.com/mlnoga/boxxer/internal/errs"
	"github.com/mlnoga/boxxer/internal/filter"
	"github.com/mlnoga/boxxer/internal/kernels"
	"gopkg.in/yaml.v3"
)

// Settings holds the tunables adjustable without recompiling.
type Settings struct {
	SigmaHWRatio  float64 `yaml:"default_sigma_hw_ratio"`
	DoGSigmaRatio float64 `yaml:"default_DoG_sigma_ratio"`
	MaxKernelHW   int     `yaml:"max_kernel_hw"`
	LogZeroSum    bool    `yaml:"log_zero_sum"`
	MaxThreads    int     `yaml:"max_threads"`
}

// Defaults returns the settings compiled into the library.
func Defaults() Settings {
	return Settings{
		SigmaHWRatio:  filter.DefaultSigmaHWRatio,
		DoGSigmaRatio: filter.DefaultDoGSigmaRatio,
		MaxKernelHW:   kernels.MaxKernelHW,
		LogZeroSum:    kernels.LogZeroSum,
		MaxThreads:    0,
	}
}

// Parse decodes YAML settings over the compiled-in defaults.
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses the settings file at the given path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	return Parse(data)
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if s.SigmaHWRatio <= 0 {
		return errs.Valuef("default_sigma_hw_ratio %v must be positive", s.SigmaHWRatio)
	}
	if s.DoGSigmaRatio <= 1 {
		return errs.Valuef("default_DoG_sigma_ratio %v must exceed 1", s.DoGSigmaRatio)
	}
	if s.MaxKernelHW < 1 {
		return errs.Valuef("max_kernel_hw %d must be at least 1", s.MaxKernelHW)
	}
	if s.MaxThreads < 0 {
		return errs.Valuef("max_threads %d must not be negative", s.MaxThreads)
	}
	return nil
}

// Apply installs the settings into the filter and kernel packages.
// The caller remains responsible for any worker-pool thread cap.
func (s Settings) Apply() error {
	if err := s.Validate(); err != nil {
		return err
	}
	filter.DefaultSigmaHWRatio = s.SigmaHWRatio
	filter.DefaultDoGSigmaRatio = s.DoGSigmaRatio
	kernels.MaxKernelHW = s.MaxKernelHW
	kernels.LogZeroSum = s.LogZeroSum
	return nil
}
