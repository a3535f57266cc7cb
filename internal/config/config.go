// Copyright (C) 2020 Markus L. Noga
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

// Package config reads frame correction parameters from YAML files,
// and turns them into operator sequences.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/mlnoga/framecal/internal/calib"
	"github.com/mlnoga/framecal/internal/fits"
	"github.com/mlnoga/framecal/internal/ops"
	"github.com/mlnoga/framecal/internal/ops/pre"
	"github.com/mlnoga/framecal/internal/ops/stretch"
)

/* Example configuration file

bits: 8
flat: flat.png
deinterlace: blend
levels:
  min: 100
  gamma: 1.2
  max: 240
brightness: 10
contrast: 20
gamma:
  gamma: 2.2
  black: 0
  white: 255
output: corrected%d.png
palette: heat

*/

// Level adjustment section. Either all three values are given, or none
type LevelParameters struct {
	Min   *float64 `yaml:"min"`
	Gamma *float64 `yaml:"gamma"`
	Max   *float64 `yaml:"max"`
}

// Gamma correction section. Black defaults to 0, white to the maximum level of the bit depth
type GammaParameters struct {
	Gamma float64  `yaml:"gamma"`
	Black *float64 `yaml:"black"`
	White *float64 `yaml:"white"`
}

// Frame correction parameters
type Parameters struct {
	Bits        int              `yaml:"bits"`        // bit depth of the input frames
	Flat        string           `yaml:"flat"`        // flat field reference frame, empty for none
	Deinterlace string           `yaml:"deinterlace"` // none, odd, even or blend
	Levels      *LevelParameters `yaml:"levels"`
	Brightness  float64          `yaml:"brightness"`
	Contrast    float64          `yaml:"contrast"`
	Gamma       *GammaParameters `yaml:"gamma"`
	Output      string           `yaml:"output"`  // output file pattern, %d is replaced by the frame ID
	Palette     string           `yaml:"palette"` // false color palette for raster output
}

func NewParameters() Parameters {
	return Parameters{
		Bits:        8,
		Deinterlace: pre.DeinterlaceNone,
	}
}

func ParametersFromYaml(b []byte) (Parameters, error) {
	p := NewParameters()
	if err := yaml.UnmarshalStrict(b, &p); err != nil {
		return p, err
	}
	return p, p.FinalizeConfiguration()
}

func LoadConfiguration(fileName string) (Parameters, error) {
	contents, err := ioutil.ReadFile(fileName)
	if err != nil {
		return NewParameters(), fmt.Errorf("read '%s': %v", fileName, err)
	}
	p, err := ParametersFromYaml(contents)
	if err != nil {
		return p, fmt.Errorf("parse '%s': %v", fileName, err)
	}
	return p, nil
}

func (p Parameters) AsYaml() string {
	b, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Sprintf("# cannot marshal parameters: %v\n", err)
	}
	return string(b)
}

// FinalizeConfiguration fills in defaults and rejects parameters without a defined result
func (p *Parameters) FinalizeConfiguration() error {
	if p.Bits < 1 || p.Bits > 32 {
		return fmt.Errorf("bits %d out of range [1,32]", p.Bits)
	}
	if p.Deinterlace == "" {
		p.Deinterlace = pre.DeinterlaceNone
	}
	if err := pre.NewOpDeinterlace(p.Deinterlace).Validate(); err != nil {
		return err
	}

	if p.Levels != nil {
		given := 0
		for _, v := range []*float64{p.Levels.Min, p.Levels.Gamma, p.Levels.Max} {
			if v != nil {
				given++
			}
		}
		if given != 3 {
			return errors.New("levels need all of min, gamma and max")
		}
		if err := p.GetLevels().Validate(); err != nil {
			return err
		}
	}

	if err := stretch.NewOpBrightnessContrast(p.Brightness, p.Contrast).Validate(); err != nil {
		return err
	}

	if p.Gamma != nil {
		if p.Gamma.Black == nil {
			black := 0.0
			p.Gamma.Black = &black
		}
		if p.Gamma.White == nil {
			white := calib.MaxLevel(p.Bits)
			p.Gamma.White = &white
		}
		if err := p.opGamma().Validate(); err != nil {
			return err
		}
	}

	if _, err := fits.PaletteByName(p.Palette); err != nil {
		return err
	}
	return nil
}

// Returns the requested level adjustment, unset if the configuration has no levels section
func (p Parameters) GetLevels() calib.Levels {
	if p.Levels == nil || p.Levels.Min == nil || p.Levels.Gamma == nil || p.Levels.Max == nil {
		return calib.Levels{}
	}
	return calib.NewLevels(*p.Levels.Min, *p.Levels.Gamma, *p.Levels.Max)
}

func (p Parameters) opLevels() *stretch.OpLevels {
	l := p.GetLevels()
	if !l.Set {
		return stretch.NewOpLevels(false, 0, 1, calib.MaxLevel(p.Bits), p.Bits)
	}
	return stretch.NewOpLevels(true, l.Min, l.Gamma, l.Max, p.Bits)
}

func (p Parameters) opGamma() *stretch.OpGamma {
	if p.Gamma == nil {
		op := stretch.NewOpGammaDefault()
		op.Active = false
		return op
	}
	op := stretch.NewOpGamma(p.Gamma.Gamma, *p.Gamma.Black, *p.Gamma.White)
	op.Active = true
	return op
}

// Returns the per-frame correction sequence: deinterlace, flat, levels, brightness/contrast,
// gamma and save, in this order. Inactive steps pass frames through unchanged
func (p Parameters) Sequence() *ops.OpSequence {
	return ops.NewOpSequence(
		pre.NewOpDeinterlace(p.Deinterlace),
		pre.NewOpFlat(p.Flat),
		stretch.NewOpStretch(p.opLevels(), stretch.NewOpBrightnessContrast(p.Brightness, p.Contrast), p.opGamma()),
		ops.NewOpSave(p.Output, p.Palette),
	)
}
