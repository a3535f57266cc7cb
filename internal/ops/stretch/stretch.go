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

package stretch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/framecal/internal/calib"
	"github.com/mlnoga/framecal/internal/fits"
	"github.com/mlnoga/framecal/internal/ops"
)

// Creates a sequence of the intensity stretching operators, in pipeline order
func NewOpStretch(opLevels *OpLevels, opBrightnessContrast *OpBrightnessContrast, opGamma *OpGamma) *ops.OpSequence {
	return ops.NewOpSequence(opLevels, opBrightnessContrast, opGamma)
}

// Remaps levels from [min,max] with a gamma curve to the full range of the given bit depth,
// truncating to 8-bit samples. Takes one input, produces one output
type OpLevels struct {
	ops.OpUnaryBase
	Min   float64 `json:"min"`
	Gamma float64 `json:"gamma"`
	Max   float64 `json:"max"`
	Bits  int     `json:"bits"`
}

var _ ops.Operator = (*OpLevels)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpLevelsDefault() }) } // register the operator for JSON decoding

func NewOpLevelsDefault() *OpLevels { return NewOpLevels(false, 0, 1, 255, 8) }

func NewOpLevels(active bool, min, gamma, max float64, bits int) *OpLevels {
	op := &OpLevels{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "levels", Active: active}},
		Min:         min,
		Gamma:       gamma,
		Max:         max,
		Bits:        bits,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpLevels) UnmarshalJSON(data []byte) error {
	type defaults OpLevels
	def := defaults(*NewOpLevelsDefault())
	def.Active = true
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpLevels(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return op.Validate()
}

// Returns the level settings of this operator, unset if inactive
func (op *OpLevels) Levels() calib.Levels {
	if !op.Active {
		return calib.Levels{}
	}
	return calib.NewLevels(op.Min, op.Gamma, op.Max)
}

// Returns an error if the operator is active with parameters that have no defined result
func (op *OpLevels) Validate() error {
	if !op.Active {
		return nil
	}
	if op.Bits < 1 || op.Bits > 32 {
		return fmt.Errorf("levels bit depth %d out of range [1,32]", op.Bits)
	}
	return op.Levels().Validate()
}

func (op *OpLevels) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if err = op.Validate(); err != nil {
		return nil, fmt.Errorf("%d: %s", f.ID, err.Error())
	}
	l := op.Levels()
	if !l.Set {
		return f, nil
	}
	if op.Bits > 8 {
		fmt.Fprintf(c.Log, "%d: Warning: %d-bit levels are truncated to 8-bit samples\n", f.ID, op.Bits)
	}
	fmt.Fprintf(c.Log, "%d: Adjusting levels min %.6g gamma %.4g max %.6g at %d bits\n", f.ID, op.Min, op.Gamma, op.Max, op.Bits)
	return calib.AdjustLevels(f, l, op.Bits), nil
}

// Adjusts brightness and contrast on the 8-bit scale. Takes one input, produces one output
type OpBrightnessContrast struct {
	ops.OpUnaryBase
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

var _ ops.Operator = (*OpBrightnessContrast)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBrightnessContrastDefault() }) } // register the operator for JSON decoding

func NewOpBrightnessContrastDefault() *OpBrightnessContrast { return NewOpBrightnessContrast(0, 0) }

func NewOpBrightnessContrast(brightness, contrast float64) *OpBrightnessContrast {
	op := &OpBrightnessContrast{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "brightnessContrast", Active: brightness != 0 || contrast != 0}},
		Brightness:  brightness,
		Contrast:    contrast,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBrightnessContrast) UnmarshalJSON(data []byte) error {
	type defaults OpBrightnessContrast
	def := defaults(*NewOpBrightnessContrastDefault())
	def.Active = true
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpBrightnessContrast(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return op.Validate()
}

// Returns an error if the contrast is outside (-259,259), where the contrast factor is undefined or negative
func (op *OpBrightnessContrast) Validate() error {
	if op.Contrast <= -259 || op.Contrast >= 259 {
		return fmt.Errorf("contrast %.4g out of range (-259,259)", op.Contrast)
	}
	return nil
}

func (op *OpBrightnessContrast) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if err = op.Validate(); err != nil {
		return nil, fmt.Errorf("%d: %s", f.ID, err.Error())
	}
	if op.Brightness == 0 && op.Contrast == 0 {
		return f, nil
	}
	fmt.Fprintf(c.Log, "%d: Adjusting brightness by %.4g and contrast by %.4g (factor %.4g)\n",
		f.ID, op.Brightness, op.Contrast, calib.ContrastFactor(op.Contrast))
	return calib.AdjustBrightnessContrast(f, op.Brightness, op.Contrast), nil
}

// Applies a gamma curve between black point and white point. Takes one input, produces one output
type OpGamma struct {
	ops.OpUnaryBase
	Gamma float64 `json:"gamma"`
	Black float64 `json:"black"`
	White float64 `json:"white"`
}

var _ ops.Operator = (*OpGamma)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpGammaDefault() }) } // register the operator for JSON decoding

func NewOpGammaDefault() *OpGamma { return NewOpGamma(1, 0, 255) }

func NewOpGamma(gamma, black, white float64) *OpGamma {
	op := &OpGamma{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "gamma", Active: gamma != 1}},
		Gamma:       gamma,
		Black:       black,
		White:       white,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpGamma) UnmarshalJSON(data []byte) error {
	type defaults OpGamma
	def := defaults(*NewOpGammaDefault())
	def.Active = true
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpGamma(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return op.Validate()
}

// Returns an error if the white point equals the black point, or gamma is zero
func (op *OpGamma) Validate() error {
	if op.White == op.Black {
		return fmt.Errorf("gamma white point %.6g equals black point", op.White)
	}
	if op.Gamma == 0 {
		return errors.New("gamma must not be zero")
	}
	return nil
}

func (op *OpGamma) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if err = op.Validate(); err != nil {
		return nil, fmt.Errorf("%d: %s", f.ID, err.Error())
	}
	fmt.Fprintf(c.Log, "%d: Applying gamma %.4g between black %.6g and white %.6g\n", f.ID, op.Gamma, op.Black, op.White)
	return calib.ApplyGamma(f, op.Gamma, op.Black, op.White), nil
}
