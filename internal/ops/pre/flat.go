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

package pre

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/framecal/internal/calib"
	"github.com/mlnoga/framecal/internal/fits"
	"github.com/mlnoga/framecal/internal/ops"
)

// Divides frames by a flat field loaded once from the given file. Takes one input, produces one output
type OpFlat struct {
	ops.OpUnaryBase
	File string `json:"file"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpFlatDefault() }) } // register the operator for JSON decoding

func NewOpFlatDefault() *OpFlat { return NewOpFlat("") }

func NewOpFlat(file string) *OpFlat {
	op := &OpFlat{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "flat", Active: file != ""}},
		File:        file,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpFlat) UnmarshalJSON(data []byte) error {
	type defaults OpFlat
	def := defaults(*NewOpFlatDefault())
	def.Active = true
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpFlat(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpFlat) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	flat, err := op.Init(c) // lazy init of the flat field
	if err != nil {
		return nil, err
	}
	if flat == nil {
		return f, nil
	}
	if !flat.Matches(f) {
		fmt.Fprintf(c.Log, "%d: Frame dimensions %v differ from flat dimensions %v, skipping flat\n",
			f.ID, f.Naxisn, flat.Naxisn())
		return f, nil
	}
	result = calib.ApplyFlat(f, flat)
	fmt.Fprintf(c.Log, "%d: Applied flat with average %.6g\n", f.ID, flat.Avg())
	return result, nil
}

// Returns the flat field for op.File, loading it into the context on first use. Nil if no file is set
func (op *OpFlat) Init(c *ops.Context) (*calib.FlatField, error) {
	return c.FlatField(op.File)
}
