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

// Deinterlace modes
const (
	DeinterlaceNone  = "none"
	DeinterlaceOdd   = "odd"
	DeinterlaceEven  = "even"
	DeinterlaceBlend = "blend"
)

// Reconstructs progressive frames from interlaced fields. Takes one input, produces one output
type OpDeinterlace struct {
	ops.OpUnaryBase
	Mode string `json:"mode"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDeinterlaceDefault() }) } // register the operator for JSON decoding

func NewOpDeinterlaceDefault() *OpDeinterlace { return NewOpDeinterlace(DeinterlaceNone) }

func NewOpDeinterlace(mode string) *OpDeinterlace {
	op := &OpDeinterlace{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "deinterlace", Active: mode != "" && mode != DeinterlaceNone}},
		Mode:        mode,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDeinterlace) UnmarshalJSON(data []byte) error {
	type defaults OpDeinterlace
	def := defaults(*NewOpDeinterlaceDefault())
	def.Active = true
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpDeinterlace(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return op.Validate()
}

// Returns an error if the mode is unknown
func (op *OpDeinterlace) Validate() error {
	switch op.Mode {
	case "", DeinterlaceNone, DeinterlaceOdd, DeinterlaceEven, DeinterlaceBlend:
		return nil
	}
	return fmt.Errorf("unknown deinterlace mode '%s', want one of none, odd, even, blend", op.Mode)
}

func (op *OpDeinterlace) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	switch op.Mode {
	case "", DeinterlaceNone:
		return f, nil
	case DeinterlaceOdd:
		result = calib.DeinterlaceOdd(f)
	case DeinterlaceEven:
		result = calib.DeinterlaceEven(f)
	case DeinterlaceBlend:
		result = calib.DeinterlaceBlend(f)
	default:
		return nil, fmt.Errorf("%d: %s", f.ID, op.Validate().Error())
	}
	fmt.Fprintf(c.Log, "%d: Deinterlaced %s frame using %s field\n", f.ID, f.DimensionsToString(), op.Mode)
	return result, nil
}
