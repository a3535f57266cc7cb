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

package calib

import (
	"errors"
	"math"

	"github.com/mlnoga/framecal/internal/fits"
)

// Parameters for a level adjustment. The zero value requests no adjustment.
type Levels struct {
	Set   bool    // False if no adjustment was requested
	Min   float64 // Input level mapped to black
	Gamma float64 // Gamma exponent
	Max   float64 // Input level mapped to white
}

// Returns a level adjustment with the given minimum, gamma and maximum level
func NewLevels(min, gamma, max float64) Levels {
	return Levels{Set: true, Min: min, Gamma: gamma, Max: max}
}

// Checks the preconditions of AdjustLevels. An unset adjustment is always valid
func (l Levels) Validate() error {
	if !l.Set {
		return nil
	}
	if l.Min == l.Max {
		return errors.New("levels: minimum and maximum level must differ")
	}
	if l.Gamma == 0 {
		return errors.New("levels: gamma must not be zero")
	}
	return nil
}

// Maximum level for the given bit depth, i.e. 2^nbits-1
func MaxLevel(nbits int) float64 {
	return math.Exp2(float64(nbits)) - 1
}

// Adjusts the levels of the image with the given parameters and image bit depth.
// Returns f itself if no adjustment was requested.
//
// The result always holds 8-bit samples, independent of nbits. Values above 255 wrap
// around modulo 256, so bit depths above 8 lose dynamic range. Min and Max must differ.
func AdjustLevels(f *fits.Image, l Levels, nbits int) *fits.Image {
	if !l.Set {
		return f
	}

	maxLvl := MaxLevel(nbits)
	minv := l.Min / maxLvl
	maxv := l.Max / maxLvl
	interval := maxv - minv
	invGamma := 1.0 / l.Gamma

	res := fits.NewImageFromImage(f, fits.SampleUint8)
	fits.MapPixels(res.Data, f.Data, func(v float32) float32 {
		x := float64(v) / maxLvl
		x = (x - minv) / interval
		x = math.Pow(x, invGamma)
		x *= maxLvl
		if math.IsNaN(x) || x < 0 {
			x = 0
		} else if x > maxLvl {
			x = maxLvl
		}
		return float32(uint8(int64(x)))
	})
	return res
}
