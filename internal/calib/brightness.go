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
	"github.com/mlnoga/framecal/internal/fits"
)

// Returns the contrast factor for a contrast value in [-255, 255]
func ContrastFactor(contrast float64) float64 {
	return (259.0 * (contrast + 255.0)) / (255.0 * (259.0 - contrast))
}

// Applies brightness and contrast corrections to the image. Brightness and contrast are
// in [-255, 255]; the result is clipped to [0, 255] and keeps the sample type of f.
func AdjustBrightnessContrast(f *fits.Image, brightness, contrast float64) *fits.Image {
	fac := ContrastFactor(contrast)
	t := f.Type

	res := fits.NewImageFromImage(f, t)
	fits.MapPixels(res.Data, f.Data, func(v float32) float32 {
		x := float64(v) + brightness
		x = fac*(x-128.0) + 128.0
		if x < 0 || x != x {
			x = 0
		} else if x > 255 {
			x = 255
		}
		return t.Convert(x)
	})
	return res
}
