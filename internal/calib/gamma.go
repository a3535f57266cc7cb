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

// Package calib implements the frame correction transforms: flat-fielding, level and gamma
// remapping, brightness/contrast and deinterlacing. All functions are pure: they return a new
// image and never modify their inputs.
package calib

import (
	"math"

	"github.com/mlnoga/framecal/internal/fits"
)

// Corrects the given intensity for gamma, between black point bp and white point wp.
// Intensities at or below the black point are returned as bp without gamma expansion.
// wp must differ from bp.
func GammaCorrect(intensity, gamma, bp, wp float64) float64 {
	if intensity < 0 {
		intensity = 0
	}

	x := (intensity - bp) / (wp - bp)
	if x > 0 {
		return bp + (wp-bp)*math.Pow(x, 1.0/gamma)
	}
	return bp
}

// Applies GammaCorrect to every sample of the image. The result holds float32 samples.
func ApplyGamma(f *fits.Image, gamma, bp, wp float64) *fits.Image {
	res := fits.NewImageFromImage(f, fits.SampleFloat32)
	fits.MapPixels(res.Data, f.Data, func(v float32) float32 {
		return float32(GammaCorrect(float64(v), gamma, bp, wp))
	})
	return res
}
