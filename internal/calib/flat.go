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
	"github.com/mlnoga/framecal/internal/stats"
)

// A flat field: a reference frame of per-pixel sensitivity and its median intensity.
// Immutable after construction; safe for concurrent use by many frames.
type FlatField struct {
	frame *fits.Image
	avg   float32
}

// Builds a flat field from the given reference frame. The average is the median of the frame.
// Samples below half the average, and NaN blanks, are replaced by the average, so they are safe
// to divide by. NaNs are ignored when computing the median. The reference frame is not modified.
func NewFlatField(ref *fits.Image) *FlatField {
	avg := stats.Median(ref.Data)

	frame := fits.NewImageFromImage(ref, fits.SampleFloat32)
	frame.ID = ref.ID
	threshold := avg / 2
	fits.MapPixels(frame.Data, ref.Data, func(v float32) float32 {
		if v < threshold || v != v {
			return avg
		}
		return v
	})
	return &FlatField{frame: frame, avg: avg}
}

// Median intensity of the reference frame
func (ff *FlatField) Avg() float32 {
	return ff.avg
}

// Dimensions of the reference frame
func (ff *FlatField) Naxisn() []int32 {
	return append([]int32(nil), ff.frame.Naxisn...)
}

// Number of samples in the reference frame
func (ff *FlatField) Pixels() int32 {
	return ff.frame.Pixels
}

// Returns a copy of the corrected reference frame
func (ff *FlatField) Frame() *fits.Image {
	return ff.frame.Clone()
}

// Returns true if the flat field can be applied to the given image
func (ff *FlatField) Matches(f *fits.Image) bool {
	return ff != nil && fits.EqualInt32Slice(f.Naxisn, ff.frame.Naxisn)
}

// Applies the flat field to the image: out = avg * f / flat, clipped to the range of the
// sample type of f and converted back to it. If the dimensions of f and the flat differ,
// or flat is nil, f itself is returned unchanged.
func ApplyFlat(f *fits.Image, ff *FlatField) *fits.Image {
	if !ff.Matches(f) {
		return f
	}

	t := f.Type
	avg := float64(ff.avg)
	flat := ff.frame.Data
	width, rows := f.Width(), f.Rows()

	res := fits.NewImageFromImage(f, t)
	fits.ApplyRowFunction(rows, func(lower, upper int) {
		for i := lower * width; i < upper*width; i++ {
			res.Data[i] = t.Convert(avg * float64(f.Data[i]) / float64(flat[i]))
		}
	})
	return res
}
