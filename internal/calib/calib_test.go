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

// Creates a single plane test image with the given rows of samples
func newTestImage(t fits.SampleType, rows ...[]float32) *fits.Image {
	width, height := len(rows[0]), len(rows)
	data := make([]float32, 0, width*height)
	for _, r := range rows {
		data = append(data, r...)
	}
	return fits.NewImageFromNaxisn([]int32{int32(width), int32(height)}, t, data)
}

// Creates a test image of given size with all samples set to v
func newUniformImage(t fits.SampleType, width, height int, v float32) *fits.Image {
	f := fits.NewImageFromNaxisn([]int32{int32(width), int32(height)}, t, nil)
	for i := range f.Data {
		f.Data[i] = v
	}
	return f
}

// Creates an 8-bit test image holding a horizontal gradient over all 256 levels
func newGradientImage(height int) *fits.Image {
	f := fits.NewImageFromNaxisn([]int32{256, int32(height)}, fits.SampleUint8, nil)
	for i := range f.Data {
		f.Data[i] = float32(i % 256)
	}
	return f
}
