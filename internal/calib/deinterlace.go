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
	"fmt"

	"github.com/mlnoga/framecal/internal/fits"
)

// Reconstructs the field of even rows: every odd row is replaced by its preceding even row,
// then the frame is moved up by one row, and the last row is zero-filled.
// Output row r thus holds input row (r+1)&^1.
func DeinterlaceOdd(f *fits.Image) *fits.Image {
	res := fits.NewImageFromImage(f, f.Type)
	width, height := f.Width(), f.Height()
	copyRows(res.Data, f.Data, width, height, f.Planes(), func(r int) int {
		if r == height-1 {
			return -1
		}
		return (r + 1) &^ 1
	})
	return res
}

// Reconstructs the field of odd rows: every even row with a following odd row is replaced by it.
// A trailing even row without a successor is kept.
func DeinterlaceEven(f *fits.Image) *fits.Image {
	res := fits.NewImageFromImage(f, f.Type)
	width, height := f.Width(), f.Height()
	copyRows(res.Data, f.Data, width, height, f.Planes(), func(r int) int {
		if r&1 == 0 && r+1 < height {
			return r + 1
		}
		return r
	})
	return res
}

// Fills each destination row r from source row src(r) of the same plane, or with zeros if src(r)<0.
// Source and destination must not overlap.
func copyRows(dst, src []float32, width, height, planes int, srcRow func(r int) int) {
	fits.ApplyRowFunction(height*planes, func(lower, upper int) {
		for row := lower; row < upper; row++ {
			plane, r := row/height, row%height
			d := dst[row*width : (row+1)*width]
			s := srcRow(r)
			if s < 0 {
				for i := range d {
					d[i] = 0
				}
				continue
			}
			s += plane * height
			copy(d, src[s*width:(s+1)*width])
		}
	})
}

// Blends two images with the lighten method, taking the brighter sample at each position.
// The result has the sample type of a.
func BlendLighten(a, b *fits.Image) (*fits.Image, error) {
	if !fits.EqualInt32Slice(a.Naxisn, b.Naxisn) {
		return nil, fmt.Errorf("%d: Cannot blend %s image with %s image",
			a.ID, a.DimensionsToString(), b.DimensionsToString())
	}
	res := fits.NewImageFromImage(a, a.Type)
	width, rows := a.Width(), a.Rows()
	fits.ApplyRowFunction(rows, func(lower, upper int) {
		for i := lower * width; i < upper*width; i++ {
			v := a.Data[i]
			if b.Data[i] > v {
				v = b.Data[i]
			}
			res.Data[i] = a.Type.Convert(float64(v))
		}
	})
	return res, nil
}

// Deinterlaces the image by reconstructing both fields, and blending them with the lighten method
func DeinterlaceBlend(f *fits.Image) *fits.Image {
	res, _ := BlendLighten(DeinterlaceOdd(f), DeinterlaceEven(f)) // dimensions always match
	return res
}
