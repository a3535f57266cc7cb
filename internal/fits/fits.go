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

package fits

import (
	"fmt"
	"strings"

	"github.com/mlnoga/framecal/internal/stats"
)

// A camera frame. Samples are held as float32 regardless of the storage type,
// which is tracked separately to clip and round on conversion.
// FITS spec here: https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
type Image struct {
	ID       int    // Sequential ID number, for log output. By convention, the flat is -1
	FileName string // Original file name, if any, for log output

	Header Header     // The header with all keys, values, comments, history entries etc.
	Type   SampleType // Storage type of the samples, defines valid range and rounding
	Naxisn []int32    // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32      // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data, row-major

	Exposure float32 // Image exposure in seconds

	Stats *stats.Stats // Basic image statistics: min, mean, max, median
}

// Creates an image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Type:   SampleFloat32,
	}
}

// Creates an image from given naxisn and sample type. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, t SampleType, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Type:   t,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
		Stats:  stats.NewStats(data, naxisn[0]),
	}
}

// Creates an image with the metadata of the given image and the given sample type. New data array will be allocated
func NewImageFromImage(img *Image, t SampleType) *Image {
	data := make([]float32, img.Pixels)
	return &Image{
		ID:       img.ID,
		FileName: img.FileName,
		Header:   img.Header,
		Type:     t,
		Naxisn:   append([]int32(nil), img.Naxisn...), // clone slice
		Pixels:   img.Pixels,
		Data:     data,
		Exposure: img.Exposure,
		Stats:    stats.NewStats(data, img.Naxisn[0]),
	}
}

// Returns a deep copy of the image data and metadata
func (f *Image) Clone() *Image {
	c := NewImageFromImage(f, f.Type)
	copy(c.Data, f.Data)
	return c
}

// Width of the image in pixels
func (f *Image) Width() int {
	return int(f.Naxisn[0])
}

// Height of the image in rows
func (f *Image) Height() int {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return int(f.Naxisn[1])
}

// Number of rows across all planes. Zero for frames without samples
func (f *Image) Rows() int {
	width := f.Width()
	if width == 0 {
		return 0
	}
	return int(f.Pixels) / width
}

// Number of planes, i.e. the product of all axes beyond the second
func (f *Image) Planes() int {
	planes := 1
	for _, n := range f.Naxisn[min(2, len(f.Naxisn)):] {
		planes *= int(n)
	}
	return planes
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Returns the sample at column x and row y of the first plane
func (f *Image) At(x, y int) float32 {
	return f.Data[y*f.Width()+x]
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
