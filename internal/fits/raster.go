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
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"math"

	_ "golang.org/x/image/bmp" // register BMP decoder
	_ "golang.org/x/image/tiff"

	"github.com/mlnoga/framecal/internal/stats"
)

// Read a raster image (PNG, TIFF, BMP, JPEG) into a single-plane frame.
// Color images are converted to grayscale. 16-bit color models yield uint16 samples, all others uint8.
func (f *Image) ReadRaster(r io.Reader) error {
	img, format, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("%d: %s", f.ID, err.Error())
	}
	f.FromGoImage(img)
	f.Header.History = append(f.Header.History, "Decoded from "+format)
	return nil
}

// Converts a golang image into this frame, replacing data and dimensions
func (f *Image) FromGoImage(img image.Image) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	f.Type = sampleTypeFromColorModel(img.ColorModel())
	f.Naxisn = []int32{int32(width), int32(height)}
	f.Pixels = int32(width * height)
	f.Data = make([]float32, f.Pixels)

	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v float32
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			if f.Type == SampleUint16 {
				v = float32(color.Gray16Model.Convert(c).(color.Gray16).Y)
			} else {
				v = float32(color.GrayModel.Convert(c).(color.Gray).Y)
			}
			f.Data[y*width+x] = v

			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += float64(v)
		}
	}
	mean := float32(sum / float64(len(f.Data)))
	f.Stats = stats.NewStatsWithMMM(f.Data, f.Naxisn[0], min, max, mean)
}

func sampleTypeFromColorModel(m color.Model) SampleType {
	switch m {
	case color.RGBA64Model, color.NRGBA64Model, color.Alpha16Model, color.Gray16Model:
		return SampleUint16
	default:
		return SampleUint8
	}
}

// Converts the first plane of this frame into a golang grayscale image, clipping to the sample type.
// Samples of 8 bit types yield a Gray image, all others Gray16
func (f *Image) ToGoImage() image.Image {
	width, height := f.Width(), f.Height()
	rect := image.Rect(0, 0, width, height)
	if f.Type == SampleUint8 {
		img := image.NewGray(rect)
		for i, v := range f.Data[:width*height] {
			img.Pix[i] = uint8(SampleUint8.Convert(float64(v)))
		}
		return img
	}
	img := image.NewGray16(rect)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := SampleUint16.Convert(float64(f.Data[y*width+x]))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}
