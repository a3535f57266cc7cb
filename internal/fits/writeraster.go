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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/tiff"
)

// A color palette for preview output. Maps normalized intensities in [0,1] to colors
type Palette []colorful.Color

// Returns the palette with the given name. Empty string and "gray" return nil, i.e. grayscale output
func PaletteByName(name string) (Palette, error) {
	switch strings.ToLower(name) {
	case "", "gray", "grey":
		return nil, nil
	case "heat":
		return hexPalette("#000000", "#5a0000", "#d42000", "#ffb000", "#ffffff")
	case "ice":
		return hexPalette("#000000", "#002a5c", "#1f7acc", "#9ee7ff", "#ffffff")
	default:
		return nil, fmt.Errorf("unknown palette '%s'", name)
	}
}

func hexPalette(hexes ...string) (Palette, error) {
	p := make(Palette, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, err
		}
		p[i] = c
	}
	return p, nil
}

// Returns the palette color for normalized intensity v in [0,1], blending neighboring stops in CIE-L*a*b*
func (p Palette) At(v float32) color.RGBA {
	if v <= 0 {
		return rgba(p[0])
	}
	if v >= 1 {
		return rgba(p[len(p)-1])
	}
	pos := float64(v) * float64(len(p)-1)
	i := int(pos)
	c := p[i].BlendLab(p[i+1], pos-float64(i)).Clamped()
	return rgba(c)
}

func rgba(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{r, g, b, 255}
}

// Renders the first plane of the frame into an 8-bit preview, using the given min, max and gamma.
// With a nil palette the result is grayscale
func (f *Image) Preview(min, max, gamma float32, p Palette) image.Image {
	width, height := f.Width(), f.Height()
	rect := image.Rect(0, 0, width, height)
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)

	var gray *image.Gray
	var rgb *image.RGBA
	if p == nil {
		gray = image.NewGray(rect)
	} else {
		rgb = image.NewRGBA(rect)
	}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			v := (f.Data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(v)) || v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			if gammaInv != 1.0 {
				v = float32(math.Pow(float64(v), gammaInv))
			}
			if p == nil {
				gray.SetGray(x, y, color.Gray{uint8(v * 255)})
			} else {
				rgb.SetRGBA(x, y, p.At(v))
			}
		}
	}
	if p == nil {
		return gray
	}
	return rgb
}

// Returns the display range for previews: the full range of the sample type for 8 and 16 bit
// unsigned data, and the data range otherwise
func (f *Image) PreviewRange() (min, max float32) {
	switch f.Type {
	case SampleUint8:
		return 0, 255
	case SampleUint16:
		return 0, 65535
	default:
		return f.Stats.Min(), f.Stats.Max()
	}
}

// Writes the frame to a raster file, format chosen by suffix: .png, .tif/.tiff or .jpg/.jpeg.
// PNG and TIFF keep the sample values of 8 and 16 bit unsigned frames unless a palette is given.
// JPEG and all other sample types are written as 8-bit previews.
func (f *Image) WriteRasterFile(fileName string, p Palette) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err = f.WriteRaster(writer, strings.ToLower(filepath.Ext(fileName)), p); err != nil {
		return err
	}
	return writer.Flush()
}

// Writes the frame to a raster format given by the file suffix
func (f *Image) WriteRaster(writer io.Writer, suffix string, p Palette) error {
	var img image.Image
	keepSamples := f.Type == SampleUint8 || f.Type == SampleUint16
	if p == nil && keepSamples && suffix != ".jpg" && suffix != ".jpeg" {
		img = f.ToGoImage()
	} else {
		min, max := f.PreviewRange()
		img = f.Preview(min, max, 1, p)
	}

	switch suffix {
	case ".png":
		return png.Encode(writer, img)
	case ".tif", ".tiff":
		return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ".jpg", ".jpeg":
		return jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	default:
		return fmt.Errorf("unknown raster suffix '%s'", suffix)
	}
}
