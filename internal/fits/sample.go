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
	"math"
)

// Storage type of the samples of an image. Data is always held as float32 in memory,
// the sample type defines the valid value range and the rounding applied on conversion.
type SampleType int32

const (
	SampleUint8 SampleType = iota
	SampleInt16
	SampleUint16
	SampleInt32
	SampleFloat32
)

func (s SampleType) String() string {
	switch s {
	case SampleUint8:
		return "uint8"
	case SampleInt16:
		return "int16"
	case SampleUint16:
		return "uint16"
	case SampleInt32:
		return "int32"
	case SampleFloat32:
		return "float32"
	default:
		return fmt.Sprintf("SampleType(%d)", int32(s))
	}
}

// Returns the smallest and largest value representable by the sample type
func (s SampleType) Range() (min, max float64) {
	switch s {
	case SampleUint8:
		return 0, math.MaxUint8
	case SampleInt16:
		return math.MinInt16, math.MaxInt16
	case SampleUint16:
		return 0, math.MaxUint16
	case SampleInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// Returns true if samples of this type hold integral values
func (s SampleType) IsIntegral() bool {
	return s != SampleFloat32
}

// Clips v to the valid range of the sample type. NaNs are clipped to zero for integral types
func (s SampleType) Clip(v float64) float64 {
	if math.IsNaN(v) {
		if s.IsIntegral() {
			return 0
		}
		return v
	}
	min, max := s.Range()
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Converts v to the sample type: clips to the valid range, then truncates towards zero for integral types
func (s SampleType) Convert(v float64) float32 {
	v = s.Clip(v)
	if s.IsIntegral() {
		v = math.Trunc(v)
	}
	return float32(v)
}

// Returns the FITS BITPIX and BZERO values used to store samples of this type
func (s SampleType) Bitpix() (bitpix int32, bzero float32) {
	switch s {
	case SampleUint8:
		return 8, 0
	case SampleInt16:
		return 16, 0
	case SampleUint16:
		return 16, 32768
	case SampleInt32:
		return 32, 0
	default:
		return -32, 0
	}
}

// Determines the sample type from FITS BITPIX and BZERO values
func SampleTypeFromBitpix(bitpix int32, bzero float32) SampleType {
	switch bitpix {
	case 8:
		return SampleUint8
	case 16:
		if bzero == 32768 {
			return SampleUint16
		}
		return SampleInt16
	case 32:
		return SampleInt32
	default:
		return SampleFloat32
	}
}

// Returns the sample type for a raster with the given bit depth
func SampleTypeFromBits(nbits int) SampleType {
	if nbits <= 8 {
		return SampleUint8
	}
	return SampleUint16
}
