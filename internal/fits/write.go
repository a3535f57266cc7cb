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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Writes an in-memory image to a FITS file with given filename.
// Creates/overwrites the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err = fits.Write(w); err != nil {
		return err
	}
	return w.Flush()
}

// Writes an in-memory image to an io.Writer in FITS format, using the native sample type
func (fits *Image) Write(f io.Writer) error {
	bitpix, bzero := fits.Type.Bitpix()

	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", bitpix, "Bits per sample, "+fits.Type.String())
	writeInt32(&sb, "NAXIS", int32(len(fits.Naxisn)), "[1] Number of axis")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), fits.Naxisn[i], "[1] Axis size")
	}
	if bzero != 0 {
		writeFloat32(&sb, "BZERO", bzero, "[1] Zero offset")
		writeFloat32(&sb, "BSCALE", 1, "[1] Value scaler")
	}
	if fits.Exposure != 0 {
		writeFloat32(&sb, "EXPTIME", fits.Exposure, "[s] Exposure time")
	}
	for _, h := range fits.Header.History {
		writeHistory(&sb, h)
	}
	writeEnd(&sb)
	padBlock(&sb, ' ')

	// Write header block(s)
	if _, err := io.WriteString(f, sb.String()); err != nil {
		return err
	}

	if err := fits.writeData(f, bitpix, bzero); err != nil {
		return err
	}

	// Pad data unit with zeros to full block size
	dataBytes := int(fits.Pixels) * int(abs32(bitpix)/8)
	if rem := dataBytes % fitsBlockSize; rem > 0 {
		_, err := f.Write(make([]byte, fitsBlockSize-rem))
		return err
	}
	return nil
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

func padBlock(sb *strings.Builder, r rune) {
	if bytesInBlock := sb.Len() % fitsBlockSize; bytesInBlock > 0 {
		for i := bytesInBlock; i < fitsBlockSize; i++ {
			sb.WriteRune(r)
		}
	}
}

// Writes FITS binary body data in network byte order. Values are converted to the sample type
// first, NaNs are replaced with zeros for compatibility with other software
func (fits *Image) writeData(w io.Writer, bitpix int32, bzero float32) error {
	bytesPerValue := int(abs32(bitpix) / 8)
	valuesPerBuf := bufLen / bytesPerValue
	buf := make([]byte, valuesPerBuf*bytesPerValue)
	data := fits.Data

	for block := 0; block < len(data); block += valuesPerBuf {
		size := len(data) - block
		if size > valuesPerBuf {
			size = valuesPerBuf
		}

		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if math.IsNaN(float64(d)) {
				d = 0
			}
			v := float64(fits.Type.Convert(float64(d))) - float64(bzero)
			b := buf[offset*bytesPerValue:]
			switch bitpix {
			case 8:
				b[0] = byte(v)
			case 16:
				binary.BigEndian.PutUint16(b, uint16(int16(v)))
			case 32:
				binary.BigEndian.PutUint32(b, uint32(int32(v)))
			default:
				binary.BigEndian.PutUint32(b, math.Float32bits(float32(v)))
			}
		}
		if _, err := w.Write(buf[:size*bytesPerValue]); err != nil {
			return err
		}
	}
	return nil
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header float32 value. Always includes a decimal point, so readers see a float
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	s := fmt.Sprintf("%.6f", value)
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, s, comment)
}

// Writes a FITS history line
func writeHistory(w io.Writer, text string) {
	if len(text) > 72 {
		text = text[:72]
	}
	fmt.Fprintf(w, "HISTORY %-72s", text)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", 80-3))
}
