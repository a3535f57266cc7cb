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
	"testing"

	"github.com/mlnoga/framecal/internal/fits"
	"github.com/valyala/fastrand"
)

// Creates a test image of width 3 whose rows hold the given values
func newRowImage(rowValues ...float32) *fits.Image {
	rows := make([][]float32, len(rowValues))
	for i, v := range rowValues {
		rows[i] = []float32{v, v + 0.25, v + 0.5}
	}
	return newTestImage(fits.SampleFloat32, rows...)
}

func checkRows(t *testing.T, name string, f *fits.Image, want []float32) {
	t.Helper()
	if f.Height() != len(want) {
		t.Fatalf("%s: height=%d; want %d", name, f.Height(), len(want))
	}
	for r, w := range want {
		for c, off := range []float32{0, 0.25, 0.5} {
			expect := w + off
			if w == 0 {
				expect = 0
			}
			if got := f.At(c, r); got != expect {
				t.Errorf("%s: row %d col %d=%f; want %f", name, r, c, got, expect)
			}
		}
	}
}

func TestDeinterlaceOdd(t *testing.T) {
	checkRows(t, "4 rows", DeinterlaceOdd(newRowImage(1, 2, 3, 4)), []float32{1, 3, 3, 0})
	checkRows(t, "5 rows", DeinterlaceOdd(newRowImage(1, 2, 3, 4, 5)), []float32{1, 3, 3, 5, 0})
	checkRows(t, "1 row", DeinterlaceOdd(newRowImage(7)), []float32{0})
}

func TestDeinterlaceEven(t *testing.T) {
	checkRows(t, "4 rows", DeinterlaceEven(newRowImage(1, 2, 3, 4)), []float32{2, 2, 4, 4})
	checkRows(t, "5 rows", DeinterlaceEven(newRowImage(1, 2, 3, 4, 5)), []float32{2, 2, 4, 4, 5})
	checkRows(t, "1 row", DeinterlaceEven(newRowImage(7)), []float32{7})
}

func TestDeinterlaceBlend(t *testing.T) {
	f := newRowImage(1, 2, 3, 4)
	checkRows(t, "increasing", DeinterlaceBlend(f), []float32{2, 3, 4, 4})
	checkRows(t, "input", f, []float32{1, 2, 3, 4})

	f = newRowImage(8, 6, 4, 2, 1)
	checkRows(t, "decreasing", DeinterlaceBlend(f), []float32{8, 6, 4, 2, 1})
}

func TestDeinterlaceBlendIsMaxOfFields(t *testing.T) {
	rng := fastrand.RNG{}
	for _, dims := range [][]int32{{7, 5}, {16, 8}, {3, 4, 3}} {
		f := fits.NewImageFromNaxisn(dims, fits.SampleUint8, nil)
		for i := range f.Data {
			f.Data[i] = float32(rng.Uint32n(256))
		}
		orig := append([]float32(nil), f.Data...)

		odd, even, blend := DeinterlaceOdd(f), DeinterlaceEven(f), DeinterlaceBlend(f)
		for i, v := range blend.Data {
			want := odd.Data[i]
			if even.Data[i] > want {
				want = even.Data[i]
			}
			if v != want {
				t.Errorf("dims %v: blend[%d]=%f; want %f", dims, i, v, want)
			}
		}
		for i, v := range f.Data {
			if v != orig[i] {
				t.Errorf("dims %v: input modified at %d", dims, i)
			}
		}
		if blend.Type != fits.SampleUint8 {
			t.Errorf("dims %v: type=%v; want %v", dims, blend.Type, fits.SampleUint8)
		}
	}
}

func TestDeinterlacePlanesAreIndependent(t *testing.T) {
	// two planes of 2 rows each, width 1
	f := fits.NewImageFromNaxisn([]int32{1, 2, 2}, fits.SampleUint8, []float32{1, 2, 3, 4})
	odd := DeinterlaceOdd(f)
	want := []float32{1, 0, 3, 0}
	for i, w := range want {
		if odd.Data[i] != w {
			t.Errorf("odd[%d]=%f; want %f", i, odd.Data[i], w)
		}
	}
}

func TestBlendLightenDimensionMismatch(t *testing.T) {
	a := newUniformImage(fits.SampleUint8, 2, 2, 1)
	b := newUniformImage(fits.SampleUint8, 2, 3, 1)
	if _, err := BlendLighten(a, b); err == nil {
		t.Errorf("err=nil; want error")
	}
}

func TestDeinterlaceEmptyFrames(t *testing.T) {
	for _, naxisn := range [][]int32{{0, 0}, {0, 4}, {3, 0}} {
		f := fits.NewImageFromNaxisn(naxisn, fits.SampleUint8, nil)
		res, err := BlendLighten(f, f)
		if err != nil {
			t.Errorf("%v: err=%s", naxisn, err)
			continue
		}
		if len(res.Data) != 0 {
			t.Errorf("%v: len=%d; want 0", naxisn, len(res.Data))
		}
		if res = DeinterlaceBlend(f); len(res.Data) != 0 {
			t.Errorf("%v: blend len=%d; want 0", naxisn, len(res.Data))
		}
	}
}
