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
	"math"
	"testing"

	"github.com/mlnoga/framecal/internal/fits"
)

func TestNewFlatFieldReplacesLowSamples(t *testing.T) {
	ref := newUniformImage(fits.SampleUint8, 4, 4, 100)
	ref.Data[6] = 10

	ff := NewFlatField(ref)
	if ff.Avg() != 100 {
		t.Errorf("avg=%f; want 100", ff.Avg())
	}
	for i, v := range ff.Frame().Data {
		if v != 100 {
			t.Errorf("flat[%d]=%f; want 100", i, v)
		}
	}
	if ref.Data[6] != 10 {
		t.Errorf("reference modified: ref[6]=%f; want 10", ref.Data[6])
	}

	target := newUniformImage(fits.SampleUint8, 4, 4, 50)
	res := ApplyFlat(target, ff)
	for i, v := range res.Data {
		if v != 50 {
			t.Errorf("res[%d]=%f; want 50", i, v)
		}
	}
}

func TestNewFlatFieldMedianOfEvenCount(t *testing.T) {
	ref := newTestImage(fits.SampleUint16, []float32{100, 200}, []float32{300, 400})
	ff := NewFlatField(ref)
	if ff.Avg() != 250 {
		t.Errorf("avg=%f; want 250", ff.Avg())
	}
	// 100 is below 250/2 and replaced, 200 is kept
	want := []float32{250, 200, 300, 400}
	for i, v := range ff.Frame().Data {
		if v != want[i] {
			t.Errorf("flat[%d]=%f; want %f", i, v, want[i])
		}
	}
}

func TestApplyFlatUniformIsIdentity(t *testing.T) {
	ff := NewFlatField(newUniformImage(fits.SampleUint8, 256, 2, 80))
	f := newGradientImage(2)
	res := ApplyFlat(f, ff)
	for i, v := range res.Data {
		if v != f.Data[i] {
			t.Errorf("res[%d]=%f; want %f", i, v, f.Data[i])
		}
	}
}

func TestApplyFlatMismatchIsNoOp(t *testing.T) {
	ff := NewFlatField(newUniformImage(fits.SampleUint8, 4, 4, 100))
	f := newUniformImage(fits.SampleUint8, 4, 3, 17)
	if res := ApplyFlat(f, ff); res != f {
		t.Errorf("mismatched flat returned a new image; want the input")
	}
	if f.Data[0] != 17 {
		t.Errorf("f[0]=%f; want 17", f.Data[0])
	}
	if res := ApplyFlat(f, nil); res != f {
		t.Errorf("nil flat returned a new image; want the input")
	}
}

func TestApplyFlatClipsToSampleType(t *testing.T) {
	ref := newTestImage(fits.SampleUint8, []float32{100, 100, 60, 100})
	ff := NewFlatField(ref)
	f := newTestImage(fits.SampleUint8, []float32{200, 99, 200, 0})
	res := ApplyFlat(f, ff)
	want := []float32{200, 99, 255, 0} // 100*200/60=333 clipped
	for i, w := range want {
		if res.Data[i] != w {
			t.Errorf("res[%d]=%f; want %f", i, res.Data[i], w)
		}
	}

	f16 := newTestImage(fits.SampleUint16, []float32{200, 99, 200, 0})
	res = ApplyFlat(f16, ff)
	if res.Data[2] != 333 {
		t.Errorf("uint16 res[2]=%f; want 333", res.Data[2])
	}
	if res.Type != fits.SampleUint16 {
		t.Errorf("type=%v; want %v", res.Type, fits.SampleUint16)
	}
}

func TestNewFlatFieldWithBlankSamples(t *testing.T) {
	nan := float32(math.NaN())
	ref := newTestImage(fits.SampleFloat32, []float32{100, nan}, []float32{100, 100})
	ff := NewFlatField(ref)
	if ff.Avg() != 100 {
		t.Errorf("avg=%f; want 100", ff.Avg())
	}
	for i, v := range ff.Frame().Data {
		if v != 100 {
			t.Errorf("flat[%d]=%f; want 100", i, v)
		}
	}

	res := ApplyFlat(newUniformImage(fits.SampleUint8, 2, 2, 80), ff)
	for i, v := range res.Data {
		if v != 80 {
			t.Errorf("res[%d]=%f; want 80", i, v)
		}
	}
}

func TestFlatFieldOfAllBlankSamples(t *testing.T) {
	nan := float32(math.NaN())
	ff := NewFlatField(newTestImage(fits.SampleFloat32, []float32{nan, nan}))
	if !math.IsNaN(float64(ff.Avg())) {
		t.Errorf("avg=%f; want NaN", ff.Avg())
	}
	// NaN results are clipped to zero for integral sample types
	res := ApplyFlat(newUniformImage(fits.SampleUint8, 2, 1, 80), ff)
	for i, v := range res.Data {
		if v != 0 {
			t.Errorf("res[%d]=%f; want 0", i, v)
		}
	}
}

func TestFlatFieldOfEmptyFrame(t *testing.T) {
	empty := fits.NewImageFromNaxisn([]int32{0, 0}, fits.SampleUint8, nil)
	ff := NewFlatField(empty)
	if ff.Avg() != 0 {
		t.Errorf("avg=%f; want 0", ff.Avg())
	}
	res := ApplyFlat(fits.NewImageFromNaxisn([]int32{0, 0}, fits.SampleUint8, nil), ff)
	if len(res.Data) != 0 {
		t.Errorf("len(res)=%d; want 0", len(res.Data))
	}

	zeroWidth := fits.NewImageFromNaxisn([]int32{0, 3}, fits.SampleUint8, nil)
	res = ApplyFlat(zeroWidth, NewFlatField(zeroWidth))
	if len(res.Data) != 0 {
		t.Errorf("len(res)=%d; want 0", len(res.Data))
	}
}
