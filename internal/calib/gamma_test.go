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

func TestGammaCorrectIdentity(t *testing.T) {
	for i := 0; i <= 255; i++ {
		got := GammaCorrect(float64(i), 1, 0, 255)
		if math.Abs(got-float64(i)) > 1e-9 {
			t.Errorf("GammaCorrect(%d, 1, 0, 255)=%f; want %d", i, got, i)
		}
	}
}

type gammaTestCase struct {
	I, Gamma, BP, WP float64
	Want             float64
}

func TestGammaCorrect(t *testing.T) {
	tcs := []gammaTestCase{
		{-10, 2.2, 0, 255, 0},      // negative clamped to zero
		{64, 2, 0, 256, 128},       // sqrt(0.25)=0.5
		{10, 2, 20, 255, 20},       // below black point is not expanded
		{20, 2, 20, 255, 20},       // at black point
		{255, 0.5, 0, 255, 255},    // white point stays
		{74, 2, 10, 266, 10 + 128}, // (64/256)^0.5*256
	}
	for _, tc := range tcs {
		got := GammaCorrect(tc.I, tc.Gamma, tc.BP, tc.WP)
		if math.Abs(got-tc.Want) > 1e-9 {
			t.Errorf("GammaCorrect(%g, %g, %g, %g)=%g; want %g", tc.I, tc.Gamma, tc.BP, tc.WP, got, tc.Want)
		}
	}
}

func TestApplyGamma(t *testing.T) {
	f := newTestImage(fits.SampleUint8, []float32{0, 64, 256 - 1})
	res := ApplyGamma(f, 2, 0, 256)
	if res.Type != fits.SampleFloat32 {
		t.Errorf("type=%v; want %v", res.Type, fits.SampleFloat32)
	}
	want := []float32{0, 128, float32(256 * math.Sqrt(255.0/256))}
	for i, w := range want {
		if math.Abs(float64(res.Data[i]-w)) > 1e-3 {
			t.Errorf("res[%d]=%f; want %f", i, res.Data[i], w)
		}
	}
	if f.Data[1] != 64 {
		t.Errorf("input modified: f[1]=%f; want 64", f.Data[1])
	}
}
