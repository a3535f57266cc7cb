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

package stretch

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/mlnoga/framecal/internal/calib"
	"github.com/mlnoga/framecal/internal/fits"
	"github.com/mlnoga/framecal/internal/ops"
)

func newGradient() *fits.Image {
	f := fits.NewImageFromNaxisn([]int32{256, 1}, fits.SampleUint8, nil)
	for i := range f.Data {
		f.Data[i] = float32(i)
	}
	return f
}

func TestOpLevelsInactiveIsPassthrough(t *testing.T) {
	c := ops.NewContext(io.Discard)
	f := newGradient()
	out, err := NewOpLevelsDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	if out != f {
		t.Errorf("inactive levels operator returned a new image")
	}
}

func TestOpLevelsMatchesAdjustLevels(t *testing.T) {
	c := ops.NewContext(io.Discard)
	f := newGradient()
	out, err := NewOpLevels(true, 100, 1.2, 240, 8).Apply(f, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	want := calib.AdjustLevels(f, calib.NewLevels(100, 1.2, 240), 8)
	for i := range want.Data {
		if out.Data[i] != want.Data[i] {
			t.Errorf("out[%d]=%v; want %v", i, out.Data[i], want.Data[i])
		}
	}
	if out.Type != fits.SampleUint8 {
		t.Errorf("type=%v; want %v", out.Type, fits.SampleUint8)
	}
}

func TestOpLevelsRejectsEqualMinMax(t *testing.T) {
	c := ops.NewContext(io.Discard)
	if _, err := NewOpLevels(true, 50, 1, 50, 8).Apply(newGradient(), c); err == nil {
		t.Errorf("min==max accepted")
	}
	var op OpLevels
	if err := json.Unmarshal([]byte(`{"type":"levels","min":10,"gamma":0,"max":200}`), &op); err == nil {
		t.Errorf("gamma==0 accepted")
	}
}

func TestOpBrightnessContrast(t *testing.T) {
	c := ops.NewContext(io.Discard)
	f := newGradient()
	out, err := NewOpBrightnessContrast(10, 0).Apply(f, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	for i, v := range out.Data {
		want := float32(i + 10)
		if want > 255 {
			want = 255
		}
		if v != want {
			t.Errorf("out[%d]=%v; want %v", i, v, want)
		}
	}

	if _, err := NewOpBrightnessContrast(0, 259).Apply(f, c); err == nil {
		t.Errorf("contrast 259 accepted")
	}
}

func TestOpGamma(t *testing.T) {
	c := ops.NewContext(io.Discard)
	f := newGradient()
	out, err := NewOpGamma(2, 0, 255).Apply(f, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	for i, v := range out.Data {
		want := float32(calib.GammaCorrect(float64(i), 2, 0, 255))
		if v != want {
			t.Errorf("out[%d]=%v; want %v", i, v, want)
		}
	}

	if _, err := NewOpGamma(2, 10, 10).Apply(f, c); err == nil {
		t.Errorf("white==black accepted")
	}
}

func TestStretchSequenceFromJSON(t *testing.T) {
	raw := []byte(`{"type":"seq","steps":[
		{"type":"levels","min":100,"gamma":1.2,"max":240},
		{"type":"brightnessContrast","brightness":0,"contrast":0},
		{"type":"gamma","active":false}
	]}`)
	var seq ops.OpSequence
	if err := json.Unmarshal(raw, &seq); err != nil {
		t.Fatalf("err=%s", err)
	}
	if len(seq.Steps) != 3 {
		t.Fatalf("steps=%d; want 3", len(seq.Steps))
	}
	if _, ok := seq.Steps[0].(*OpLevels); !ok {
		t.Errorf("step 0 is %T; want *OpLevels", seq.Steps[0])
	}
	if seq.Steps[2].IsActive() {
		t.Errorf("step 2 active; want inactive")
	}

	c := ops.NewContext(io.Discard)
	in := newGradient()
	outs, err := seq.MakePromises([]ops.Promise{func() (*fits.Image, error) { return in, nil }}, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	images, err := ops.MaterializeAll(outs, c.MaxThreads, false)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	want := calib.AdjustLevels(in, calib.NewLevels(100, 1.2, 240), 8)
	for i := range want.Data {
		if images[0].Data[i] != want.Data[i] {
			t.Errorf("out[%d]=%v; want %v", i, images[0].Data[i], want.Data[i])
		}
	}

	if _, err := json.Marshal(&seq); err != nil {
		t.Errorf("marshal err=%s", err)
	}

	bad := []byte(`{"type":"seq","steps":[{"type":"gamma","gamma":2,"black":5,"white":5}]}`)
	if err := json.Unmarshal(bad, &seq); err == nil {
		t.Errorf("sequence with invalid gamma accepted")
	}
}
