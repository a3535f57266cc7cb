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

package ops

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/framecal/internal/fits"
)

func constPromise(f *fits.Image) Promise {
	return func() (*fits.Image, error) { return f, nil }
}

func TestIsPathAllowed(t *testing.T) {
	c := NewContext(io.Discard)
	tests := []struct {
		path string
		want bool
	}{
		{"frame.fits", true},
		{"sub/frame.fits", true},
		{"/etc/passwd", false},
		{"../frame.fits", false},
		{"sub/../../frame.fits", false},
	}
	for _, test := range tests {
		if got := c.IsPathAllowed(test.path); got != test.want {
			t.Errorf("IsPathAllowed(%s)=%v; want %v", test.path, got, test.want)
		}
	}
	c.AllowAbs = true
	if !c.IsPathAllowed("/tmp/frame.fits") {
		t.Errorf("absolute path rejected with AllowAbs")
	}
}

func TestRemoveNils(t *testing.T) {
	a, b := fits.NewImage(), fits.NewImage()
	got := RemoveNils([]*fits.Image{nil, a, nil, b, nil})
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("RemoveNils=%v; want [a b]", got)
	}
}

func TestMaterializeAllCollectsErrors(t *testing.T) {
	f := fits.NewImageFromNaxisn([]int32{1, 1}, fits.SampleUint8, nil)
	failing := func() (*fits.Image, error) { return nil, errors.New("broken") }
	outs, err := MaterializeAll([]Promise{constPromise(f), failing, constPromise(f)}, 2, false)
	if err == nil {
		t.Errorf("err=nil; want broken")
	}
	if len(outs) != 2 {
		t.Errorf("len(outs)=%d; want 2", len(outs))
	}
}

func TestFramesInFlight(t *testing.T) {
	c := &Context{MaxThreads: 8, FrameMB: 64}
	if n := c.FramesInFlight(1024 * 1024); n != 4 {
		t.Errorf("FramesInFlight(1M)=%d; want 4", n)
	}
	if n := c.FramesInFlight(64 * 1024 * 1024); n != 1 {
		t.Errorf("FramesInFlight(64M)=%d; want 1", n)
	}
	if n := c.FramesInFlight(16); n != 8 {
		t.Errorf("FramesInFlight(16)=%d; want 8", n)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	c := NewContext(io.Discard)
	c.AllowAbs = true

	f := fits.NewImageFromNaxisn([]int32{3, 2}, fits.SampleUint16, []float32{0, 1, 1000, 32768, 60000, 65535})
	f.ID = 7
	pattern := filepath.Join(dir, "out%d.fits")
	seq := NewOpSequence(NewOpSave(pattern, ""), NewOpSave(filepath.Join(dir, "out%d.png"), "heat"))
	outs, err := seq.MakePromises([]Promise{constPromise(f)}, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	if _, err := MaterializeAll(outs, 1, true); err != nil {
		t.Fatalf("err=%s", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out7.png")); err != nil {
		t.Errorf("png not written: %s", err)
	}

	loads, err := NewOpLoadMany([]string{filepath.Join(dir, "*.fits")}).MakePromises(nil, c)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	images, err := MaterializeAll(loads, 1, false)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	if len(images) != 1 {
		t.Fatalf("loaded %d images; want 1", len(images))
	}
	g := images[0]
	if g.Type != fits.SampleUint16 || !fits.EqualInt32Slice(g.Naxisn, f.Naxisn) {
		t.Errorf("type=%v naxisn=%v; want %v %v", g.Type, g.Naxisn, fits.SampleUint16, f.Naxisn)
	}
	for i := range f.Data {
		if g.Data[i] != f.Data[i] {
			t.Errorf("data[%d]=%v; want %v", i, g.Data[i], f.Data[i])
		}
	}
}

func TestLoadRejectsPathOutsideTree(t *testing.T) {
	c := NewContext(io.Discard)
	if _, err := NewOpLoad(0, "../secret.fits").MakePromises(nil, c); err == nil {
		t.Errorf("load outside tree accepted")
	}
}

func TestForEachJSON(t *testing.T) {
	raw := []byte(`{"type":"forEach","operation":{"type":"save","filePattern":"x%d.png","palette":"ice"}}`)
	op, err := UnmarshalOperator(raw)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	fe, ok := op.(*OpForEach)
	if !ok {
		t.Fatalf("got %T; want *OpForEach", op)
	}
	save, ok := fe.Operation.(*OpSave)
	if !ok {
		t.Fatalf("operation is %T; want *OpSave", fe.Operation)
	}
	if save.FileName(3) != "x3.png" || save.Palette != "ice" {
		t.Errorf("fileName=%s palette=%s; want x3.png ice", save.FileName(3), save.Palette)
	}
	if _, err := json.Marshal(fe); err != nil {
		t.Errorf("marshal err=%s", err)
	}

	if _, err := UnmarshalOperator([]byte(`{"type":"nonsense"}`)); err == nil {
		t.Errorf("unknown type accepted")
	}
}
