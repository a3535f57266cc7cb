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

package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/framecal/internal/fits"
)

func init() { gin.SetMode(gin.TestMode) }

// Changes into a fresh temporary directory, as the API only accepts relative paths
func chdirTemp(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("err=%s", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func writeFrame(t *testing.T, fileName string, data ...float32) {
	f := fits.NewImageFromNaxisn([]int32{int32(len(data)), 1}, fits.SampleUint8, data)
	if err := f.WriteFile(fileName); err != nil {
		t.Fatalf("err=%s", err)
	}
}

func TestPing(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	NewRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("code=%d; want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("body=%s; want pong", w.Body.String())
	}
}

func TestStats(t *testing.T) {
	chdirTemp(t)
	writeFrame(t, "a.fits", 1, 2, 3, 4)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stats", strings.NewReader(`{"filePatterns":["*.fits"]}`))
	req.Header.Set("Content-Type", "application/json")
	NewRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s; want %d", w.Code, w.Body.String(), http.StatusOK)
	}
	var res []frameStats
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("err=%s", err)
	}
	if len(res) != 1 || res[0].Min != 1 || res[0].Max != 4 || res[0].Median != 2.5 {
		t.Errorf("stats=%+v; want one frame with min 1 max 4 median 2.5", res)
	}
}

func TestCorrect(t *testing.T) {
	chdirTemp(t)
	writeFrame(t, "light0.fits", 10, 20, 30, 40)

	body := `{"filePatterns":["light*.fits"], "sequence":{"type":"seq","steps":[
		{"type":"brightnessContrast","brightness":5},
		{"type":"save","filePattern":"out%d.fits"}
	]}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/correct", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	NewRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d; want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "error") {
		t.Fatalf("body=%s", w.Body.String())
	}

	f, err := fits.NewImageFromFile("out0.fits", 0, os.Stdout)
	if err != nil {
		t.Fatalf("err=%s", err)
	}
	want := []float32{15, 25, 35, 45}
	for i, v := range want {
		if f.Data[i] != v {
			t.Errorf("data[%d]=%v; want %v", i, f.Data[i], v)
		}
	}
}

func TestCorrectRejectsBadSequence(t *testing.T) {
	w := httptest.NewRecorder()
	body := `{"filePatterns":["*.fits"], "sequence":{"type":"seq","steps":[{"type":"levels","min":5,"gamma":1,"max":5}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/correct", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	NewRouter().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code=%d; want %d", w.Code, http.StatusBadRequest)
	}
}
