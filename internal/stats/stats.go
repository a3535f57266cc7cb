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

package stats

import (
	"fmt"
	"math"
	"sync"

	"github.com/mlnoga/framecal/internal/qsort"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistics of a frame. Values are calculated lazily on first access and cached.
// Safe for concurrent use.
type Stats struct {
	data  []float32
	width int32

	mutex     sync.Mutex
	hasMMM    bool
	min       float32
	max       float32
	mean      float32
	hasStdDev bool
	stdDev    float32
	hasMedian bool
	median    float32
}

// Creates statistics for the given data. Nothing is calculated yet
func NewStats(data []float32, width int32) *Stats {
	return &Stats{data: data, width: width}
}

// Creates statistics for the given data with already known minimum, maximum and mean
func NewStatsWithMMM(data []float32, width int32, min, max, mean float32) *Stats {
	return &Stats{data: data, width: width, hasMMM: true, min: min, max: max, mean: mean}
}

func (s *Stats) Min() float32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calcMMMStdDev()
	return s.min
}

func (s *Stats) Max() float32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calcMMMStdDev()
	return s.max
}

func (s *Stats) Mean() float32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calcMMMStdDev()
	return s.mean
}

func (s *Stats) StdDev() float32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calcMMMStdDev()
	return s.stdDev
}

// Median of the data, averaging the two middle values for even lengths
func (s *Stats) Median() float32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.hasMedian {
		s.median = Median(s.data)
		s.hasMedian = true
	}
	return s.median
}

// Must be called with the mutex held
func (s *Stats) calcMMMStdDev() {
	if s.hasMMM && s.hasStdDev {
		return
	}
	if len(s.data) == 0 {
		s.min, s.max, s.mean, s.stdDev = 0, 0, 0, 0
		s.hasMMM, s.hasStdDev = true, true
		return
	}
	d := make([]float64, len(s.data))
	for i, v := range s.data {
		d[i] = float64(v)
	}
	mean, stdDev := stat.MeanStdDev(d, nil)
	if !s.hasMMM {
		s.min, s.max, s.mean = float32(floats.Min(d)), float32(floats.Max(d)), float32(mean)
		s.hasMMM = true
	}
	if math.IsNaN(stdDev) { // single sample
		stdDev = 0
	}
	s.stdDev, s.hasStdDev = float32(stdDev), true
}

func (s *Stats) String() string {
	return fmt.Sprintf("min %.6g max %.6g mean %.6g stdDev %.6g median %.6g",
		s.Min(), s.Max(), s.Mean(), s.StdDev(), s.Median())
}

// Median of the given data, ignoring NaN samples. Works on a copy, leaving data unchanged
func Median(data []float32) float32 {
	tmp := append([]float32(nil), data...)
	return qsort.QSelectMedianFloat32(tmp)
}

// Calculate histogram of data between min and max into given bins. Values outside [min, max] are ignored
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min {
		if len(bins) > 0 {
			bins[0] = int32(len(data))
		}
		return
	}
	scale := float32(len(bins)-1) / (max - min)
	for _, d := range data {
		if d < min || d > max || d != d {
			continue
		}
		bins[int((d-min)*scale)]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x float32, y int32) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	if len(bins) < 2 {
		return min, maxValue
	}
	x = min + float32(maxIndex)*(max-min)/float32(len(bins)-1)
	return x, maxValue
}
