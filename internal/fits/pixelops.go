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
	"runtime"

	"github.com/klauspost/cpuid"
)

//////////////////////////////////////////////////////////////////
// CPU-limited pixel operations. Parallelized across CPUs
//////////////////////////////////////////////////////////////////

// A row function. Processes rows [lower, upper) of an image, reading from an immutable
// source and writing only to the given rows of a separate destination.
type RowFunction func(lower, upper int)

// A pixel function, mapping one source sample to one destination sample
type PixelFunction func(v float32) float32

// Returns the number of worker goroutines to use for pixel operations
func NumWorkers() int {
	n := cpuid.CPU.LogicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if p := runtime.GOMAXPROCS(0); p < n {
		n = p
	}
	return n
}

// Apply given row function to the given number of rows. Uses thread parallelism across all available CPUs.
// Row ranges passed to the function are disjoint.
func ApplyRowFunction(rows int, rf RowFunction) {
	workers := NumWorkers()

	// split into 8*workers work packages, limit parallelism to workers
	numBatches := 8 * workers
	batchSize := (rows + numBatches - 1) / numBatches
	if batchSize < 1 {
		batchSize = 1
	}
	sem := make(chan bool, workers)
	for lower := 0; lower < rows; lower += batchSize {
		upper := lower + batchSize
		if upper > rows {
			upper = rows
		}

		sem <- true
		go func(lower, upper int) {
			rf(lower, upper)
			<-sem
		}(lower, upper)
	}

	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
}

// Maps every sample of src through pf into dst. Slices must be of equal length, and may not overlap
// unless they are identical.
func MapPixels(dst, src []float32, pf PixelFunction) {
	width := 4096
	rows := (len(src) + width - 1) / width
	ApplyRowFunction(rows, func(lower, upper int) {
		end := upper * width
		if end > len(src) {
			end = len(src)
		}
		for i := lower * width; i < end; i++ {
			dst[i] = pf(src[i])
		}
	})
}
