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

package qsort

import "math"

// Select median of an array of float32. Partially reorders the array.
// For even lengths, returns the mean of the two middle elements.
// IEEE NaNs are treated as blank samples and ignored. Returns NaN if all samples are blank,
// and 0 for an empty array
func QSelectMedianFloat32(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	a = CompactNaNsFloat32(a)
	if len(a) == 0 {
		return float32(math.NaN())
	}
	upper := QSelectFloat32(a, (len(a)>>1)+1)
	if len(a)&1 != 0 {
		return upper
	}
	// after selection, all elements left of the upper median are less or equal
	lower := a[0]
	for _, v := range a[1 : len(a)>>1] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Moves all non-NaN values to the front of the array, preserving their order,
// and returns the prefix holding them
func CompactNaNsFloat32(a []float32) []float32 {
	o := 0
	for _, v := range a {
		if v == v {
			a[o] = v
			o++
		}
	}
	return a[:o]
}

// Select kth lowest element from an array of float32, counting from 1. Partially reorders the array,
// such that a[k-1] holds the result, and all elements before it are less or equal.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	k-- // zero-based target index
	for left < right {
		// partition around middle pivot
		mid := (left + right) >> 1
		pivot := a[mid]
		l, r := left-1, right+1
		for {
			for {
				l++
				if a[l] >= pivot {
					break
				}
			}
			for {
				r--
				if a[r] <= pivot {
					break
				}
			}
			if l >= r {
				break
			}
			a[l], a[r] = a[r], a[l]
		}

		if k <= r {
			right = r
		} else {
			left = r + 1
		}
	}
	return a[k]
}
