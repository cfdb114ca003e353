// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package similarity

import "math"

func missing(x float64) bool {
	return math.IsNaN(x) || math.IsInf(x, 0)
}

func allMissing(values []float64) bool {
	for _, x := range values {
		if !missing(x) {
			return false
		}
	}
	return true
}

// Prepare imputes, standardizes and L2-normalizes vectors into new rows.
// All vectors must have length dim. The input is not modified.
//
// A column with no present value imputes 0. A column with zero variance
// becomes 0 after standardization. A row that is all zeros stays zero.
func Prepare(vectors []Vector, dim int) [][]float64 {
	n := len(vectors)
	rows := make([][]float64, n)
	for i, v := range vectors {
		rows[i] = make([]float64, dim)
		copy(rows[i], v.Values)
	}

	for c := 0; c < dim; c++ {
		var sum float64
		var present int
		for _, r := range rows {
			if !missing(r[c]) {
				sum += r[c]
				present++
			}
		}
		mean := 0.0
		if present > 0 {
			mean = sum / float64(present)
		}

		// Impute, then population statistics over all n rows.
		var total float64
		for _, r := range rows {
			if missing(r[c]) {
				r[c] = mean
			}
			total += r[c]
		}
		colMean := total / float64(n)

		var ss float64
		for _, r := range rows {
			d := r[c] - colMean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(n))

		for _, r := range rows {
			if std == 0 {
				r[c] = 0
			} else {
				r[c] = (r[c] - colMean) / std
			}
		}
	}

	for _, r := range rows {
		var norm float64
		for _, x := range r {
			norm += x * x
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for c := range r {
			r[c] /= norm
		}
	}
	return rows
}
