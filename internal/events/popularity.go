// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package events

import (
	"math"
	"strconv"
	"strings"
)

// DefaultListenerThreshold is the listener count at which the audience part
// of the popularity score saturates.
const DefaultListenerThreshold = 10

// PopularityScore scores an event from the number of platform users who
// listen to its artist and its price range:
//
//	min(listeners/10, 1) + (100 - minPrice)/200
//
// The price term is added only when a minimum price can be parsed. The
// result is not clamped: cheap shows score above 1 and shows over 100 lower
// the score.
func PopularityScore(listeners int, priceRange string) float64 {
	return popularity(listeners, DefaultListenerThreshold, priceRange)
}

func popularity(listeners, threshold int, priceRange string) float64 {
	if threshold <= 0 {
		threshold = DefaultListenerThreshold
	}
	score := math.Min(float64(listeners)/float64(threshold), 1)
	if p, ok := ParseMinPrice(priceRange); ok {
		score += (100 - p) / 200
	}
	return score
}

// ParseMinPrice extracts the minimum price from "min-max CUR" or "min CUR".
func ParseMinPrice(priceRange string) (float64, bool) {
	head := strings.TrimSpace(strings.Split(priceRange, "-")[0])
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return 0, false
	}
	p, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}
