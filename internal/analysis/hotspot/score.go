package hotspot

import (
	"math"
	"sort"
	"time"
)

// SigmoidScore weights a fix by its recency. The fix time is normalized to
// t in [0, 1] between oldest and current, then mapped through
// 1 / (1 + exp(-12t + 12)), so only recent fixes contribute much.
//
// The score moves as history grows; it ranks Items against each other at
// one point in time and means nothing in isolation.
func SigmoidScore(current, oldest, fix time.Time) float64 {
	denom := current.Sub(oldest).Seconds()
	if denom <= 0 {
		return 1.0
	}

	t := 1 - current.Sub(fix).Seconds()/denom
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return 1 / (1 + math.Exp((-12*t)+12))
}

// BurstScore is the share of times that fall into the densest window of the
// given length. A single change is maximally bursty.
func BurstScore(times []time.Time, window time.Duration) float64 {
	if len(times) == 0 {
		return 0.0
	}
	if len(times) == 1 {
		return 1.0
	}

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	maxInWindow := 1
	left := 0
	for right := range sorted {
		for sorted[right].Sub(sorted[left]) > window {
			left++
		}
		if n := right - left + 1; n > maxInWindow {
			maxInWindow = n
		}
	}
	return float64(maxInWindow) / float64(len(sorted))
}
