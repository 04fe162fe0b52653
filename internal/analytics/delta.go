package analytics

import "math"

// DeltaPct is the percentage change from prev to curr, rounded to two
// decimals. A zero baseline reports 0 when nothing changed and 100 otherwise.
func DeltaPct(prev, curr float64) float64 {
	switch {
	case prev == 0 && curr == 0:
		return 0
	case prev == 0:
		return 100
	}
	return round2((curr - prev) / prev * 100)
}

// Ratio is num as a percentage of den, rounded to two decimals; 0 when den is 0
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return round2(num / den * 100)
}

// round2 rounds half away from zero
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
