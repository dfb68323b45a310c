package util

import "math"

// RoundMoney rounds to two decimal places, half away from zero.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToMinorUnits converts a major-unit amount (rupees) to minor units (paise).
func ToMinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FromMinorUnits converts minor units back to a major-unit amount.
func FromMinorUnits(v int64) float64 {
	return float64(v) / 100
}
