// Package utils contains small helpers shared across navbridge packages.
package utils

import "math"

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// NormalizeDeg reduces an angle in degrees into the half open range (-180, 180].
func NormalizeDeg(deg float64) float64 {
	reduced := math.Mod(deg, 360)
	switch {
	case reduced > 180:
		reduced -= 360
	case reduced <= -180:
		reduced += 360
	}
	return reduced
}

// AllFinite reports whether none of the values is NaN or infinite.
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
