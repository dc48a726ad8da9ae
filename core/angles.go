package core

import "math"

// WrapAngle normalises an angle to (-π, π]. Non-finite input maps to 0.
func WrapAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	angle = math.Mod(angle, 2*math.Pi)
	if angle > math.Pi {
		angle -= 2 * math.Pi
	} else if angle <= -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}

// AngleDiff returns the signed shortest rotation from `from` to `to`.
func AngleDiff(to, from float64) float64 {
	return WrapAngle(to - from)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampAbs(v, limit float64) float64 {
	return clamp(v, -limit, limit)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
