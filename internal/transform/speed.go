package transform

import "math"

// Speed returns the magnitude of a velocity vector. For km/s components
// the result is km/s.
func Speed(vx, vy, vz float64) float64 {
	return math.Sqrt(vx*vx + vy*vy + vz*vz)
}
