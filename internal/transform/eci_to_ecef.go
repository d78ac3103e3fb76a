// Package transform provides coordinate frame conversions for the ISS
// ephemeris: ECI (J2000) to ECEF, ECEF to WGS-84 geodetic, and topocentric
// look angles for a ground observer.
//
// The ECI rotation uses GMST only, ignoring polar motion and the small
// J2000/true-of-date offset. The resulting error is tens of meters, well
// under the accuracy of the ephemeris itself.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// ECIToECEFAt rotates an ECI position into the Earth-fixed ECEF frame at
// time t. Coordinates are kilometers in and out.
func ECIToECEFAt(x, y, z float64, t time.Time) (float64, float64, float64) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	ecef := satellite.ECIToECEF(satellite.Vector3{X: x, Y: y, Z: z}, gmst)

	return ecef.X, ecef.Y, ecef.Z
}
