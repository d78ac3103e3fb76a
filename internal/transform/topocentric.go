package transform

import "math"

// ObserverPosition is a ground station fixed in the ECEF frame. The ECEF
// coordinates are derived once at construction; pass prediction reuses the
// same observer against every ephemeris sample.
type ObserverPosition struct {
	LatRad, LonRad, AltKm float64 // geodetic (radians, kilometers above ellipsoid)
	ECEFx, ECEFy, ECEFz   float64 // kilometers
}

// LookAngles is a satellite's direction as seen from an observer.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// NewObserverPosition builds an observer from degrees latitude/longitude
// and meters of altitude above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altM float64) ObserverPosition {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	altKm := altM / 1000.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		ECEFx:  (N + altKm) * cosLat * cosLon,
		ECEFy:  (N + altKm) * cosLat * sinLon,
		ECEFz:  (N*(1-wgs84E2) + altKm) * sinLat,
	}
}

// ECEFToLookAngles computes azimuth, elevation, and range from an observer
// to a satellite position in ECEF kilometers. The range vector is rotated
// into the observer's SEZ (South-East-Zenith) frame (Vallado, Section 4.4).
func ECEFToLookAngles(obs ObserverPosition, satX, satY, satZ float64) LookAngles {
	rx := satX - obs.ECEFx
	ry := satY - obs.ECEFy
	rz := satZ - obs.ECEFz

	sinLat := math.Sin(obs.LatRad)
	cosLat := math.Cos(obs.LatRad)
	sinLon := math.Sin(obs.LonRad)
	cosLon := math.Cos(obs.LonRad)

	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	rangeMag := math.Sqrt(south*south + east*east + zenith*zenith)

	// Rounding can push the ratio a hair past +/-1 near zenith, so clamp
	// before Asin.
	sinEl := zenith / rangeMag
	if sinEl > 1 {
		sinEl = 1
	} else if sinEl < -1 {
		sinEl = -1
	}
	el := math.Asin(sinEl)

	// Azimuth clockwise from North. In SEZ, North is the -South direction,
	// so az = atan2(east, -south).
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180.0 / math.Pi,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rangeMag,
	}
}
