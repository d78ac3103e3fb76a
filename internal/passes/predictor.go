// Package passes predicts when the ISS stands above an observer's horizon.
//
// Prediction walks the tabulated ephemeris directly: each state vector is
// rotated to ECEF and checked against the observer's minimum elevation.
// Resolution is therefore the ephemeris sample spacing; state vectors are
// never interpolated, so a pass shorter than the spacing can be missed.
package passes

import (
	"context"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`  // km above the WGS-84 ellipsoid
	Elevation float64   `json:"elevation"` // degrees above observer's horizon (0-90)
}

// PassEvent describes a single pass over an observer location. Start and
// end land on ephemeris samples: StartTime is the first sample above the
// elevation threshold, EndTime the last.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     transform.ObserverPosition
	Samples      []oem.StateVector // epoch-ordered ephemeris
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int     // 0 = no cap
}

// Predict scans the ephemeris between Start and Start+HorizonHours and
// returns the passes found, in time order.
func Predict(ctx context.Context, req Request) []PassEvent {
	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))

	var (
		passes  []PassEvent
		current *PassEvent
	)

	for _, sv := range req.Samples {
		if ctx.Err() != nil {
			break
		}
		if sv.Epoch.Before(req.Start) {
			continue
		}
		if sv.Epoch.After(end) {
			break
		}

		ex, ey, ez := transform.ECIToECEFAt(sv.X, sv.Y, sv.Z, sv.Epoch)
		la := transform.ECEFToLookAngles(req.Observer, ex, ey, ez)

		if la.ElevationDeg < req.MinElevation {
			if current != nil {
				passes = append(passes, finalize(current))
				current = nil
				if req.MaxPasses > 0 && len(passes) >= req.MaxPasses {
					return passes
				}
			}
			continue
		}

		if current == nil {
			current = &PassEvent{
				StartTime:        sv.Epoch,
				MaxElevationTime: sv.Epoch,
				MaxElevation:     la.ElevationDeg,
				AzimuthAtMax:     la.AzimuthDeg,
				StartAzimuth:     la.AzimuthDeg,
			}
		} else if la.ElevationDeg > current.MaxElevation {
			current.MaxElevation = la.ElevationDeg
			current.MaxElevationTime = sv.Epoch
			current.AzimuthAtMax = la.AzimuthDeg
		}

		current.EndTime = sv.Epoch
		current.EndAzimuth = la.AzimuthDeg

		geo := transform.ECEFToGeodetic(ex, ey, ez)
		current.GroundTrack = append(current.GroundTrack, GroundTrackPoint{
			Time:      sv.Epoch,
			Latitude:  geo.LatDeg,
			Longitude: geo.LonDeg,
			Altitude:  geo.AltKm,
			Elevation: la.ElevationDeg,
		})
	}

	// Still above threshold when the data or horizon ran out.
	if current != nil {
		passes = append(passes, finalize(current))
	}

	return passes
}

func finalize(p *PassEvent) PassEvent {
	p.DurationSeconds = p.EndTime.Sub(p.StartTime).Seconds()
	return *p
}
