package oem

import "time"

// Epoch layouts. The feed timestamps epochs in day-of-year form
// ("2024-047T12:00:00.000Z"); the API serves the normalized calendar form
// with second precision and no zone suffix.
const (
	FeedEpochLayout = "2006-002T15:04:05.000Z"
	EpochLayout     = "2006-01-02T15:04:05"
)

// StateVector is one ephemeris sample: the ISS position (km, J2000 frame)
// and velocity (km/s) at an epoch.
type StateVector struct {
	Epoch time.Time
	X     float64
	Y     float64
	Z     float64
	XDot  float64
	YDot  float64
	ZDot  float64
}

// EpochString returns the normalized epoch form used as the sample's
// identifier across the API.
func (sv StateVector) EpochString() string {
	return sv.Epoch.UTC().Format(EpochLayout)
}

// Header holds the OEM header block.
type Header struct {
	CreationDate string
	Originator   string
}

// Metadata holds the OEM segment metadata block.
type Metadata struct {
	ObjectName string
	ObjectID   string
	CenterName string
	RefFrame   string
	TimeSystem string
	StartTime  string
	StopTime   string
}

// EpochRange represents the first and last epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// DataSet represents one complete parsed ephemeris. It is immutable after
// construction; refreshes build a new DataSet and swap it into the Store.
type DataSet struct {
	Source       string
	FetchedAt    time.Time
	Header       Header
	Metadata     Metadata
	Comments     []string
	EpochRange   EpochRange
	StateVectors []StateVector
}
