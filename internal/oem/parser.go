// Package oem fetches, parses, and holds NASA's OEM ephemeris feed for the
// ISS. The feed is a single XML document (ndm > oem) carrying a header, one
// segment of metadata, free-text comments, and a list of state vectors.
package oem

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// XML document shape. Numeric fields carry a units attribute in the feed;
// only the character data is used.
type oemDocument struct {
	XMLName xml.Name   `xml:"ndm"`
	Header  oemHeader  `xml:"oem>header"`
	Segment oemSegment `xml:"oem>body>segment"`
}

type oemHeader struct {
	CreationDate string `xml:"CREATION_DATE"`
	Originator   string `xml:"ORIGINATOR"`
}

type oemSegment struct {
	Metadata oemMetadata `xml:"metadata"`
	Data     oemData     `xml:"data"`
}

type oemMetadata struct {
	ObjectName string `xml:"OBJECT_NAME"`
	ObjectID   string `xml:"OBJECT_ID"`
	CenterName string `xml:"CENTER_NAME"`
	RefFrame   string `xml:"REF_FRAME"`
	TimeSystem string `xml:"TIME_SYSTEM"`
	StartTime  string `xml:"START_TIME"`
	StopTime   string `xml:"STOP_TIME"`
}

type oemData struct {
	Comments     []string         `xml:"COMMENT"`
	StateVectors []oemStateVector `xml:"stateVector"`
}

type oemStateVector struct {
	Epoch string   `xml:"EPOCH"`
	X     oemValue `xml:"X"`
	Y     oemValue `xml:"Y"`
	Z     oemValue `xml:"Z"`
	XDot  oemValue `xml:"X_DOT"`
	YDot  oemValue `xml:"Y_DOT"`
	ZDot  oemValue `xml:"Z_DOT"`
}

type oemValue struct {
	Units string `xml:"units,attr"`
	Text  string `xml:",chardata"`
}

// Parse converts a raw OEM document into a DataSet. The Source and FetchedAt
// fields are left for the caller to fill.
//
// Parsing is all-or-nothing: a structurally malformed document, a
// non-numeric field, a bad epoch, or an out-of-order or duplicate epoch
// fails the whole parse. A partially usable feed is never served.
func Parse(data []byte) (*DataSet, error) {
	var doc oemDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing OEM document: %w", err)
	}

	if len(doc.Segment.Data.StateVectors) == 0 {
		return nil, fmt.Errorf("OEM document contains no state vectors")
	}

	vectors := make([]StateVector, 0, len(doc.Segment.Data.StateVectors))
	for i, raw := range doc.Segment.Data.StateVectors {
		sv, err := parseStateVector(raw)
		if err != nil {
			return nil, fmt.Errorf("state vector %d: %w", i, err)
		}
		if i > 0 && !sv.Epoch.After(vectors[i-1].Epoch) {
			return nil, fmt.Errorf("state vector %d: epoch %s not after previous %s",
				i, sv.EpochString(), vectors[i-1].EpochString())
		}
		vectors = append(vectors, sv)
	}

	var comments []string
	for _, c := range doc.Segment.Data.Comments {
		if c = strings.TrimSpace(c); c != "" {
			comments = append(comments, c)
		}
	}

	return &DataSet{
		Header: Header{
			CreationDate: doc.Header.CreationDate,
			Originator:   doc.Header.Originator,
		},
		Metadata: Metadata{
			ObjectName: doc.Segment.Metadata.ObjectName,
			ObjectID:   doc.Segment.Metadata.ObjectID,
			CenterName: doc.Segment.Metadata.CenterName,
			RefFrame:   doc.Segment.Metadata.RefFrame,
			TimeSystem: doc.Segment.Metadata.TimeSystem,
			StartTime:  doc.Segment.Metadata.StartTime,
			StopTime:   doc.Segment.Metadata.StopTime,
		},
		Comments: comments,
		EpochRange: EpochRange{
			Min: vectors[0].Epoch,
			Max: vectors[len(vectors)-1].Epoch,
		},
		StateVectors: vectors,
	}, nil
}

func parseStateVector(raw oemStateVector) (StateVector, error) {
	epoch, err := ParseEpoch(raw.Epoch)
	if err != nil {
		return StateVector{}, err
	}

	sv := StateVector{Epoch: epoch}
	for _, f := range []struct {
		name string
		val  oemValue
		dst  *float64
	}{
		{"X", raw.X, &sv.X},
		{"Y", raw.Y, &sv.Y},
		{"Z", raw.Z, &sv.Z},
		{"X_DOT", raw.XDot, &sv.XDot},
		{"Y_DOT", raw.YDot, &sv.YDot},
		{"Z_DOT", raw.ZDot, &sv.ZDot},
	} {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.val.Text), 64)
		if err != nil {
			return StateVector{}, fmt.Errorf("invalid %s value %q: %w", f.name, f.val.Text, err)
		}
		*f.dst = v
	}

	return sv, nil
}

// ParseEpoch converts a feed epoch in day-of-year form to a UTC time.
// Epochs are truncated to whole seconds so every stored epoch is reachable
// by its second-precision display form.
func ParseEpoch(s string) (time.Time, error) {
	t, err := time.Parse(FeedEpochLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch %q: %w", s, err)
	}
	return t.UTC().Truncate(time.Second), nil
}
