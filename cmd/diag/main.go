// Command diag fetches (or reads) one OEM document, parses it, and prints a
// dataset summary. Useful for checking the feed without starting the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arshansani/ISS-Tracker/internal/oem"
	"github.com/arshansani/ISS-Tracker/internal/transform"
)

type sampleSummary struct {
	Epoch      string  `json:"epoch"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	SpeedKmS   float64 `json:"speed_km_s"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AltitudeKm float64 `json:"altitude_km"`
}

type datasetSummary struct {
	Source       string          `json:"source"`
	CreationDate string          `json:"creation_date"`
	Originator   string          `json:"originator"`
	ObjectName   string          `json:"object_name"`
	ObjectID     string          `json:"object_id"`
	CenterName   string          `json:"center_name"`
	RefFrame     string          `json:"ref_frame"`
	TimeSystem   string          `json:"time_system"`
	StartTime    string          `json:"start_time"`
	StopTime     string          `json:"stop_time"`
	EpochMin     string          `json:"epoch_min"`
	EpochMax     string          `json:"epoch_max"`
	Count        int             `json:"count"`
	Comments     []string        `json:"comments"`
	Samples      []sampleSummary `json:"samples"`
}

func main() {
	var (
		urlFlag  = flag.String("url", "", "OEM feed URL (default: the NASA public feed)")
		fileFlag = flag.String("file", "", "read the OEM document from a local file instead of fetching")
		nFlag    = flag.Int("n", 5, "number of state vectors to include in the summary")
		jsonFlag = flag.Bool("json", false, "print the summary as JSON")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	data, source, err := loadDocument(*urlFlag, *fileFlag, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	ds, err := oem.Parse(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR parsing OEM document:", err)
		os.Exit(1)
	}
	ds.Source = source

	summary := summarize(ds, *nFlag)

	if *jsonFlag {
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	printSummary(summary)
}

func loadDocument(url, file string, logger *slog.Logger) ([]byte, string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", file, err)
		}
		return data, file, nil
	}

	fetcher := oem.NewFetcher(url, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, "", err
	}
	return data, fetcher.SourceURL(), nil
}

func summarize(ds *oem.DataSet, n int) datasetSummary {
	if n < 0 {
		n = 0
	}
	if n > len(ds.StateVectors) {
		n = len(ds.StateVectors)
	}

	samples := make([]sampleSummary, 0, n)
	for _, sv := range ds.StateVectors[:n] {
		ex, ey, ez := transform.ECIToECEFAt(sv.X, sv.Y, sv.Z, sv.Epoch)
		geo := transform.ECEFToGeodetic(ex, ey, ez)
		samples = append(samples, sampleSummary{
			Epoch:      sv.EpochString(),
			X:          sv.X,
			Y:          sv.Y,
			Z:          sv.Z,
			SpeedKmS:   transform.Speed(sv.XDot, sv.YDot, sv.ZDot),
			Latitude:   geo.LatDeg,
			Longitude:  geo.LonDeg,
			AltitudeKm: geo.AltKm,
		})
	}

	comments := ds.Comments
	if comments == nil {
		comments = []string{}
	}

	return datasetSummary{
		Source:       ds.Source,
		CreationDate: ds.Header.CreationDate,
		Originator:   ds.Header.Originator,
		ObjectName:   ds.Metadata.ObjectName,
		ObjectID:     ds.Metadata.ObjectID,
		CenterName:   ds.Metadata.CenterName,
		RefFrame:     ds.Metadata.RefFrame,
		TimeSystem:   ds.Metadata.TimeSystem,
		StartTime:    ds.Metadata.StartTime,
		StopTime:     ds.Metadata.StopTime,
		EpochMin:     ds.EpochRange.Min.UTC().Format(oem.EpochLayout),
		EpochMax:     ds.EpochRange.Max.UTC().Format(oem.EpochLayout),
		Count:        len(ds.StateVectors),
		Comments:     comments,
		Samples:      samples,
	}
}

func printSummary(s datasetSummary) {
	fmt.Printf("Source:     %s\n", s.Source)
	fmt.Printf("Object:     %s (%s) around %s\n", s.ObjectName, s.ObjectID, s.CenterName)
	fmt.Printf("Frame:      %s / %s\n", s.RefFrame, s.TimeSystem)
	fmt.Printf("Created:    %s by %s\n", s.CreationDate, s.Originator)
	fmt.Printf("Coverage:   %s .. %s (%d state vectors)\n", s.EpochMin, s.EpochMax, s.Count)
	for _, c := range s.Comments {
		fmt.Printf("Comment:    %s\n", c)
	}
	if len(s.Samples) > 0 {
		fmt.Println()
		for i, sv := range s.Samples {
			fmt.Printf("  sample %d: %s pos=(%.2f, %.2f, %.2f) km speed=%.3f km/s lat=%.2f lon=%.2f alt=%.1f km\n",
				i, sv.Epoch, sv.X, sv.Y, sv.Z, sv.SpeedKmS, sv.Latitude, sv.Longitude, sv.AltitudeKm)
		}
	}
}
