package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// Parse reads a GTFS zip file
func Parse(zipPath string) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()
	return parseFiles(r.File)
}

// ParseReader reads a GTFS zip held in memory
func ParseReader(r io.ReaderAt, size int64) (*Data, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	return parseFiles(zr.File)
}

func parseFiles(zipFiles []*zip.File) (*Data, error) {
	files := make(map[string]*zip.File)
	for _, f := range zipFiles {
		files[f.Name] = f
	}

	// stops.txt, trips.txt and stop_times.txt are needed to build a network
	for _, name := range []string{"stops.txt", "trips.txt", "stop_times.txt"} {
		if _, ok := files[name]; !ok {
			return nil, fmt.Errorf("missing %s", name)
		}
	}

	data := &Data{}

	if f, ok := files["routes.txt"]; ok {
		err := readRecords(f, func(get func(string) string) {
			routeType, _ := strconv.Atoi(get("route_type"))
			data.Routes = append(data.Routes, Route{
				RouteID:        get("route_id"),
				RouteShortName: get("route_short_name"),
				RouteLongName:  get("route_long_name"),
				RouteType:      routeType,
			})
		})
		if err != nil {
			log.Printf("Warning: failed to parse routes.txt: %v", err)
		}
	}

	err := readRecords(files["stops.txt"], func(get func(string) string) {
		lat, _ := strconv.ParseFloat(get("stop_lat"), 64)
		lon, _ := strconv.ParseFloat(get("stop_lon"), 64)
		locType, _ := strconv.Atoi(get("location_type"))
		data.Stops = append(data.Stops, Stop{
			StopID:        get("stop_id"),
			StopName:      get("stop_name"),
			StopLat:       lat,
			StopLon:       lon,
			LocationType:  locType,
			ParentStation: get("parent_station"),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse stops.txt: %w", err)
	}

	err = readRecords(files["trips.txt"], func(get func(string) string) {
		directionID, _ := strconv.Atoi(get("direction_id"))
		data.Trips = append(data.Trips, Trip{
			RouteID:     get("route_id"),
			TripID:      get("trip_id"),
			DirectionID: directionID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse trips.txt: %w", err)
	}

	err = readRecords(files["stop_times.txt"], func(get func(string) string) {
		seq, _ := strconv.Atoi(get("stop_sequence"))
		data.StopTimes = append(data.StopTimes, StopTime{
			TripID:       get("trip_id"),
			StopID:       get("stop_id"),
			StopSequence: seq,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse stop_times.txt: %w", err)
	}

	log.Printf("GTFS parsed: %d routes, %d stops, %d trips, %d stop times",
		len(data.Routes), len(data.Stops), len(data.Trips), len(data.StopTimes))

	return data, nil
}

// readRecords calls fn for every row of a CSV file. Malformed rows are
// skipped.
func readRecords(f *zip.File, fn func(get func(field string) string)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return err
	}

	idx := makeIndex(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			continue
		}
		fn(func(field string) string { return getField(record, idx, field) })
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		// Some feeds start with a UTF-8 BOM
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
