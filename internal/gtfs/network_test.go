package gtfs

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mini-rodalies-3d/transitsim/internal/config"
)

var feedFiles = map[string]string{
	"routes.txt": "route_id,route_short_name,route_long_name,route_type\n" +
		"L1,L1,Line one,3\n" +
		"L2,L2,Line two,3\n",
	"stops.txt": "\ufeffstop_id,stop_name,stop_lat,stop_lon,location_type,parent_station\n" +
		"A,Alpha,41.380,2.170,1,\n" +
		"A1,Alpha platform 1,41.380,2.170,0,A\n" +
		"B,Bravo,41.385,2.175,0,\n" +
		"C,Charlie,41.390,2.180,0,\n" +
		"D,Delta,41.395,2.185,0,\n" +
		"Z,Unused,41.000,2.000,0,\n",
	"trips.txt": "route_id,service_id,trip_id,direction_id\n" +
		"L1,WK,t1,0\n" +
		"L1,WK,t2,0\n" +
		"L1,WK,t3,1\n" +
		"L2,WK,t4,1\n" +
		"L2,WK,t5,0\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		// t1 is a short working, t2 the full line
		"t1,08:00:00,08:00:00,A1,1\n" +
		"t1,08:05:00,08:05:00,B,2\n" +
		"t2,09:10:00,09:10:00,C,3\n" +
		"t2,09:00:00,09:00:00,A1,1\n" +
		"t2,09:05:00,09:05:00,B,2\n" +
		"t3,10:00:00,10:00:00,C,1\n" +
		"t3,10:05:00,10:05:00,A1,2\n" +
		"t4,11:00:00,11:00:00,D,1\n" +
		"t4,11:05:00,11:05:00,B,2\n" +
		"t5,12:00:00,12:00:00,D,1\n",
}

func zipFeed(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func parseFeed(t *testing.T) *Data {
	t.Helper()
	raw := zipFeed(t, feedFiles)
	data, err := ParseReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	return data
}

func TestParseReader(t *testing.T) {
	data := parseFeed(t)
	if len(data.Routes) != 2 || len(data.Stops) != 6 || len(data.Trips) != 5 || len(data.StopTimes) != 10 {
		t.Errorf("parsed %d routes, %d stops, %d trips, %d stop times",
			len(data.Routes), len(data.Stops), len(data.Trips), len(data.StopTimes))
	}
	if data.Stops[0].StopID != "A" {
		t.Errorf("first stop id = %q, BOM not stripped", data.Stops[0].StopID)
	}
	if data.Stops[1].ParentStation != "A" || data.Stops[2].StopLat != 41.385 {
		t.Errorf("unexpected stops %+v", data.Stops[:3])
	}
}

func TestParseRequiresCoreFiles(t *testing.T) {
	files := map[string]string{"stops.txt": feedFiles["stops.txt"]}
	raw := zipFeed(t, files)
	if _, err := ParseReader(bytes.NewReader(raw), int64(len(raw))); err == nil {
		t.Error("expected an error for a feed without trips")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.zip")
	if err := os.WriteFile(path, zipFeed(t, feedFiles), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(path); err != nil {
		t.Errorf("Parse failed: %v", err)
	}
	if _, err := Parse(filepath.Join(t.TempDir(), "missing.zip")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func findRoute(n *config.Network, id string) *config.RouteConfig {
	for i := range n.Routes {
		if n.Routes[i].ID == id {
			return &n.Routes[i]
		}
	}
	return nil
}

func TestBuildNetwork(t *testing.T) {
	opts := DefaultOptions()
	opts.BusesPerDirection = 2

	n, err := BuildNetwork(parseFeed(t), opts)
	if err != nil {
		t.Fatalf("BuildNetwork failed: %v", err)
	}

	tests := []struct {
		id       string
		stations []string
		reverse  string
	}{
		// The longest trip wins and platforms fold into their station
		{"L1-0", []string{"A", "B", "C"}, "L1-1"},
		{"L1-1", []string{"C", "A"}, "L1-0"},
		// L2 only has a usable pattern in direction 1
		{"L2-0", []string{"B", "D"}, "L2-1"},
		{"L2-1", []string{"D", "B"}, "L2-0"},
	}
	for _, tc := range tests {
		r := findRoute(n, tc.id)
		if r == nil {
			t.Errorf("route %s missing", tc.id)
			continue
		}
		if !slices.Equal(r.Stations, tc.stations) || r.Reverse != tc.reverse {
			t.Errorf("route %s = %v reverse %s, expected %v reverse %s",
				tc.id, r.Stations, r.Reverse, tc.stations, tc.reverse)
		}
	}

	if len(n.Stations) != 4 {
		t.Errorf("got %d stations, expected the 4 served ones", len(n.Stations))
	}
	if len(n.Buses) != 8 {
		t.Errorf("got %d buses, expected 2 per direction", len(n.Buses))
	}

	data, err := n.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := config.ParseNetwork(data); err != nil {
		t.Errorf("generated network does not load: %v", err)
	}
}

func TestBuildNetworkWithoutPatterns(t *testing.T) {
	data := &Data{
		Stops:     []Stop{{StopID: "A", StopName: "Alpha"}},
		Trips:     []Trip{{RouteID: "L1", TripID: "t1"}},
		StopTimes: []StopTime{{TripID: "t1", StopID: "A", StopSequence: 1}},
	}
	if _, err := BuildNetwork(data, DefaultOptions()); !errors.Is(err, ErrNoPatterns) {
		t.Errorf("error = %v, expected ErrNoPatterns", err)
	}
}
