package main

import (
	"flag"
	"log"
	"os"

	"github.com/mini-rodalies-3d/transitsim/internal/gtfs"
)

func main() {
	defaults := gtfs.DefaultOptions()

	zipPath := flag.String("gtfs", "../../data/gtfs/feed.zip", "Path to a GTFS zip file")
	outPath := flag.String("out", "network.yml", "Where to write the network file")
	buses := flag.Int("buses", defaults.BusesPerDirection, "Buses per route direction")
	capacity := flag.Int("capacity", defaults.Capacity, "Bus capacity")
	speed := flag.Float64("speed", defaults.SpeedKmph, "Bus speed in km/h")
	boarding := flag.Float64("boarding", defaults.BoardingSeconds, "Boarding time per passenger in seconds")
	arrivalRate := flag.Float64("arrival-rate", defaults.ArrivalRate, "Passengers per simulated minute at each station")
	flag.Parse()

	data, err := gtfs.Parse(*zipPath)
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", *zipPath, err)
	}

	network, err := gtfs.BuildNetwork(data, gtfs.Options{
		ArrivalRate:       *arrivalRate,
		BusesPerDirection: *buses,
		Capacity:          *capacity,
		SpeedKmph:         *speed,
		BoardingSeconds:   *boarding,
	})
	if err != nil {
		log.Fatalf("Failed to build network: %v", err)
	}

	out, err := network.Marshal()
	if err != nil {
		log.Fatalf("Failed to encode network: %v", err)
	}
	if err := os.WriteFile(*outPath, out, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}

	log.Printf("SUCCESS: wrote %s with %d stations, %d routes, %d buses",
		*outPath, len(network.Stations), len(network.Routes), len(network.Buses))
}
