package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidNetwork = errors.New("invalid network")

// StationConfig describes one stop
type StationConfig struct {
	ID   string  `yaml:"id" validate:"required"`
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"latitude"`
	Lng  float64 `yaml:"lng" validate:"longitude"`
	// ArrivalRate is passengers per simulated minute
	ArrivalRate float64 `yaml:"arrival_rate" validate:"gte=0"`
}

// RouteConfig is an ordered list of station ids and the route running back
type RouteConfig struct {
	ID       string   `yaml:"id" validate:"required"`
	Stations []string `yaml:"stations" validate:"min=2,dive,required"`
	Reverse  string   `yaml:"reverse" validate:"required"`
}

// BusConfig places a bus on a route
type BusConfig struct {
	ID              string  `yaml:"id" validate:"required"`
	Route           string  `yaml:"route" validate:"required"`
	Capacity        int     `yaml:"capacity" validate:"gt=0"`
	SpeedKmph       float64 `yaml:"speed_kmph" validate:"gt=0"`
	BoardingSeconds float64 `yaml:"boarding_seconds" validate:"gte=0"`
	StepMeters      float64 `yaml:"step_meters,omitempty" validate:"omitempty,gt=0"`
}

// Network is the root of the network file
type Network struct {
	Stations []StationConfig `yaml:"stations" validate:"required,min=1,dive"`
	Routes   []RouteConfig   `yaml:"routes" validate:"required,min=1,dive"`
	Buses    []BusConfig     `yaml:"buses" validate:"dive"`
}

// LoadNetwork reads and validates the network file at path
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}
	return ParseNetwork(data)
}

// ParseNetwork decodes a YAML network and checks it is self-consistent
func ParseNetwork(data []byte) (*Network, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var n Network
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to parse network: %w", err)
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Validate checks field constraints and that every id a route or bus
// references exists
func (n *Network) Validate() error {
	v := validator.New()
	if err := v.Struct(n); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNetwork, err)
	}
	return n.checkReferences()
}

// Marshal encodes n in the network file format
func (n *Network) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("failed to encode network: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode network: %w", err)
	}
	return buf.Bytes(), nil
}

func (n *Network) checkReferences() error {
	stations := make(map[string]bool, len(n.Stations))
	for _, s := range n.Stations {
		if stations[s.ID] {
			return fmt.Errorf("%w: duplicate station %s", ErrInvalidNetwork, s.ID)
		}
		stations[s.ID] = true
	}

	routes := make(map[string]bool, len(n.Routes))
	for _, r := range n.Routes {
		if routes[r.ID] {
			return fmt.Errorf("%w: duplicate route %s", ErrInvalidNetwork, r.ID)
		}
		routes[r.ID] = true
		for _, id := range r.Stations {
			if !stations[id] {
				return fmt.Errorf("%w: route %s references unknown station %s", ErrInvalidNetwork, r.ID, id)
			}
		}
	}

	for _, r := range n.Routes {
		if !routes[r.Reverse] {
			return fmt.Errorf("%w: route %s has unknown reverse route %s", ErrInvalidNetwork, r.ID, r.Reverse)
		}
	}

	buses := make(map[string]bool, len(n.Buses))
	for _, b := range n.Buses {
		if buses[b.ID] {
			return fmt.Errorf("%w: duplicate bus %s", ErrInvalidNetwork, b.ID)
		}
		buses[b.ID] = true
		if !routes[b.Route] {
			return fmt.Errorf("%w: bus %s references unknown route %s", ErrInvalidNetwork, b.ID, b.Route)
		}
	}
	return nil
}
