package geo

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/jwalitptl/dispatch-api/pkg/logger"
)

// Fallback is used when neither the client nor the geocoder can place the
// caller (Santa Cruz de la Sierra).
var Fallback = Point{Latitude: -17.7833, Longitude: -63.1821}

type Point struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// Valid reports whether p is a usable coordinate. The zero point is treated
// as "not provided".
func (p Point) Valid() bool {
	if p.Latitude == 0 && p.Longitude == 0 {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Geocoder turns a free-form address into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

type Resolver struct {
	geocoder Geocoder
	timeout  time.Duration
	logger   *logger.Logger
}

func NewResolver(geocoder Geocoder, timeout time.Duration, log *logger.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{geocoder: geocoder, timeout: timeout, logger: log}
}

// Resolve always returns a location. Client coordinates win when valid; an
// address is geocoded when a geocoder is configured; otherwise Fallback.
func (r *Resolver) Resolve(ctx context.Context, client *Point, address string) Point {
	if client != nil && client.Valid() {
		return *client
	}

	if r.geocoder != nil && address != "" {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		p, err := r.geocoder.Geocode(ctx, address)
		if err == nil && p.Valid() {
			return p
		}
		r.logger.Warn("geocoding failed, using fallback location", "address", address, "error", err)
	}

	return Fallback
}

// MapsGeocoder geocodes through the Google Maps API.
type MapsGeocoder struct {
	client *maps.Client
}

func NewMapsGeocoder(apiKey string) (*MapsGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("maps api key not set")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsGeocoder{client: client}, nil
}

func (g *MapsGeocoder) Geocode(ctx context.Context, address string) (Point, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return Point{}, err
	}
	if len(results) == 0 {
		return Point{}, fmt.Errorf("no results for %q", address)
	}

	loc := results[0].Geometry.Location
	return Point{Latitude: loc.Lat, Longitude: loc.Lng}, nil
}
