package lookup

import (
	"context"
	"fmt"
	"time"
)

// Client searches for aircraft near a coordinate at a point in time.
// Results are ordered best match first; an empty slice is a valid answer.
type Client interface {
	SearchFlights(ctx context.Context, near Coordinate, at time.Time) ([]FlightInfo, error)
}

// FlightInfo describes one candidate aircraft returned by a provider.
type FlightInfo struct {
	ID          string    `json:"id"`
	Callsign    string    `json:"callsign,omitempty"`
	Airline     string    `json:"airline,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	AltitudeM   float64   `json:"altitude_m"`
	SpeedKmh    float64   `json:"speed_kmh"`
	Heading     float64   `json:"heading"`
	OnGround    bool      `json:"on_ground"`
	DistanceKm  float64   `json:"distance_km"`
	Provider    string    `json:"provider"`
	ObservedAt  time.Time `json:"observed_at"`
}

// LookupError is the single error shape surfaced by providers for transport,
// status and decode failures.
type LookupError struct {
	Provider string
	Err      error
}

func (e *LookupError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *LookupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func lookupErr(provider, format string, args ...any) error {
	return &LookupError{Provider: provider, Err: fmt.Errorf(format, args...)}
}
