package lookup

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	jfk := Coordinate{Latitude: 40.6413, Longitude: -73.7781}
	assert.InDelta(t, 4160, HaversineKm(sfo, jfk), 15)
	assert.Zero(t, HaversineKm(sfo, sfo))
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	box := BoundingBox(sfo, 50)
	north := Coordinate{Latitude: box.MaxLat, Longitude: sfo.Longitude}
	east := Coordinate{Latitude: sfo.Latitude, Longitude: box.MaxLon}
	assert.InDelta(t, 50, HaversineKm(sfo, north), 0.5)
	assert.GreaterOrEqual(t, HaversineKm(sfo, east), 49.5)

	polar := BoundingBox(Coordinate{Latitude: 90, Longitude: 0}, 10)
	assert.Equal(t, 90.0, polar.MaxLat)
	assert.Equal(t, -180.0, polar.MinLon)
	assert.Equal(t, 180.0, polar.MaxLon)
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, sfo.Valid())
	assert.False(t, Coordinate{Latitude: 91}.Valid())
	assert.False(t, Coordinate{Longitude: -180.5}.Valid())
	assert.False(t, Coordinate{Latitude: math.NaN()}.Valid())
}

func TestRankByDistanceDropsOutsideRadius(t *testing.T) {
	ranked := rankByDistance([]FlightInfo{
		{ID: "far", Latitude: 38.5, Longitude: -122.3},
		{ID: "near", Latitude: 37.62, Longitude: -122.38},
	}, sfo, 50)
	if assert.Len(t, ranked, 1) {
		assert.Equal(t, "near", ranked[0].ID)
	}
}
