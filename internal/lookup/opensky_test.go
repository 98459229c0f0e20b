package lookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stateVector(icao24, callsign string, lon, lat any) []any {
	return []any{
		icao24,     // 0  icao24
		callsign,   // 1  callsign
		"US",       // 2  origin_country
		1709287200, // 3  time_position
		1709287190, // 4  last_contact
		lon,        // 5  longitude
		lat,        // 6  latitude
		3000.0,     // 7  baro_altitude
		false,      // 8  on_ground
		100.0,      // 9  velocity
		270.0,      // 10 true_track
		0.0,        // 11 vertical_rate
		nil,        // 12 sensors
		3100.0,     // 13 geo_altitude
		"1200",     // 14 squawk
		false,      // 15 spi
		0,          // 16 position_source
	}
}

func TestOpenSkySearchFlights(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/states/all", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, strconv.FormatInt(at.Unix(), 10), q.Get("time"))

		lamin, _ := strconv.ParseFloat(q.Get("lamin"), 64)
		lamax, _ := strconv.ParseFloat(q.Get("lamax"), 64)
		assert.Less(t, lamin, sfo.Latitude)
		assert.Greater(t, lamax, sfo.Latitude)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)

		json.NewEncoder(w).Encode(map[string]any{
			"time": 1709287200,
			"states": [][]any{
				stateVector("a1b2c3", "UAL456  ", -122.10, 37.70),
				stateVector("d4e5f6", "UAL123  ", -122.37, 37.62),
				stateVector("ffffff", "", nil, nil),
			},
		})
	}))
	defer srv.Close()

	client := NewOpenSky(Options{
		BaseURL:    srv.URL,
		Username:   "alice",
		Password:   "secret",
		RadiusKm:   50,
		LiveWindow: 30 * time.Minute,
		Timeout:    2 * time.Second,
	}, zap.NewNop())
	client.now = func() time.Time { return now }

	flights, err := client.SearchFlights(context.Background(), sfo, at)
	require.NoError(t, err)
	require.Len(t, flights, 2)

	first := flights[0]
	assert.Equal(t, "d4e5f6", first.ID)
	assert.Equal(t, "UAL123", first.Callsign)
	assert.InDelta(t, 360.0, first.SpeedKmh, 0.01)
	assert.Equal(t, time.Unix(1709287190, 0).UTC(), first.ObservedAt)
	assert.Equal(t, "a1b2c3", flights[1].ID)
}

func TestOpenSkyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("time"))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenSky(Options{BaseURL: srv.URL, RadiusKm: 50, LiveWindow: time.Hour, Timeout: time.Second}, zap.NewNop())
	_, err := client.SearchFlights(context.Background(), sfo, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensky: unexpected status: 429")
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New("flightradar", Options{}, zap.NewNop())
	assert.Error(t, err)

	client, err := New(OpenSkyName, Options{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenSky{}, client)
}
