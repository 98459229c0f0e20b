package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// OpenSkyName identifies the OpenSky Network provider.
	OpenSkyName = "opensky"

	defaultOpenSkyURL = "https://opensky-network.org/api"
)

// OpenSky implements Client with the OpenSky Network state vectors endpoint.
// Credentials are optional; anonymous access only serves recent states.
type OpenSky struct {
	baseURL    string
	username   string
	password   string
	radiusKm   float64
	liveWindow time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewOpenSky creates a new OpenSky client.
func NewOpenSky(opts Options, logger *zap.Logger) *OpenSky {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenSkyURL
	}
	return &OpenSky{
		baseURL:    baseURL,
		username:   opts.Username,
		password:   opts.Password,
		radiusKm:   opts.RadiusKm,
		liveWindow: opts.LiveWindow,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.Named("opensky"),
		now:        time.Now,
	}
}

// SearchFlights queries the bounding box around near and ranks states by distance.
func (o *OpenSky) SearchFlights(ctx context.Context, near Coordinate, at time.Time) ([]FlightInfo, error) {
	box := BoundingBox(near, o.radiusKm)
	params := url.Values{
		"lamin": {strconv.FormatFloat(box.MinLat, 'f', 4, 64)},
		"lomin": {strconv.FormatFloat(box.MinLon, 'f', 4, 64)},
		"lamax": {strconv.FormatFloat(box.MaxLat, 'f', 4, 64)},
		"lomax": {strconv.FormatFloat(box.MaxLon, 'f', 4, 64)},
	}
	if d := o.now().Sub(at); d > o.liveWindow || d < -o.liveWindow {
		params.Set("time", strconv.FormatInt(at.Unix(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/states/all?"+params.Encode(), nil)
	if err != nil {
		return nil, lookupErr(OpenSkyName, "creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.username != "" {
		req.SetBasicAuth(o.username, o.password)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, lookupErr(OpenSkyName, "request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, lookupErr(OpenSkyName, "unexpected status: %d", resp.StatusCode)
	}

	var raw openskyResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, lookupErr(OpenSkyName, "decode error: %w", err)
	}

	flights := make([]FlightInfo, 0, len(raw.States))
	for _, s := range raw.States {
		if info, ok := stateToFlightInfo(s, raw.Time); ok {
			flights = append(flights, info)
		}
	}
	ranked := rankByDistance(flights, near, o.radiusKm)

	o.logger.Debug("flights ranked",
		zap.Int("states", len(raw.States)),
		zap.Int("within_radius", len(ranked)),
	)
	return ranked, nil
}

type openskyResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// stateToFlightInfo decodes a positional state vector; vectors without a
// position are rejected.
func stateToFlightInfo(s []any, snapshot int64) (FlightInfo, bool) {
	if len(s) < 11 {
		return FlightInfo{}, false
	}
	lon, okLon := toFloat(s[5])
	lat, okLat := toFloat(s[6])
	if !okLon || !okLat {
		return FlightInfo{}, false
	}

	info := FlightInfo{
		Latitude:  lat,
		Longitude: lon,
		Provider:  OpenSkyName,
	}
	if icao24, ok := s[0].(string); ok {
		info.ID = strings.TrimSpace(icao24)
	}
	if callsign, ok := s[1].(string); ok {
		info.Callsign = strings.TrimSpace(callsign)
	}
	if country, ok := s[2].(string); ok {
		info.Origin = country
	}
	if alt, ok := toFloat(s[7]); ok {
		info.AltitudeM = alt
	}
	if onGround, ok := s[8].(bool); ok {
		info.OnGround = onGround
	}
	if v, ok := toFloat(s[9]); ok {
		info.SpeedKmh = v * 3.6
	}
	if hdg, ok := toFloat(s[10]); ok {
		info.Heading = hdg
	}

	observed := snapshot
	if contact, ok := toFloat(s[4]); ok {
		observed = int64(contact)
	}
	if observed > 0 {
		info.ObservedAt = time.Unix(observed, 0).UTC()
	}
	if info.ID == "" {
		info.ID = fmt.Sprintf("%.4f,%.4f", lat, lon)
	}
	return info, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
