package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// AviationStackName identifies the AviationStack provider in config and results.
	AviationStackName = "aviationstack"

	defaultAviationStackURL = "http://api.aviationstack.com/v1"
	aviationStackPageSize   = 100
	defaultAviationMaxPages = 5
)

// Options configures an HTTP-backed provider.
type Options struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	RadiusKm float64
	// LiveWindow is how far from now a timestamp may be and still be served
	// from live positions rather than the historical endpoint.
	LiveWindow time.Duration
	Timeout    time.Duration
	// MaxPages bounds how many result pages a provider without a geographic
	// filter scans per search.
	MaxPages int
}

// AviationStack implements Client on top of the AviationStack flights endpoint.
type AviationStack struct {
	baseURL    string
	apiKey     string
	radiusKm   float64
	liveWindow time.Duration
	maxPages   int
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewAviationStack creates a new AviationStack client.
func NewAviationStack(opts Options, logger *zap.Logger) *AviationStack {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAviationStackURL
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultAviationMaxPages
	}
	return &AviationStack{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		radiusKm:   opts.RadiusKm,
		liveWindow: opts.LiveWindow,
		maxPages:   maxPages,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.Named("aviationstack"),
		now:        time.Now,
	}
}

// ErrHistoricalUnavailable is returned for capture times outside the live window.
// AviationStack only reports positions for flights that are airborne now.
var ErrHistoricalUnavailable = errors.New("historical flight positions are unavailable")

// SearchFlights lists active flights with a live position and ranks them by
// distance from near. The endpoint has no geographic filter, so up to
// maxPages pages are scanned.
func (a *AviationStack) SearchFlights(ctx context.Context, near Coordinate, at time.Time) ([]FlightInfo, error) {
	if !a.isLive(at) {
		return nil, &LookupError{Provider: AviationStackName, Err: ErrHistoricalUnavailable}
	}

	a.logger.Debug("searching flights",
		zap.Float64("latitude", near.Latitude),
		zap.Float64("longitude", near.Longitude),
		zap.Time("at", at),
	)

	var (
		flights  []FlightInfo
		received int
	)
	for page := 0; page < a.maxPages; page++ {
		raw, err := a.fetchPage(ctx, received)
		if err != nil {
			return nil, err
		}
		for _, f := range raw.Data {
			if info, ok := f.toFlightInfo(); ok {
				flights = append(flights, info)
			}
		}
		received += len(raw.Data)
		if len(raw.Data) == 0 || raw.Pagination == nil || received >= raw.Pagination.Total {
			break
		}
	}
	ranked := rankByDistance(flights, near, a.radiusKm)

	a.logger.Debug("flights ranked",
		zap.Int("received", received),
		zap.Int("with_position", len(flights)),
		zap.Int("within_radius", len(ranked)),
	)
	return ranked, nil
}

func (a *AviationStack) fetchPage(ctx context.Context, offset int) (*asResponse, error) {
	params := url.Values{
		"access_key":    {a.apiKey},
		"flight_status": {"active"},
		"limit":         {strconv.Itoa(aviationStackPageSize)},
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/flights?"+params.Encode(), nil)
	if err != nil {
		return nil, lookupErr(AviationStackName, "creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, lookupErr(AviationStackName, "request failed: %w", err)
	}
	defer resp.Body.Close()

	var raw asResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&raw)
	if raw.Error != nil && raw.Error.Message != "" {
		return nil, lookupErr(AviationStackName, "%s", raw.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, lookupErr(AviationStackName, "unexpected status: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, lookupErr(AviationStackName, "decode error: %w", decodeErr)
	}
	return &raw, nil
}

func (a *AviationStack) isLive(at time.Time) bool {
	d := a.now().Sub(at)
	if d < 0 {
		d = -d
	}
	return d <= a.liveWindow
}

type asResponse struct {
	Pagination *asPagination `json:"pagination"`
	Data       []asFlight    `json:"data"`
	Error      *asError      `json:"error"`
}

type asPagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
	Total  int `json:"total"`
}

type asError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type asFlight struct {
	FlightStatus string        `json:"flight_status"`
	Departure    *asAirport    `json:"departure"`
	Arrival      *asAirport    `json:"arrival"`
	Airline      *asAirline    `json:"airline"`
	Flight       *asFlightInfo `json:"flight"`
	Live         *asLive       `json:"live"`
}

type asAirport struct {
	Airport string `json:"airport"`
	IATA    string `json:"iata"`
	ICAO    string `json:"icao"`
}

type asAirline struct {
	Name string `json:"name"`
	IATA string `json:"iata"`
	ICAO string `json:"icao"`
}

type asFlightInfo struct {
	Number string `json:"number"`
	IATA   string `json:"iata"`
	ICAO   string `json:"icao"`
}

type asLive struct {
	Updated         string  `json:"updated"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Altitude        float64 `json:"altitude"`
	Direction       float64 `json:"direction"`
	SpeedHorizontal float64 `json:"speed_horizontal"`
	IsGround        bool    `json:"is_ground"`
}

// toFlightInfo converts a flight record; records without a live position
// cannot be placed and are rejected.
func (f *asFlight) toFlightInfo() (FlightInfo, bool) {
	if f.Live == nil {
		return FlightInfo{}, false
	}
	info := FlightInfo{
		Latitude:  f.Live.Latitude,
		Longitude: f.Live.Longitude,
		AltitudeM: f.Live.Altitude,
		SpeedKmh:  f.Live.SpeedHorizontal,
		Heading:   f.Live.Direction,
		OnGround:  f.Live.IsGround,
		Provider:  AviationStackName,
	}
	if !(Coordinate{Latitude: info.Latitude, Longitude: info.Longitude}).Valid() {
		return FlightInfo{}, false
	}
	if ts, err := time.Parse(time.RFC3339, f.Live.Updated); err == nil {
		info.ObservedAt = ts.UTC()
	}
	if f.Flight != nil {
		info.ID = firstNonEmpty(f.Flight.IATA, f.Flight.ICAO, f.Flight.Number)
		info.Callsign = f.Flight.ICAO
	}
	if f.Airline != nil {
		info.Airline = f.Airline.Name
	}
	if f.Departure != nil {
		info.Origin = firstNonEmpty(f.Departure.IATA, f.Departure.ICAO, f.Departure.Airport)
	}
	if f.Arrival != nil {
		info.Destination = firstNonEmpty(f.Arrival.IATA, f.Arrival.ICAO, f.Arrival.Airport)
	}
	if info.ID == "" {
		info.ID = fmt.Sprintf("%.4f,%.4f", info.Latitude, info.Longitude)
	}
	return info, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
