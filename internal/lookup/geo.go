package lookup

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// Coordinate is a WGS 84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is a finite point on the globe.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(a, b Coordinate) float64 {
	rad := math.Pi / 180.0
	dLat := (b.Latitude - a.Latitude) * rad
	dLon := (b.Longitude - a.Longitude) * rad
	lat1 := a.Latitude * rad
	lat2 := b.Latitude * rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BoundingBox returns a box that contains every point within radiusKm of center.
// Latitudes are clamped to the poles and longitudes to the antimeridian.
func BoundingBox(center Coordinate, radiusKm float64) Bounds {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	dLon := 180.0
	if cosLat > 1e-6 {
		dLon = math.Min(180, dLat/cosLat)
	}
	return Bounds{
		MinLat: math.Max(-90, center.Latitude-dLat),
		MaxLat: math.Min(90, center.Latitude+dLat),
		MinLon: math.Max(-180, center.Longitude-dLon),
		MaxLon: math.Min(180, center.Longitude+dLon),
	}
}

// rankByDistance fills DistanceKm, drops flights outside radiusKm and sorts
// the remainder nearest first. Ties keep provider order.
func rankByDistance(flights []FlightInfo, near Coordinate, radiusKm float64) []FlightInfo {
	ranked := make([]FlightInfo, 0, len(flights))
	for _, f := range flights {
		f.DistanceKm = HaversineKm(near, Coordinate{Latitude: f.Latitude, Longitude: f.Longitude})
		if radiusKm > 0 && f.DistanceKm > radiusKm {
			continue
		}
		ranked = append(ranked, f)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}
