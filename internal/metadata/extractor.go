// Package metadata reads the capture location and time embedded in a photo.
package metadata

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"  // register decoder for DecodeConfig
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"math"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"  // register decoder for DecodeConfig
	_ "golang.org/x/image/tiff" // register decoder for DecodeConfig
	_ "golang.org/x/image/webp" // register decoder for DecodeConfig

	"github.com/example/aerofindr/internal/lookup"
)

// ImageMetadata is the subset of embedded photo metadata used for lookups.
// A nil field means the tag was not present.
type ImageMetadata struct {
	Location  *lookup.Coordinate
	Timestamp *time.Time
}

// Extract parses data and reports false when it is not a decodable image at
// all. Images without EXIF yield metadata with both fields nil.
func Extract(data []byte) (*ImageMetadata, bool) {
	if len(data) == 0 {
		return nil, false
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		if _, _, cfgErr := image.DecodeConfig(bytes.NewReader(data)); cfgErr != nil {
			return nil, false
		}
		return &ImageMetadata{}, true
	}

	md := &ImageMetadata{}
	if loc, ok := location(x); ok {
		md.Location = &loc
	}
	if ts, ok := timestamp(x); ok {
		md.Timestamp = &ts
	}
	return md, true
}

func location(x *exif.Exif) (lookup.Coordinate, bool) {
	lat, lon, err := x.LatLong()
	if err != nil {
		return lookup.Coordinate{}, false
	}
	c := lookup.Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return lookup.Coordinate{}, false
	}
	return c, true
}

// timestamp prefers the GPS clock, which is always UTC, over the camera's
// DateTimeOriginal whose zone is only known when an offset tag is present.
func timestamp(x *exif.Exif) (time.Time, bool) {
	if ts, err := gpsTime(x); err == nil {
		return ts, true
	}
	ts, err := x.DateTime()
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts, true
}

var errNoGPSTime = errors.New("gps time not present")

func gpsTime(x *exif.Exif) (time.Time, error) {
	dateTag, err := x.Get(exif.GPSDateStamp)
	if err != nil {
		return time.Time{}, err
	}
	timeTag, err := x.Get(exif.GPSTimeStamp)
	if err != nil {
		return time.Time{}, err
	}
	if dateTag.Format() != tiff.StringVal || timeTag.Format() != tiff.RatVal || timeTag.Count < 3 {
		return time.Time{}, errNoGPSTime
	}

	date, err := time.Parse("2006:01:02", strings.TrimRight(string(dateTag.Val), "\x00 "))
	if err != nil {
		return time.Time{}, err
	}

	var parts [3]float64
	for i := range parts {
		num, den, err := timeTag.Rat2(i)
		if err != nil {
			return time.Time{}, err
		}
		if den == 0 {
			return time.Time{}, errNoGPSTime
		}
		parts[i] = float64(num) / float64(den)
	}
	offset := time.Duration(parts[0]*float64(time.Hour) +
		parts[1]*float64(time.Minute) +
		parts[2]*float64(time.Second))
	return date.Add(offset).UTC(), nil
}
