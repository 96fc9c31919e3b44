// Package weather fetches current site weather for the antenna monitor.
package weather

import (
	"context"
	"time"
)

// Report is one weather observation in metric units: degrees C, hPa,
// percent, m/s, degrees and mm.
type Report struct {
	Temperature   float64   `json:"temperature"`
	Pressure      float64   `json:"pressure"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"windspeed"`
	WindDirection float64   `json:"winddirection"`
	Precipitation float64   `json:"precipitation"`
	Time          time.Time `json:"time"`
}

// Fetcher returns the current weather at a location.
type Fetcher interface {
	Fetch(ctx context.Context, latDeg, lonDeg float64) (Report, error)
}
