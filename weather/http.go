package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultURL is the OpenWeatherMap current weather endpoint.
	DefaultURL = "https://api.openweathermap.org/data/2.5/weather"

	DefaultTimeout = 30 * time.Second
)

// HTTPFetcher reads OpenWeatherMap-style JSON.
type HTTPFetcher struct {
	client  *http.Client
	url     string
	apiKey  string
	timeout time.Duration
	now     func() time.Time
}

type Option func(*HTTPFetcher)

func WithURL(url string) Option {
	return func(f *HTTPFetcher) {
		f.url = url
	}
}

func WithAPIKey(key string) Option {
	return func(f *HTTPFetcher) {
		f.apiKey = key
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		url:     DefaultURL,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{
			Timeout: f.timeout,
		}
	}
	return f
}

type owmResponse struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Pressure *float64 `json:"pressure"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Dt int64 `json:"dt"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, latDeg, lonDeg float64) (Report, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return Report{}, fmt.Errorf("parse weather URL: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(latDeg, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lonDeg, 'f', -1, 64))
	q.Set("units", "metric")
	if f.apiKey != "" {
		q.Set("appid", f.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Report{}, fmt.Errorf("decode weather: %w", err)
	}
	for name, v := range map[string]*float64{
		"main.temp":     body.Main.Temp,
		"main.pressure": body.Main.Pressure,
		"main.humidity": body.Main.Humidity,
		"wind.speed":    body.Wind.Speed,
		"wind.deg":      body.Wind.Deg,
	} {
		if v == nil {
			return Report{}, fmt.Errorf("decode weather: missing %s", name)
		}
	}

	r := Report{
		Temperature:   *body.Main.Temp,
		Pressure:      *body.Main.Pressure,
		Humidity:      *body.Main.Humidity,
		WindSpeed:     *body.Wind.Speed,
		WindDirection: *body.Wind.Deg,
		Precipitation: body.Rain.OneHour,
		Time:          f.now().UTC(),
	}
	if body.Dt != 0 {
		r.Time = time.Unix(body.Dt, 0).UTC()
	}
	return r, nil
}
