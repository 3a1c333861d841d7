// Package weather geocodes city names and fetches daily forecasts from the
// Open-Meteo APIs.
package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"toolbox/internal/capability"
)

var ErrCityNotFound = errors.New("city not found")

// Place is a geocoded city.
type Place struct {
	Name    string
	Region  string
	Country string // ISO 3166-1 alpha-2 code
	Lat     float64
	Lon     float64
}

type Day struct {
	Date          string
	TempMax       float64
	TempMin       float64
	Precipitation float64
	Code          int
}

// Forecast holds daily values in the units reported by the API.
type Forecast struct {
	TempUnit   string
	PrecipUnit string
	Days       []Day
}

type Geocoder interface {
	Lookup(ctx context.Context, city string) (*Place, error)
}

type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64, days int) (*Forecast, error)
}

// Client implements Geocoder and Forecaster against Open-Meteo.
type Client struct {
	geocodeURL  string
	forecastURL string
	http        *http.Client
}

// NewClient uses the shared HTTP client when httpClient is nil.
func NewClient(geocodeURL, forecastURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = capability.SharedHTTPClient(0)
	}
	return &Client{geocodeURL: geocodeURL, forecastURL: forecastURL, http: httpClient}
}

func (c *Client) Lookup(ctx context.Context, city string) (*Place, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	var body struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			CountryCode string  `json:"country_code"`
			Admin1      string  `json:"admin1"`
		} `json:"results"`
	}
	if err := capability.GetJSON(ctx, c.http, c.geocodeURL+"?"+q.Encode(), "geocoding", &body); err != nil {
		return nil, err
	}
	if len(body.Results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrCityNotFound, city)
	}
	r := body.Results[0]
	return &Place{Name: r.Name, Region: r.Admin1, Country: r.CountryCode, Lat: r.Latitude, Lon: r.Longitude}, nil
}

func (c *Client) Forecast(ctx context.Context, lat, lon float64, days int) (*Forecast, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(days))

	var body struct {
		DailyUnits struct {
			TempMax string `json:"temperature_2m_max"`
			Precip  string `json:"precipitation_sum"`
		} `json:"daily_units"`
		Daily struct {
			Time    []string  `json:"time"`
			Code    []int     `json:"weather_code"`
			TempMax []float64 `json:"temperature_2m_max"`
			TempMin []float64 `json:"temperature_2m_min"`
			Precip  []float64 `json:"precipitation_sum"`
		} `json:"daily"`
	}
	if err := capability.GetJSON(ctx, c.http, c.forecastURL+"?"+q.Encode(), "forecast", &body); err != nil {
		return nil, err
	}

	d := body.Daily
	out := &Forecast{TempUnit: body.DailyUnits.TempMax, PrecipUnit: body.DailyUnits.Precip}
	for i, date := range d.Time {
		out.Days = append(out.Days, Day{
			Date:          date,
			Code:          at(d.Code, i),
			TempMax:       at(d.TempMax, i),
			TempMin:       at(d.TempMin, i),
			Precipitation: at(d.Precip, i),
		})
	}
	return out, nil
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

// Describe maps a WMO weather interpretation code to text.
func Describe(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75:
		return "Snow"
	case 77:
		return "Snow grains"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	}
	return fmt.Sprintf("Unknown (code %d)", code)
}
