package tool

import (
	"context"
	"fmt"
	"strings"

	"toolbox/internal/capability/weather"
	"toolbox/internal/domain"
)

// WeatherTool reports a daily forecast for a city.
type WeatherTool struct {
	geocoder   weather.Geocoder
	forecaster weather.Forecaster
}

// NewWeatherTool returns getWeather.
func NewWeatherTool(g weather.Geocoder, f weather.Forecaster) *WeatherTool {
	return &WeatherTool{geocoder: g, forecaster: f}
}

func (t *WeatherTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "getWeather",
		Title:       "Weather Forecast",
		Description: "Get the daily weather forecast for a city: conditions, high/low temperature and precipitation.",
		Schema: Schema{Fields: []Field{
			{Name: "city", Type: TypeString, Required: true, MaxLength: 100,
				Description: "City name, for example 'Seattle' or 'Paris'"},
			{Name: "days", Type: TypeInteger, Min: Bound(1), Max: Bound(7), Default: 3,
				Description: "Number of days to forecast (1-7)"},
		}},
	}
}

func (t *WeatherTool) Handle(ctx context.Context, call *Call) (*domain.Result, error) {
	city := strings.TrimSpace(call.Args.String("city"))
	days := call.Args.Int("days")

	place, err := t.geocoder.Lookup(ctx, city)
	if err != nil {
		return nil, err
	}
	fc, err := t.forecaster.Forecast(ctx, place.Lat, place.Lon, days)
	if err != nil {
		return nil, err
	}
	return domain.TextResult(formatForecast(place, fc)), nil
}

func formatForecast(place *weather.Place, fc *weather.Forecast) string {
	tempUnit := fc.TempUnit
	if tempUnit == "" {
		tempUnit = "°C"
	}
	precipUnit := fc.PrecipUnit
	if precipUnit == "" {
		precipUnit = "mm"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Weather forecast for %s, %s", place.Name, place.Country)
	if place.Region != "" && place.Region != place.Name {
		fmt.Fprintf(&sb, " (%s)", place.Region)
	}
	fmt.Fprintf(&sb, "\nCoordinates: %.2f, %.2f\n", place.Lat, place.Lon)
	if len(fc.Days) == 0 {
		sb.WriteString("\nNo forecast data available.")
		return sb.String()
	}
	for _, d := range fc.Days {
		fmt.Fprintf(&sb, "\n%s: %s, %.1f%s to %.1f%s, precipitation %.1f %s",
			d.Date, weather.Describe(d.Code), d.TempMin, tempUnit, d.TempMax, tempUnit, d.Precipitation, precipUnit)
	}
	return sb.String()
}
