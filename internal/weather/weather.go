// Package weather fetches current conditions from OpenWeatherMap and turns
// them into the two-field weather message the watch understands.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"companion-bridge/internal/core"

	"golang.org/x/time/rate"
)

// Message keys.
const (
	KeyIconID      = "weather_icon_id"
	KeyTemperature = "weather_temperature"
)

// nightOffset is added to the icon code for night variants.
const nightOffset = 100

// UnitsFunc returns the temperature units preference at the time a response is handled.
type UnitsFunc func() core.TemperatureUnits

// response is the subset of the OpenWeatherMap current-weather payload we read.
type response struct {
	Weather []struct {
		Icon string `json:"icon"`
	} `json:"weather"`
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

// Fetcher queries the weather endpoint.
type Fetcher struct {
	endpoint   string
	apiKey     string
	units      UnitsFunc
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFetcher creates a Fetcher. A nil httpClient uses http.DefaultClient; a nil
// limiter disables the quota guard. With a limiter, Fetch waits for a token.
func NewFetcher(endpoint, apiKey string, units UnitsFunc, httpClient *http.Client, limiter *rate.Limiter) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		endpoint:   endpoint,
		apiKey:     apiKey,
		units:      units,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// URL builds the request URL for the given coordinates.
func (f *Fetcher) URL(c core.Coordinates) string {
	return fmt.Sprintf("%s?lat=%s&lon=%s&APPID=%s",
		f.endpoint,
		strconv.FormatFloat(c.Latitude, 'f', -1, 64),
		strconv.FormatFloat(c.Longitude, 'f', -1, 64),
		f.apiKey,
	)
}

// Fetch issues one GET for the coordinates and returns the weather message.
func (f *Fetcher) Fetch(ctx context.Context, c core.Coordinates) (core.DeviceMessage, error) {
	if f.limiter != nil {
		// excess requests queue behind the quota; only cancellation aborts them
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("weather: quota wait: %w", err)
		}
	}

	log.Printf("[Weather] Requesting weather for lat=%v, lon=%v", c.Latitude, c.Longitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(c), nil)
	if err != nil {
		return nil, fmt.Errorf("weather: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("weather: %w: HTTP %d", core.ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("weather: failed to read response: %w", err)
	}

	return f.parse(body)
}

func (f *Fetcher) parse(body []byte) (core.DeviceMessage, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("weather: %w: %v", core.ErrParse, err)
	}
	if len(r.Weather) == 0 {
		return nil, fmt.Errorf("weather: %w: payload missing weather array", core.ErrParse)
	}
	if r.Main == nil || r.Main.Temp == nil {
		return nil, fmt.Errorf("weather: %w: payload missing main.temp", core.ErrParse)
	}

	iconID, err := ResolveIcon(r.Weather[0].Icon)
	if err != nil {
		return nil, err
	}

	units := core.Fahrenheit
	if f.units != nil {
		units = f.units()
	}
	temperature := ConvertTemperature(*r.Main.Temp, units)

	log.Printf("[Weather] Weather icon=%d, temperature=%d", iconID, temperature)

	return core.DeviceMessage{
		KeyIconID:      iconID,
		KeyTemperature: temperature,
	}, nil
}

// ResolveIcon maps an icon code such as "09n" to the watch's icon id: the
// leading two digits, plus 100 when the third character is 'n'.
func ResolveIcon(icon string) (int, error) {
	if len(icon) < 2 {
		return 0, fmt.Errorf("weather: %w: malformed icon %q", core.ErrParse, icon)
	}
	base, err := strconv.Atoi(icon[:2])
	if err != nil {
		return 0, fmt.Errorf("weather: %w: malformed icon %q", core.ErrParse, icon)
	}
	if len(icon) > 2 && icon[2] == 'n' {
		return base + nightOffset, nil
	}
	return base, nil
}

// ConvertTemperature converts Kelvin to the preferred unit. Celsius is rounded
// before the Fahrenheit conversion, so Fahrenheit values follow the rounded Celsius.
func ConvertTemperature(kelvin float64, units core.TemperatureUnits) int {
	celsius := core.Round(kelvin - 273.15)
	if units == core.Fahrenheit {
		return core.Round(float64(celsius)*1.8 + 32)
	}
	return celsius
}
