package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"companion-bridge/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func fixedUnits(u core.TemperatureUnits) UnitsFunc {
	return func() core.TemperatureUnits { return u }
}

func newServer(t *testing.T, status int, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil {
			*gotQuery = r.URL.RawQuery
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveIcon(t *testing.T) {
	tests := []struct {
		icon string
		want int
	}{
		{"09d", 9},
		{"09n", 109},
		{"10n", 110},
		{"01d", 1},
		{"50n", 150},
		{"13", 13},
	}
	for _, tt := range tests {
		got, err := ResolveIcon(tt.icon)
		require.NoError(t, err, tt.icon)
		assert.Equal(t, tt.want, got, tt.icon)
	}
}

func TestResolveIcon_Malformed(t *testing.T) {
	for _, icon := range []string{"", "9", "xxd"} {
		_, err := ResolveIcon(icon)
		assert.ErrorIs(t, err, core.ErrParse, icon)
	}
}

func TestConvertTemperature(t *testing.T) {
	assert.Equal(t, 81, ConvertTemperature(300.15, core.Fahrenheit))
	assert.Equal(t, 27, ConvertTemperature(300.15, core.Celsius))
	assert.Equal(t, 32, ConvertTemperature(273.15, core.Fahrenheit))
	assert.Equal(t, -10, ConvertTemperature(263.15, core.Celsius))
	assert.Equal(t, 14, ConvertTemperature(263.15, core.Fahrenheit))
}

func TestFetch_Success(t *testing.T) {
	var query string
	srv := newServer(t, http.StatusOK, `{"weather":[{"icon":"10n"}],"main":{"temp":300.15}}`, &query)

	f := NewFetcher(srv.URL, "test-key", fixedUnits(core.Fahrenheit), srv.Client(), nil)
	msg, err := f.Fetch(context.Background(), core.Coordinates{Latitude: 52.52, Longitude: -13.4})
	require.NoError(t, err)

	assert.Equal(t, core.DeviceMessage{KeyIconID: 110, KeyTemperature: 81}, msg)
	assert.Equal(t, "lat=52.52&lon=-13.4&APPID=test-key", query)
}

func TestFetch_ReadsUnitsAtResponseTime(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"weather":[{"icon":"09d"}],"main":{"temp":300.15}}`, nil)

	units := core.Fahrenheit
	f := NewFetcher(srv.URL, "k", func() core.TemperatureUnits { return units }, srv.Client(), nil)
	units = core.Celsius

	msg, err := f.Fetch(context.Background(), core.Coordinates{})
	require.NoError(t, err)
	assert.Equal(t, core.DeviceMessage{KeyIconID: 9, KeyTemperature: 27}, msg)
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http error", http.StatusUnauthorized, `{"cod":401}`, core.ErrHTTPStatus},
		{"not json", http.StatusOK, `<html>`, core.ErrParse},
		{"empty weather", http.StatusOK, `{"weather":[],"main":{"temp":280}}`, core.ErrParse},
		{"missing weather", http.StatusOK, `{"main":{"temp":280}}`, core.ErrParse},
		{"missing main", http.StatusOK, `{"weather":[{"icon":"01d"}]}`, core.ErrParse},
		{"missing temp", http.StatusOK, `{"weather":[{"icon":"01d"}],"main":{}}`, core.ErrParse},
		{"bad icon", http.StatusOK, `{"weather":[{"icon":"?"}],"main":{"temp":280}}`, core.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)
			f := NewFetcher(srv.URL, "k", fixedUnits(core.Celsius), srv.Client(), nil)

			msg, err := f.Fetch(context.Background(), core.Coordinates{})
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func countingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"weather":[{"icon":"01d"}],"main":{"temp":280}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_QuotaDelaysInsteadOfDropping(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, &hits)

	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	f := NewFetcher(srv.URL, "k", fixedUnits(core.Celsius), srv.Client(), limiter)

	start := time.Now()
	for i := 0; i < 3; i++ {
		msg, err := f.Fetch(context.Background(), core.Coordinates{})
		require.NoError(t, err)
		assert.Equal(t, core.DeviceMessage{KeyIconID: 1, KeyTemperature: 7}, msg)
	}

	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestFetch_QuotaWaitAbortsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, &hits)

	f := NewFetcher(srv.URL, "k", fixedUnits(core.Celsius), srv.Client(), rate.NewLimiter(rate.Limit(0.001), 1))

	_, err := f.Fetch(context.Background(), core.Coordinates{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := f.Fetch(ctx, core.Coordinates{})
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), hits.Load())
}
