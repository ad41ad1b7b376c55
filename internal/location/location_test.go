package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"companion-bridge/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls int
	opts  core.PositionOptions
	pos   core.Coordinates
	err   error
}

func (f *fakeSource) CurrentPosition(_ context.Context, opts core.PositionOptions) (core.Coordinates, error) {
	f.calls++
	f.opts = opts
	return f.pos, f.err
}

type fakeWeather struct {
	calls int
	got   core.Coordinates
}

func (f *fakeWeather) Fetch(_ context.Context, c core.Coordinates) (core.DeviceMessage, error) {
	f.calls++
	f.got = c
	return core.DeviceMessage{"weather_icon_id": 1, "weather_temperature": 20}, nil
}

func TestNewResolver_Defaults(t *testing.T) {
	r := NewResolver(&fakeSource{}, &fakeWeather{}, core.PositionOptions{})
	assert.Equal(t, 60*time.Second, r.Options().Timeout)
	assert.Equal(t, 30*time.Minute, r.Options().MaximumAge)
}

func TestResolveAndFetchWeather_Success(t *testing.T) {
	src := &fakeSource{pos: core.Coordinates{Latitude: 48.1, Longitude: 11.6}}
	w := &fakeWeather{}
	r := NewResolver(src, w, core.PositionOptions{Timeout: time.Minute, MaximumAge: 30 * time.Minute})

	msg, err := r.ResolveAndFetchWeather(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.DeviceMessage{"weather_icon_id": 1, "weather_temperature": 20}, msg)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, src.pos, w.got)
	assert.Equal(t, core.PositionOptions{Timeout: time.Minute, MaximumAge: 30 * time.Minute}, src.opts)
}

func TestResolveAndFetchWeather_LocationFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("User denied Geolocation")}
	w := &fakeWeather{}
	r := NewResolver(src, w, core.PositionOptions{})

	msg, err := r.ResolveAndFetchWeather(context.Background())

	assert.Nil(t, msg)
	assert.ErrorIs(t, err, core.ErrLocation)
	assert.Contains(t, err.Error(), "User denied Geolocation")
	assert.Equal(t, 1, src.calls, "no retry")
	assert.Zero(t, w.calls, "no fallback fetch")
}
