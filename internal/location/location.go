// Package location asks the host for the current position and hands it to
// the weather fetcher.
package location

import (
	"context"
	"fmt"
	"log"
	"time"

	"companion-bridge/internal/core"
)

// Defaults used when the caller passes a zero PositionOptions field.
const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaximumAge = 30 * time.Minute
)

// PositionSource is the host's geolocation primitive.
type PositionSource interface {
	CurrentPosition(ctx context.Context, opts core.PositionOptions) (core.Coordinates, error)
}

// WeatherFetcher fetches weather for resolved coordinates.
type WeatherFetcher interface {
	Fetch(ctx context.Context, c core.Coordinates) (core.DeviceMessage, error)
}

// Resolver resolves the position and fetches weather for it.
type Resolver struct {
	source  PositionSource
	weather WeatherFetcher
	opts    core.PositionOptions
}

// NewResolver creates a Resolver.
func NewResolver(source PositionSource, weather WeatherFetcher, opts core.PositionOptions) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaximumAge <= 0 {
		opts.MaximumAge = DefaultMaximumAge
	}
	return &Resolver{source: source, weather: weather, opts: opts}
}

// Options returns the acquisition policy passed to the host.
func (r *Resolver) Options() core.PositionOptions {
	return r.opts
}

// Resolve asks the host for the current position.
func (r *Resolver) Resolve(ctx context.Context) (core.Coordinates, error) {
	log.Println("[Location] Requesting location...")
	c, err := r.source.CurrentPosition(ctx, r.opts)
	if err != nil {
		return core.Coordinates{}, fmt.Errorf("%w: %w", core.ErrLocation, err)
	}
	return c, nil
}

// ResolveAndFetchWeather resolves the position and, on success, fetches the
// weather for it. A location failure is returned as is; there is no retry and
// no fallback position.
func (r *Resolver) ResolveAndFetchWeather(ctx context.Context) (core.DeviceMessage, error) {
	c, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return r.weather.Fetch(ctx, c)
}
