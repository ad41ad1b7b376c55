package core

import "context"

// Host is the set of primitives the host environment provides.
type Host interface {
	SendAppMessage(msg DeviceMessage) error
	OpenURL(url string) error
	ActiveWatchInfo(ctx context.Context) (WatchInfo, error)
	CurrentPosition(ctx context.Context, opts PositionOptions) (Coordinates, error)
}
