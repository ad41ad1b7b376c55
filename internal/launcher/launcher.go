// Package launcher opens the remote configuration page for the current options.
// The page's result comes back later through the host's webviewclosed event.
package launcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"companion-bridge/internal/core"
)

// UnknownPlatform is reported when the host cannot say which watch is paired.
const UnknownPlatform = "unknown"

// watchInfoTimeout bounds the platform query so Open never blocks the dispatcher for long.
const watchInfoTimeout = 5 * time.Second

// Host is the part of the host environment the launcher needs.
type Host interface {
	OpenURL(url string) error
	ActiveWatchInfo(ctx context.Context) (core.WatchInfo, error)
}

// Launcher builds the configuration URL and asks the host to open it.
type Launcher struct {
	host    Host
	options *core.OptionsState
	baseURL string
	version string
}

// New creates a Launcher.
func New(host Host, options *core.OptionsState, baseURL, version string) *Launcher {
	return &Launcher{host: host, options: options, baseURL: baseURL, version: version}
}

// Open asks the host to open the configuration page. It does not wait for a result.
func (l *Launcher) Open(ctx context.Context) {
	platform := l.platform(ctx)

	u, err := URL(l.baseURL, l.version, l.options.Current(), platform)
	if err != nil {
		log.Printf("[Launcher] Failed to build configuration URL: %v", err)
		return
	}

	log.Printf("[Launcher] Opening configuration: %s", u)
	if err := l.host.OpenURL(u); err != nil {
		log.Printf("[Launcher] openURL failed: %v", err)
	}
}

func (l *Launcher) platform(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, watchInfoTimeout)
	defer cancel()

	info, err := l.host.ActiveWatchInfo(ctx)
	if err != nil {
		log.Printf("[Launcher] getActiveWatchInfo error: %v", err)
		return UnknownPlatform
	}
	if info.Platform == "" {
		return UnknownPlatform
	}
	return info.Platform
}

// URL encodes the options document and platform into the configuration page URL.
func URL(baseURL, version string, o core.Options, platform string) (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("launcher: encode options: %w", err)
	}
	return fmt.Sprintf("%s?config=%s&platform=%s&v=%s",
		baseURL,
		url.QueryEscape(string(data)),
		url.QueryEscape(platform),
		version,
	), nil
}
