// Package battery reads the phone battery level from the local battery-status
// endpoint and reduces it to the 0-10 bucket shown on the watch.
package battery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"companion-bridge/internal/core"
)

// KeyAnswer is the message key for the battery bucket.
const KeyAnswer = "battery_answer"

type response struct {
	Level *float64 `json:"level"`
}

// Fetcher queries the battery endpoint.
type Fetcher struct {
	endpoint   string
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. A nil httpClient uses http.DefaultClient.
func NewFetcher(endpoint string, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{endpoint: endpoint, httpClient: httpClient}
}

// Fetch issues one GET and returns the battery message.
func (f *Fetcher) Fetch(ctx context.Context) (core.DeviceMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("battery: failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("battery: failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("battery: %w: HTTP %d", core.ErrHTTPStatus, resp.StatusCode)
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("battery: %w: %v", core.ErrParse, err)
	}
	if r.Level == nil {
		return nil, fmt.Errorf("battery: %w: payload missing level", core.ErrParse)
	}

	level := core.Round(*r.Level)
	log.Printf("[Battery] Battery level received: %d", level)

	return core.DeviceMessage{KeyAnswer: Bucket(level)}, nil
}

// Bucket reduces a percentage to a 0-10 bucket.
func Bucket(level int) int {
	return core.Round(float64(level) / 10)
}
