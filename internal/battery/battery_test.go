package battery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"companion-bridge/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	tests := []struct {
		level, want int
	}{
		{57, 6},
		{54, 5},
		{55, 6},
		{45, 5},
		{0, 0},
		{4, 0},
		{100, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bucket(tt.level), "Bucket(%d)", tt.level)
	}
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"integer level", `{"level":57}`, 6},
		{"fractional level rounds first", `{"level":44.6}`, 5},
		{"full", `{"level":100,"charging":true}`, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			msg, err := NewFetcher(srv.URL, srv.Client()).Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, core.DeviceMessage{KeyAnswer: tt.want}, msg)
		})
	}
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http error", http.StatusServiceUnavailable, "", core.ErrHTTPStatus},
		{"not json", http.StatusOK, "level=57", core.ErrParse},
		{"missing level", http.StatusOK, `{}`, core.ErrParse},
		{"wrong type", http.StatusOK, `{"level":"high"}`, core.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			msg, err := NewFetcher(srv.URL, srv.Client()).Fetch(context.Background())
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewFetcher(url, nil).Fetch(context.Background())
	assert.Error(t, err)
}
