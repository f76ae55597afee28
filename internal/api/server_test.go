package api

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/pkg/config"
	"github.com/wonny/tradable-universe/pkg/logger"
)

func TestWriteTimeout(t *testing.T) {
	tests := []struct {
		name    string
		request time.Duration
		want    time.Duration
	}{
		{"unset", 0, 15 * time.Second},
		{"negative", -time.Second, 15 * time.Second},
		{"build timeout", time.Minute, 65 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, writeTimeout(tt.request))
		})
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := &config.Config{Port: "0", Env: "development", API: config.APIConfig{RequestTimeout: time.Second}}
	srv := New(cfg, logger.NewNop(), newTestRouter(t, newMemRepo(), nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	// Shutdown 후 Serve는 에러 없이 반환
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
