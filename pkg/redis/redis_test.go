package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestClient_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewFromClient(db)

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, client.Ping(context.Background()))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())

	// disabled client는 항상 healthy
	assert.NoError(t, (&Client{}).Ping(context.Background()))
}

func TestCache_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, _ := New(cfg)
	cache := NewCache(client, "test")

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(context.Background(), "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
	if err := cache.Set(context.Background(), "key", "value", TTLShort); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}

func TestCache_GetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(db), "universe")

	mock.ExpectGet("universe:cache:assets:2024-01-02").SetVal(`[{"sid":1,"symbol":"AAPL"}]`)

	var got []map[string]interface{}
	found, err := cache.Get(context.Background(), AssetsKey("2024-01-02"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0]["symbol"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_GetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(db), "universe")

	mock.ExpectGet("universe:cache:assets:2024-01-03").RedisNil()

	var got []string
	found, err := cache.Get(context.Background(), AssetsKey("2024-01-03"), &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(db), "universe")

	mock.ExpectGet("universe:cache:assets:2024-01-04").SetErr(context.DeadlineExceeded)

	var got []string
	found, err := cache.Get(context.Background(), AssetsKey("2024-01-04"), &got)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestCache_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(db), "universe")

	mock.ExpectSet("universe:cache:sessions:2024-01-01:2024-01-31", []byte(`["a","b"]`), time.Hour).SetVal("OK")

	err := cache.Set(context.Background(), SessionsKey("2024-01-01", "2024-01-31"), []string{"a", "b"}, time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{
			name:     "SessionsKey",
			fn:       func() string { return SessionsKey("2024-01-01", "2024-01-31") },
			expected: "sessions:2024-01-01:2024-01-31",
		},
		{
			name:     "AssetsKey",
			fn:       func() string { return AssetsKey("2024-01-15") },
			expected: "assets:2024-01-15",
		},
		{
			name:     "UniverseKey",
			fn:       func() string { return UniverseKey("2024-01-15") },
			expected: "universe:2024-01-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
