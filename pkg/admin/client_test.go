package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepai/prepai/pkg/cache/memory"
	"github.com/prepai/prepai/pkg/config"
	"github.com/prepai/prepai/pkg/models"
	"github.com/prepai/prepai/pkg/server"
)

func noopChat(context.Context, models.ChatRequest) (models.Reply, error) {
	return models.Reply{Status: http.StatusOK, Body: map[string]any{"response": "ok"}}, nil
}

func TestCacheStatsAndClear(t *testing.T) {
	c := memory.New(25, time.Minute)
	c.Set("q1", "sonar-pro", "en", "a1")
	c.Set("q2", "sonar-pro", "en", "a2")
	c.Get("q1", "sonar-pro", "en")

	ts := httptest.NewServer(server.New(config.Default(), noopChat, c, nil, nil))
	defer ts.Close()

	client := New(ts.URL)
	defer client.Close()

	status, err := client.CacheStats(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 2, status.Stats.Entries)
	assert.Equal(t, 25, status.Stats.Capacity)
	assert.EqualValues(t, 1, status.Stats.Hits)

	cleared, err := client.ClearCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	assert.Equal(t, 0, c.Len())
}

func TestServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := New(strings.TrimPrefix(ts.URL, "http://"))
	defer client.Close()

	_, err := client.CacheStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCacheStatsDecodesWireFormat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"enabled":true,"stats":{"entries":3,"capacity":1000,"ttl":300000000000,"hits":7,"misses":2}}`))
	}))
	defer ts.Close()

	client := New(ts.URL)
	defer client.Close()

	status, err := client.CacheStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CacheStats{Entries: 3, Capacity: 1000, TTL: 5 * time.Minute, Hits: 7, Misses: 2}, status.Stats)
}
