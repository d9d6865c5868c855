package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepai/prepai/pkg/cache/memory"
	"github.com/prepai/prepai/pkg/models"
)

type countingHandler struct {
	calls int
	reply models.Reply
	err   error
}

func (h *countingHandler) Handle(_ context.Context, _ models.ChatRequest) (models.Reply, error) {
	h.calls++
	return h.reply, h.err
}

func okReply(body map[string]any) models.Reply {
	return models.Reply{Status: http.StatusOK, Body: body}
}

func TestWrapShortCircuitsSecondRequest(t *testing.T) {
	c := memory.New(10, time.Minute)
	h := &countingHandler{reply: okReply(map[string]any{"response": "Hello!", "model": "m1"})}
	handler := Wrap(c, h.Handle)

	req := models.ChatRequest{Message: "Hi", Model: "m1", Language: "en"}

	first, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, h.reply, first, "miss path must not alter the reply")
	assert.False(t, IsCached(first))

	second, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.calls, "hit must not invoke the wrapped handler")
	assert.Equal(t, http.StatusOK, second.Status)
	assert.Equal(t, map[string]any{"response": "Hello!", "cached": true}, second.Body)
}

func TestWrapDoesNotStoreOnError(t *testing.T) {
	c := memory.New(10, time.Minute)
	boom := errors.New("upstream down")
	h := &countingHandler{reply: okReply(map[string]any{"response": "partial"}), err: boom}
	handler := Wrap(c, h.Handle)

	_, err := handler(context.Background(), models.ChatRequest{Message: "Hi", Model: "m1", Language: "en"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestWrapSkipsFalsyOrCachedResponses(t *testing.T) {
	cases := map[string]map[string]any{
		"missing":      {"error": "bad request"},
		"empty string": {"response": ""},
		"nil":          {"response": nil},
		"false":        {"response": false},
		"zero":         {"response": 0.0},
		"float32 zero": {"response": float32(0)},
		"int32 zero":   {"response": int32(0)},
		"uint zero":    {"response": uint(0)},
		"json zero":    {"response": json.Number("0")},
		"nan":          {"response": math.NaN()},
		"marked":       {"response": "x", "cached": true},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := memory.New(10, time.Minute)
			h := &countingHandler{reply: okReply(body)}
			_, err := Wrap(c, h.Handle)(context.Background(), models.ChatRequest{Message: "Hi"})
			require.NoError(t, err)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestWrapStoresNonStringResponses(t *testing.T) {
	c := memory.New(10, time.Minute)
	payload := map[string]any{"answer": "42", "sources": []any{"a"}}
	h := &countingHandler{reply: okReply(map[string]any{"response": payload})}
	handler := Wrap(c, h.Handle)

	req := models.ChatRequest{Message: "deep thought", Model: "m", Language: "en"}
	_, err := handler(context.Background(), req)
	require.NoError(t, err)

	v, ok := c.Get(req.Message, req.Model, req.Language)
	require.True(t, ok)
	assert.Equal(t, payload, v)
}

func TestWrapMissingFieldsStillCache(t *testing.T) {
	c := memory.New(10, time.Minute)
	h := &countingHandler{reply: okReply(map[string]any{"response": "ok"})}
	handler := Wrap(c, h.Handle)

	for range 2 {
		_, err := handler(context.Background(), models.ChatRequest{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, h.calls)
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy("answer"))
	assert.True(t, truthy(uint8(1)))
	assert.True(t, truthy(float32(0.5)))
	assert.True(t, truthy(json.Number("2.5")))
	assert.True(t, truthy([]any{}))
	assert.True(t, truthy(map[string]any{}))
	assert.False(t, truthy(int16(0)))
	assert.False(t, truthy(json.Number("0.0")))
	assert.False(t, truthy(json.Number("")))
}
