// Package cache composes the in-memory response cache with a chat handler.
package cache

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"reflect"

	"github.com/rs/zerolog/log"

	"github.com/prepai/prepai/pkg/cache/memory"
	"github.com/prepai/prepai/pkg/models"
)

// HandlerFunc produces the reply for a chat request.
type HandlerFunc func(ctx context.Context, req models.ChatRequest) (models.Reply, error)

// Wrap returns a handler that answers repeated requests from c.
//
// On a hit the wrapped handler is not called and the reply is
// {"response": <cached>, "cached": true}. On a miss the wrapped handler's
// reply is returned unchanged; if it carries a truthy "response" and is not
// itself marked cached, that response is stored first. Errors from the
// wrapped handler are returned as-is and nothing is stored.
func Wrap(c *memory.Cache, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req models.ChatRequest) (models.Reply, error) {
		if v, ok := c.Get(req.Message, req.Model, req.Language); ok {
			log.Debug().Str("model", req.Model).Str("language", req.Language).Msg("cache hit")
			return models.Reply{
				Status: http.StatusOK,
				Body:   map[string]any{"response": v, "cached": true},
			}, nil
		}

		reply, err := next(ctx, req)
		if err != nil {
			return reply, err
		}

		if resp, ok := reply.Body["response"]; ok && truthy(resp) && !IsCached(reply) {
			c.Set(req.Message, req.Model, req.Language, resp)
		}
		return reply, nil
	}
}

// IsCached reports whether the reply was served from the cache.
func IsCached(r models.Reply) bool {
	cached, _ := r.Body["cached"].(bool)
	return cached
}

// truthy follows JSON truthiness: null, false, "", 0 and NaN are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return !rv.IsZero()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	default:
		return true
	}
}
