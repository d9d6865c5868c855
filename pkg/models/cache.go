package models

import "time"

// CacheStats reports cache occupancy and performance.
type CacheStats struct {
	Entries   int           `json:"entries"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"ttl"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Evictions int64         `json:"evictions"`
	Expired   int64         `json:"expired"`
}

// CacheStatus is the body of GET /api/cache/stats.
type CacheStatus struct {
	Enabled bool       `json:"enabled"`
	Stats   CacheStats `json:"stats"`
}

// ClearResult is the body of DELETE /api/cache.
type ClearResult struct {
	Cleared int `json:"cleared"`
}
