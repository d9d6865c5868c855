package models

import "time"

// UsageRecord tracks one answered chat request.
type UsageRecord struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	Model            string    `json:"model"`
	Language         string    `json:"language"`
	Cached           bool      `json:"cached"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests.
type UsageSummary struct {
	UserID          string `json:"user_id"`
	Model           string `json:"model"`
	Language        string `json:"language"`
	RequestCount    int    `json:"request_count"`
	CachedCount     int    `json:"cached_count"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalTokens     int    `json:"total_tokens"`
}
