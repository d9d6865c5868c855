package models

// ChatRequest is the body of a chat assistant request.
type ChatRequest struct {
	Message  string `json:"message"`
	Model    string `json:"model"`
	Language string `json:"language"`
	// UserID is taken from the X-User-ID header, never from the body.
	UserID string `json:"-"`
}

// Reply is the result of a chat handler: an HTTP status and a JSON object body
// shaped as {"response": ..., "cached": bool, ...}.
type Reply struct {
	Status int
	Body   map[string]any
}

// Usage represents token usage reported by the generation API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
