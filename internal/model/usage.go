package model

import "time"

// UsageRecord is an append-only accounting entry written after each
// successful provider call. Never mutated.
type UsageRecord struct {
	ID           string            `json:"id"`
	Feature      string            `json:"feature"`
	Model        string            `json:"model"`
	InputTokens  int64             `json:"input_tokens"`
	OutputTokens int64             `json:"output_tokens"`
	UserID       string            `json:"user_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
