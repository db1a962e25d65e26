package model

import "time"

// RowStatus is the lifecycle state of a questionnaire row.
type RowStatus string

const (
	RowStatusPending    RowStatus = "pending"
	RowStatusGenerating RowStatus = "generating"
	RowStatusCompleted  RowStatus = "completed"
	RowStatusError      RowStatus = "error"
)

// Message is one turn of conversation history attached to a row.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Row is a single questionnaire row processed by the batch orchestrator.
// Rows are owned exclusively by the orchestrator while a run is active.
type Row struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Question     string    `json:"question"`
	Status       RowStatus `json:"status"`
	Response     string    `json:"response,omitempty"`
	Error        string    `json:"error,omitempty"`
	UsedSkills   []string  `json:"used_skills,omitempty"`
	UsedFallback bool      `json:"used_fallback"`
	Confidence   string    `json:"confidence,omitempty"`
	Sources      string    `json:"sources,omitempty"`
	Remarks      string    `json:"remarks,omitempty"`
	History      []Message `json:"history,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResetForRetry returns the row to pending and clears the previous attempt's
// output so the next run rebuilds it from scratch. Completed rows are left
// untouched; only errored rows are eligible for retry.
func (r *Row) ResetForRetry() bool {
	if r.Status != RowStatusError {
		return false
	}
	r.Status = RowStatusPending
	r.Response = ""
	r.Error = ""
	r.UsedSkills = nil
	r.UsedFallback = false
	r.Confidence = ""
	r.Sources = ""
	r.Remarks = ""
	r.History = nil
	return true
}
