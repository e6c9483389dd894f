package models

import (
	"time"
)

// UsageEvent is one append-only quota consumption record. Sliding-window
// usage is always computed by summing these events; events are immutable
// once written and are pruned after the longest quota window (24h).
type UsageEvent struct {
	ID        int64     `json:"id" db:"id"`
	Model     string    `json:"model" db:"model"`
	Requests  int       `json:"requests" db:"requests"`
	Tokens    int       `json:"tokens" db:"tokens"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// OutcomeEvent records the terminal result of one execution attempt against
// a model. Outcomes feed the rolling failure-rate window and are retained
// longer than usage events (7 days).
type OutcomeEvent struct {
	ID           int64     `json:"id" db:"id"`
	Model        string    `json:"model" db:"model"`
	TaskType     string    `json:"task_type" db:"task_type"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	TokensUsed   int       `json:"tokens_used" db:"tokens_used"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// Retention horizons for pruning.
const (
	UsageRetention   = 24 * time.Hour
	OutcomeRetention = 7 * 24 * time.Hour
)
