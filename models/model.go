package models

import (
	"time"
)

// Model represents a generative model registered in the routing catalog.
// Models are created and updated only through the idempotent catalog seed;
// they are never deleted at runtime.
type Model struct {
	// Name uniquely identifies the model across all providers
	Name string `json:"name" db:"name"`

	// Provider is the upstream origin that executes this model (e.g. "openai", "gemini")
	Provider string `json:"provider" db:"provider"`

	// Rank orders models within a provider; lower is preferred
	Rank int `json:"rank" db:"rank"`

	// Description is free text shown to the decision oracle
	Description string `json:"description" db:"description"`

	// Enabled gates the model in and out of candidate sets
	Enabled bool `json:"enabled" db:"enabled"`

	// Quota ceilings. A model is a valid execution target only while
	// remaining capacity on all four is non-negative.
	RPMAllowed int `json:"rpm_allowed" db:"rpm_allowed"` // requests per minute
	TPMTotal   int `json:"tpm_total" db:"tpm_total"`     // tokens per minute
	RPDTotal   int `json:"rpd_total" db:"rpd_total"`     // requests per day
	TPDTotal   int `json:"tpd_total" db:"tpd_total"`     // tokens per day

	// Lifetime aggregate counters, updated transactionally with each outcome
	SuccessfulTasks int `json:"successful_tasks" db:"successful_tasks"`
	FailedTasks     int `json:"failed_tasks" db:"failed_tasks"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SuccessRate returns the lifetime success percentage for the model.
// Returns 100 when the model has no recorded outcomes yet, so that fresh
// models are not penalised against established ones.
func (m *Model) SuccessRate() float64 {
	total := m.SuccessfulTasks + m.FailedTasks
	if total == 0 {
		return 100.0
	}
	return float64(m.SuccessfulTasks) / float64(total) * 100.0
}

// ModelUsage holds the four sliding-window sums for a model. Values are
// recomputed from usage events on every read; they are never stored as
// resettable counters.
type ModelUsage struct {
	RequestsLastMinute int `json:"requests_last_minute"`
	TokensLastMinute   int `json:"tokens_last_minute"`
	RequestsToday      int `json:"requests_today"`
	TokensToday        int `json:"tokens_today"`
}

// HasCapacity reports whether the model has headroom on all four quotas for
// one more request consuming the given number of tokens.
func (m *Model) HasCapacity(usage *ModelUsage, tokens int) bool {
	if !m.Enabled {
		return false
	}
	if m.RPMAllowed-usage.RequestsLastMinute < 1 {
		return false
	}
	if m.RPDTotal-usage.RequestsToday < 1 {
		return false
	}
	if m.TPMTotal-usage.TokensLastMinute < tokens {
		return false
	}
	if m.TPDTotal-usage.TokensToday < tokens {
		return false
	}
	return true
}
