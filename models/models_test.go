package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModel_SuccessRate(t *testing.T) {
	t.Run("no outcomes yet returns 100", func(t *testing.T) {
		m := &Model{Name: "fresh"}
		assert.Equal(t, 100.0, m.SuccessRate())
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		m := &Model{Name: "mixed", SuccessfulTasks: 3, FailedTasks: 1}
		assert.Equal(t, 75.0, m.SuccessRate())
	})

	t.Run("all failures", func(t *testing.T) {
		m := &Model{Name: "broken", FailedTasks: 5}
		assert.Equal(t, 0.0, m.SuccessRate())
	})
}

func TestModel_HasCapacity(t *testing.T) {
	base := Model{
		Name:       "gpt-4o",
		Enabled:    true,
		RPMAllowed: 10,
		TPMTotal:   1000,
		RPDTotal:   100,
		TPDTotal:   10000,
	}

	tests := []struct {
		name     string
		modify   func(m *Model)
		usage    ModelUsage
		tokens   int
		expected bool
	}{
		{
			name:     "plenty of headroom",
			usage:    ModelUsage{},
			tokens:   500,
			expected: true,
		},
		{
			name:     "disabled model never has capacity",
			modify:   func(m *Model) { m.Enabled = false },
			usage:    ModelUsage{},
			tokens:   1,
			expected: false,
		},
		{
			name:     "requests per minute exhausted",
			usage:    ModelUsage{RequestsLastMinute: 10},
			tokens:   1,
			expected: false,
		},
		{
			name:     "exactly one request left",
			usage:    ModelUsage{RequestsLastMinute: 9},
			tokens:   1,
			expected: true,
		},
		{
			name:     "tokens per minute insufficient",
			usage:    ModelUsage{TokensLastMinute: 600},
			tokens:   500,
			expected: false,
		},
		{
			name:     "tokens per minute exactly sufficient",
			usage:    ModelUsage{TokensLastMinute: 500},
			tokens:   500,
			expected: true,
		},
		{
			name:     "requests per day exhausted",
			usage:    ModelUsage{RequestsToday: 100},
			tokens:   1,
			expected: false,
		},
		{
			name:     "tokens per day insufficient",
			usage:    ModelUsage{TokensToday: 9800},
			tokens:   500,
			expected: false,
		},
		{
			name:     "zero-token probe against full day quota",
			usage:    ModelUsage{TokensToday: 10000},
			tokens:   0,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			if tt.modify != nil {
				tt.modify(&m)
			}
			assert.Equal(t, tt.expected, m.HasCapacity(&tt.usage, tt.tokens))
		})
	}
}
