package oracle

import (
	"context"

	"github.com/arbiterlabs/arbiter/services"
)

// disabled is an Oracle whose Consult always fails, which routes every
// selection through the deterministic fallback. Used when no arbiter
// provider is configured.
type disabled struct{}

// Disabled returns an always-failing Oracle
func Disabled() Oracle {
	return disabled{}
}

func (disabled) Consult(ctx context.Context, candidates, task string) (*Decision, error) {
	return nil, services.ErrDecisionUnparseable
}
