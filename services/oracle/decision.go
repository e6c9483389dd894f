package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/arbiterlabs/arbiter/services"
)

// Decision is the oracle's structured answer: which model to run the task
// on, why, and what it will roughly cost.
type Decision struct {
	Model           string `json:"model" validate:"required"`
	Reasoning       string `json:"reasoning"`
	EstimatedTokens int    `json:"estimated_tokens" validate:"required,gt=0"`
	Complexity      string `json:"complexity" validate:"omitempty,oneof=low medium high"`
}

var validate = validator.New()

// ParseDecision extracts a Decision from loosely structured oracle output.
// The answer must contain a JSON object carrying the required fields; this
// enforces a strict contract rather than scraping best-effort, so malformed
// output reliably routes callers to the deterministic fallback.
func ParseDecision(raw string) (*Decision, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrDecisionUnparseable, err)
	}

	var decision Decision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrDecisionUnparseable, err)
	}

	if err := validate.Struct(&decision); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrDecisionUnparseable, err)
	}

	return &decision, nil
}

// extractJSONObject returns the first balanced top-level JSON object in the
// text. Oracles tend to wrap their answer in prose or markdown fences.
func extractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in oracle output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// skip structural characters inside strings
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object in oracle output")
}
