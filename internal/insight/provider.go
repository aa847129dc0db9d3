// Package insight enriches predictions with a natural-language analysis from
// an external model. The provider is optional: when it is absent or failing,
// callers fall back to a fixed placeholder instead of blocking the pipeline.
package insight

import (
	"context"

	"threatwatch/internal/threat"
)

// Unavailable is the analysis text used whenever no provider answer exists.
const Unavailable = "AI insights unavailable"

// Provider produces a short analyst-style summary of a threat.
type Provider interface {
	Analyze(ctx context.Context, t threat.Threat) (string, error)
}
