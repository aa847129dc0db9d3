// Package score computes deterministic risk heuristics for threats.
// Every function is pure: no I/O, no failure modes, missing fields fall
// back to safe defaults (severity low, confidence 0.5).
package score

import "threatwatch/internal/threat"

const defaultConfidence = 0.5

var severityBase = map[threat.Severity]float64{
	threat.SeverityCritical: 100,
	threat.SeverityHigh:     75,
	threat.SeverityMedium:   50,
	threat.SeverityLow:      25,
}

var severityMultiplier = map[threat.Severity]float64{
	threat.SeverityCritical: 0.9,
	threat.SeverityHigh:     0.7,
	threat.SeverityMedium:   0.5,
	threat.SeverityLow:      0.3,
}

func confidence(t threat.Threat) float64 {
	if t.Confidence <= 0 {
		return defaultConfidence
	}
	if t.Confidence > 1 {
		return 1
	}
	return t.Confidence
}

// RiskScore maps a threat to [0,100]: severity base weighted by confidence,
// plus 5 per distinct indicator key.
func RiskScore(t threat.Threat) float64 {
	base, ok := severityBase[t.Severity]
	if !ok {
		base = severityBase[threat.SeverityLow]
	}
	s := base * confidence(t)
	s += float64(len(t.Indicators)) * 5
	if s > 100 {
		return 100
	}
	if s < 0 {
		return 0
	}
	return s
}

// SeverityFromScore buckets a risk score into a predicted severity.
func SeverityFromScore(s float64) threat.Severity {
	switch {
	case s >= 80:
		return threat.SeverityCritical
	case s >= 60:
		return threat.SeverityHigh
	case s >= 40:
		return threat.SeverityMedium
	default:
		return threat.SeverityLow
	}
}

// Probability estimates how likely the threat is to materialize, bounded by
// the severity multiplier table (at most 0.9).
func Probability(t threat.Threat) float64 {
	m, ok := severityMultiplier[t.Severity]
	if !ok {
		m = severityMultiplier[threat.SeverityLow]
	}
	return confidence(t) * m
}

// Trend compares the two most recent risk scores against the preceding ones
// within a five-entry window. history holds same-type threats, newest last.
func Trend(history []threat.Threat) threat.TrendDirection {
	if len(history) < 2 {
		return threat.TrendStable
	}

	scores := make([]float64, 0, 5)
	start := len(history) - 5
	if start < 0 {
		start = 0
	}
	for _, t := range history[start:] {
		scores = append(scores, RiskScore(t))
	}

	older := scores[:len(scores)-2]
	recent := scores[len(scores)-2:]
	if len(older) == 0 {
		return threat.TrendStable
	}

	avgRecent := mean(recent)
	avgOlder := mean(older)
	switch {
	case avgRecent > avgOlder*1.1:
		return threat.TrendIncreasing
	case avgRecent < avgOlder*0.9:
		return threat.TrendDecreasing
	default:
		return threat.TrendStable
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
