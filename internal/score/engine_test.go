package score

import (
	"testing"

	"threatwatch/internal/threat"
)

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name string
		in   threat.Threat
		want float64
	}{
		{
			name: "critical full confidence",
			in:   threat.Threat{Severity: threat.SeverityCritical, Confidence: 1.0},
			want: 100,
		},
		{
			name: "high with indicators",
			in: threat.Threat{
				Severity:   threat.SeverityHigh,
				Confidence: 0.8,
				Indicators: map[string]any{"a": 1, "b": 2},
			},
			want: 70,
		},
		{
			name: "medium half confidence",
			in:   threat.Threat{Severity: threat.SeverityMedium, Confidence: 0.5},
			want: 25,
		},
		{
			name: "missing confidence defaults to 0.5",
			in:   threat.Threat{Severity: threat.SeverityCritical},
			want: 50,
		},
		{
			name: "unknown severity treated as low",
			in:   threat.Threat{Severity: "bogus", Confidence: 1.0},
			want: 25,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskScore(tt.in); got != tt.want {
				t.Errorf("RiskScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRiskScoreClamped(t *testing.T) {
	indicators := make(map[string]any)
	for i := 0; i < 50; i++ {
		indicators[string(rune('a'+i))] = i
	}
	in := threat.Threat{Severity: threat.SeverityCritical, Confidence: 1.0, Indicators: indicators}
	if got := RiskScore(in); got != 100 {
		t.Errorf("RiskScore with 50 indicators = %v, want clamped 100", got)
	}
}

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  threat.Severity
	}{
		{100, threat.SeverityCritical},
		{80, threat.SeverityCritical},
		{79.9, threat.SeverityHigh},
		{60, threat.SeverityHigh},
		{40, threat.SeverityMedium},
		{39.9, threat.SeverityLow},
		{0, threat.SeverityLow},
	}
	for _, tt := range tests {
		if got := SeverityFromScore(tt.score); got != tt.want {
			t.Errorf("SeverityFromScore(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestProbabilityBounded(t *testing.T) {
	severities := []threat.Severity{
		threat.SeverityLow, threat.SeverityMedium, threat.SeverityHigh, threat.SeverityCritical, "bogus",
	}
	for _, sev := range severities {
		for _, conf := range []float64{0, 0.3, 0.5, 1.0, 5.0} {
			p := Probability(threat.Threat{Severity: sev, Confidence: conf})
			if p < 0 || p > 0.9 {
				t.Errorf("Probability(sev=%s conf=%v) = %v, want within [0, 0.9]", sev, conf, p)
			}
		}
	}
}

func TestProbability(t *testing.T) {
	p := Probability(threat.Threat{Severity: threat.SeverityHigh, Confidence: 0.5})
	if p != 0.35 {
		t.Errorf("Probability = %v, want 0.35", p)
	}
}

func TestTrend(t *testing.T) {
	mk := func(confs ...float64) []threat.Threat {
		out := make([]threat.Threat, len(confs))
		for i, c := range confs {
			out[i] = threat.Threat{Severity: threat.SeverityHigh, Confidence: c}
		}
		return out
	}

	tests := []struct {
		name    string
		history []threat.Threat
		want    threat.TrendDirection
	}{
		{"empty history", nil, threat.TrendStable},
		{"single entry", mk(0.5), threat.TrendStable},
		{"two entries has no comparison window", mk(0.1, 0.9), threat.TrendStable},
		{"rising scores", mk(0.2, 0.2, 0.2, 0.9, 0.9), threat.TrendIncreasing},
		{"falling scores", mk(0.9, 0.9, 0.9, 0.2, 0.2), threat.TrendDecreasing},
		{"flat scores", mk(0.5, 0.5, 0.5, 0.5, 0.5), threat.TrendStable},
		{"window limited to last five", mk(1.0, 1.0, 1.0, 0.2, 0.2, 0.2, 0.9, 0.9), threat.TrendIncreasing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trend(tt.history); got != tt.want {
				t.Errorf("Trend() = %v, want %v", got, tt.want)
			}
		})
	}
}
