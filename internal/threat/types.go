package threat

import "time"

// Severity classifies how dangerous a threat is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status tracks the lifecycle of an observed threat.
type Status string

const (
	StatusActive        Status = "active"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// Threat is a single observed event.
type Threat struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Source     string         `json:"source"`
	Confidence float64        `json:"confidence"`
	Indicators map[string]any `json:"indicators,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     Status         `json:"status"`
}

// TrendDirection describes how risk for a threat type is moving over time.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendStable     TrendDirection = "stable"
	TrendDecreasing TrendDirection = "decreasing"
)

// Prediction is the derived risk assessment for one threat. It is owned by
// the prediction cache, replaced whole on every refresh and never persisted.
type Prediction struct {
	ThreatID          int64          `json:"threat_id"`
	RiskScore         float64        `json:"risk_score"`
	PredictedSeverity Severity       `json:"predicted_severity"`
	Probability       float64        `json:"probability"`
	TrendDirection    TrendDirection `json:"trend_direction"`
	Indicators        []string       `json:"indicators,omitempty"`
	Insights          string         `json:"insights,omitempty"`
	ComputedAt        time.Time      `json:"computed_at"`
}

// ShareScope controls who can see an intelligence record.
type ShareScope string

const (
	ScopePublic  ShareScope = "public"
	ScopePrivate ShareScope = "private"
	ScopeTrusted ShareScope = "trusted"
)

// Valid reports whether s is a known share scope.
func (s ShareScope) Valid() bool {
	switch s {
	case ScopePublic, ScopePrivate, ScopeTrusted:
		return true
	}
	return false
}

// VerificationStatus is the community consensus on an intelligence record.
// It moves freely between values; the last verify action wins.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationDisputed VerificationStatus = "disputed"
)

// Valid reports whether v is a known verification status.
func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPending, VerificationVerified, VerificationDisputed:
		return true
	}
	return false
}

// Verification is one entry in a record's verification audit log.
type Verification struct {
	UserID    string             `json:"user_id"`
	Timestamp time.Time          `json:"timestamp"`
	Status    VerificationStatus `json:"status"`
}

// Endorsement is one supporting comment on an intelligence record.
type Endorsement struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment"`
}

// IntelligenceRecord is a shared, collaboratively maintained annotation on a
// threat. VerifiedBy and Endorsements are append-only; VerificationStatus is
// last-writer-wins.
type IntelligenceRecord struct {
	ID                 string             `json:"id"`
	ThreatID           int64              `json:"threat_id"`
	SharedBy           string             `json:"shared_by"`
	Insights           string             `json:"insights"`
	Tags               []string           `json:"tags,omitempty"`
	ShareScope         ShareScope         `json:"share_scope"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifiedBy         []Verification     `json:"verified_by,omitempty"`
	Endorsements       []Endorsement      `json:"endorsements,omitempty"`
	Collaborators      []string           `json:"collaborators,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
}

// HasCollaborator reports whether userID already appears in the
// collaborator set.
func (r *IntelligenceRecord) HasCollaborator(userID string) bool {
	for _, c := range r.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}
