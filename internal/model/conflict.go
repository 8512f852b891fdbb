package model

// Severity classifies the strength and conditionality of a conflict
type Severity string

const (
	// SeverityHard means neither claim carries conditions or exceptions:
	// the contradiction is unconditional.
	SeverityHard Severity = "hard"
	// SeveritySoft means the contradiction only manifests under a sub-case.
	SeveritySoft Severity = "soft"
	// SeverityScope means the claims originate from different scope levels.
	SeverityScope Severity = "scope"
	// SeverityStyle means the opposing pair is drawn from the preference
	// set (prefer/avoid) rather than the obligation set.
	SeverityStyle Severity = "style"
)

// Conflict is a detected contradiction between exactly two claims from the
// same session. Immutable once written; conflicts are never retracted.
type Conflict struct {
	SchemaVersion string   `json:"schema_version,omitempty"`
	ConflictID    string   `json:"conflict_id"`
	SessionID     string   `json:"session_id"`
	Claims        []string `json:"claims"` // exactly two claim IDs, sorted
	Severity      Severity `json:"severity"`
	Explanation   string   `json:"explanation"`
	Confidence    float64  `json:"confidence"`
}
