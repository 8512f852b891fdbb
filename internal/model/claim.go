package model

// Modality is the deontic strength of a claim
type Modality string

const (
	ModalityMust    Modality = "must"
	ModalityMustNot Modality = "must_not"
	ModalityShould  Modality = "should"
	ModalityPrefer  Modality = "prefer"
	ModalityAvoid   Modality = "avoid"
	ModalityAllowed Modality = "allowed"
)

// Known reports whether the modality is one of the closed vocabulary.
func (m Modality) Known() bool {
	switch m {
	case ModalityMust, ModalityMustNot, ModalityShould, ModalityPrefer, ModalityAvoid, ModalityAllowed:
		return true
	}
	return false
}

// Claim is a structured logical statement extracted from exactly one event.
// Immutable after creation. Action and target are deliberately open
// vocabulary: the extractor may produce novel values, so no enum closure.
type Claim struct {
	SchemaVersion string   `json:"schema_version,omitempty"`
	ClaimID       string   `json:"claim_id"`
	SessionID     string   `json:"session_id"`
	EventID       string   `json:"event_id"`
	Scope         Scope    `json:"scope,omitempty"` // stamped from the source event on acceptance
	Modality      Modality `json:"modality"`
	Action        string   `json:"action"`
	Target        string   `json:"target"`
	Conditions    []string `json:"conditions"`
	Exceptions    []string `json:"exceptions"`
	Confidence    float64  `json:"confidence"`
	Evidence      []string `json:"evidence"`
}

// Unconditional reports whether the claim carries no conditions or exceptions.
func (c Claim) Unconditional() bool {
	return len(c.Conditions) == 0 && len(c.Exceptions) == 0
}

// WellFormed reports whether the claim has every field the detector relies
// on. Malformed claims are excluded from detection, never a reason to abort.
func (c Claim) WellFormed() bool {
	return c.ClaimID != "" &&
		c.SessionID != "" &&
		c.EventID != "" &&
		c.Modality.Known() &&
		c.Action != "" &&
		c.Target != "" &&
		c.Confidence >= 0 && c.Confidence <= 1
}
