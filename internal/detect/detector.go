// Package detect implements rule-based contradiction analysis over a
// session's accumulated claims. Detection is pure: no I/O, no clock, no
// dependence on input order.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/vigil/internal/model"
)

// oppositions is the fixed modality opposition table. All combinations not
// listed here (including "allowed" paired with anything, and any modality
// paired with itself) are non-opposing.
var oppositions = map[model.Modality]map[model.Modality]bool{
	model.ModalityMust:    {model.ModalityMustNot: true},
	model.ModalityMustNot: {model.ModalityMust: true},
	model.ModalityShould:  {model.ModalityAvoid: true},
	model.ModalityPrefer:  {model.ModalityAvoid: true},
	model.ModalityAvoid:   {model.ModalityShould: true, model.ModalityPrefer: true},
}

// Opposing reports whether two modalities contradict each other.
func Opposing(a, b model.Modality) bool {
	return oppositions[a][b]
}

// PairKey returns the canonical identity of an unordered claim pair.
// Conflict deduplication keys on this value.
func PairKey(claimA, claimB string) string {
	if claimB < claimA {
		claimA, claimB = claimB, claimA
	}
	return claimA + "|" + claimB
}

// conflictID derives a deterministic conflict identifier from the claim
// pair, so re-running detection over an unchanged set reproduces the same
// conflicts byte for byte.
func conflictID(pairKey string) string {
	sum := sha256.Sum256([]byte(pairKey))
	return "cfl_" + hex.EncodeToString(sum[:])[:12]
}

// groupKey buckets claims constrained on the same action and target.
// Exact string equality only; synonym resolution is a known limitation.
type groupKey struct {
	action string
	target string
}

// Detect finds contradictions between claims. It is total: malformed claims
// are excluded rather than aborting the run, and an empty input yields an
// empty result. Output is sorted by conflict ID.
func Detect(claims []model.Claim) []model.Conflict {
	groups := make(map[groupKey][]model.Claim)
	for _, c := range claims {
		if !c.WellFormed() {
			continue
		}
		key := groupKey{action: c.Action, target: c.Target}
		groups[key] = append(groups[key], c)
	}

	var conflicts []model.Conflict
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		// Fix an order inside the group so pair enumeration does not
		// depend on input order.
		sort.Slice(group, func(i, j int) bool { return group[i].ClaimID < group[j].ClaimID })

		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				c1, c2 := group[i], group[j]
				if !Opposing(c1.Modality, c2.Modality) {
					continue
				}
				if !scopesOverlap(c1, c2) {
					continue
				}
				conflicts = append(conflicts, newConflict(c1, c2))
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ConflictID < conflicts[j].ConflictID })
	return conflicts
}

// scopesOverlap applies the conservative overlap policy: every pair of
// scopes is considered potentially overlapping unless both claims are
// condition-restricted and neither claim's conditions mention the other's
// context. The exclusion test is exact-string containment, not semantic
// negation; false positives are preferred over dropped contradictions.
func scopesOverlap(c1, c2 model.Claim) bool {
	if len(c1.Conditions) == 0 || len(c2.Conditions) == 0 {
		return true
	}
	return conditionsTouch(c1, c2) || conditionsTouch(c2, c1)
}

// conditionsTouch reports whether any condition of a mentions b's target or
// intersects b's conditions by containment.
func conditionsTouch(a, b model.Claim) bool {
	target := strings.ToLower(b.Target)
	for _, raw := range a.Conditions {
		cond := strings.ToLower(strings.TrimSpace(raw))
		if cond == "" {
			continue
		}
		if strings.Contains(target, cond) || strings.Contains(cond, target) {
			return true
		}
		for _, other := range b.Conditions {
			oc := strings.ToLower(strings.TrimSpace(other))
			if oc == "" {
				continue
			}
			if strings.Contains(cond, oc) || strings.Contains(oc, cond) {
				return true
			}
		}
	}
	return false
}

// assessSeverity classifies a qualifying pair. Hard wins whenever the
// contradiction is unconditional, regardless of scope difference; scope and
// style are secondary, and soft covers any remaining conditional pair.
func assessSeverity(c1, c2 model.Claim) model.Severity {
	if c1.Unconditional() && c2.Unconditional() {
		return model.SeverityHard
	}
	if c1.Scope.Level() >= 0 && c2.Scope.Level() >= 0 && c1.Scope.Level() != c2.Scope.Level() {
		return model.SeverityScope
	}
	if preferencePair(c1.Modality, c2.Modality) {
		return model.SeverityStyle
	}
	return model.SeveritySoft
}

// preferencePair reports whether the opposing pair comes from the
// preference set rather than the obligation set.
func preferencePair(a, b model.Modality) bool {
	isPref := func(m model.Modality) bool {
		return m == model.ModalityPrefer || m == model.ModalityAvoid
	}
	return isPref(a) && isPref(b)
}

func newConflict(c1, c2 model.Claim) model.Conflict {
	pair := PairKey(c1.ClaimID, c2.ClaimID)
	ids := []string{c1.ClaimID, c2.ClaimID}
	sort.Strings(ids)

	explanation := fmt.Sprintf("Contradictory instructions: %s %s vs %s %s on '%s'",
		c1.Modality, c1.Action, c2.Modality, c2.Action, c1.Target)

	return model.Conflict{
		ConflictID:  conflictID(pair),
		SessionID:   c1.SessionID,
		Claims:      ids,
		Severity:    assessSeverity(c1, c2),
		Explanation: explanation,
		Confidence:  (c1.Confidence + c2.Confidence) / 2,
	}
}
