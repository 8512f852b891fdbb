package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/vigil/internal/model"
)

func TestParseRawClaims_Array(t *testing.T) {
	raws, err := parseRawClaims(`[{"modality": "must_not", "action": "file_write", "target": "production files", "confidence": 0.95, "evidence": ["Never modify production files"]}]`)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "must_not", raws[0].Modality)
	assert.Equal(t, "file_write", raws[0].Action)
}

func TestParseRawClaims_MarkdownFences(t *testing.T) {
	content := "```json\n[{\"modality\": \"should\", \"action\": \"set_verbosity\", \"target\": \"logging\", \"confidence\": 0.9, \"evidence\": [\"Use verbose logging\"]}]\n```"
	raws, err := parseRawClaims(content)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "should", raws[0].Modality)
}

func TestParseRawClaims_BareObject(t *testing.T) {
	raws, err := parseRawClaims(`{"modality": "must", "action": "tool_use", "target": "shell", "confidence": 0.8, "evidence": ["quote"]}`)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "must", raws[0].Modality)
}

func TestParseRawClaims_EmptyList(t *testing.T) {
	raws, err := parseRawClaims("[]")
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestParseRawClaims_Garbage(t *testing.T) {
	_, err := parseRawClaims("I could not find any rules in that text.")
	assert.Error(t, err)
}

func TestBuildClaim_Valid(t *testing.T) {
	ev := testEvent()
	raw := rawClaim{
		Modality:   "must_not",
		Action:     "file_write",
		Target:     "production files",
		Confidence: 0.95,
		Evidence:   []string{"Never modify production files"},
	}

	claim, err := buildClaim(ev, raw)
	require.NoError(t, err)
	assert.Equal(t, ev.SessionID, claim.SessionID)
	assert.Equal(t, ev.EventID, claim.EventID)
	assert.True(t, strings.HasPrefix(claim.ClaimID, "clm_"))
	assert.Equal(t, model.ModalityMustNot, claim.Modality)
	assert.NotNil(t, claim.Conditions, "nil condition lists must be normalized")
	assert.NotNil(t, claim.Exceptions)
	assert.True(t, claim.WellFormed())
}

func TestBuildClaim_Rejections(t *testing.T) {
	base := rawClaim{
		Modality:   "must",
		Action:     "file_write",
		Target:     "production files",
		Confidence: 0.9,
		Evidence:   []string{"quote"},
	}

	tests := []struct {
		name   string
		mutate func(*rawClaim)
	}{
		{"unknown modality", func(r *rawClaim) { r.Modality = "forbidden" }},
		{"empty action", func(r *rawClaim) { r.Action = "" }},
		{"empty target", func(r *rawClaim) { r.Target = "" }},
		{"confidence above range", func(r *rawClaim) { r.Confidence = 1.5 }},
		{"confidence below range", func(r *rawClaim) { r.Confidence = -0.1 }},
		{"no evidence", func(r *rawClaim) { r.Evidence = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base
			tt.mutate(&raw)
			_, err := buildClaim(testEvent(), raw)
			assert.Error(t, err)
		})
	}
}

func TestNewClaimID(t *testing.T) {
	a, b := NewClaimID(), NewClaimID()
	assert.True(t, strings.HasPrefix(a, "clm_"))
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
