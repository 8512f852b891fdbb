package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
)

func testClaim(id, eventID string, modality model.Modality) model.Claim {
	return model.Claim{
		ClaimID:    id,
		SessionID:  "session_a",
		EventID:    eventID,
		Modality:   modality,
		Action:     "file_write",
		Target:     "production files",
		Conditions: []string{},
		Exceptions: []string{},
		Confidence: 0.9,
		Evidence:   []string{"some quote"},
	}
}

func TestClaimStore_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := NewClaimStore(dir, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	batch1 := []model.Claim{testClaim("clm_1", "evt_1", model.ModalityMustNot)}
	batch2 := []model.Claim{
		testClaim("clm_2", "evt_2", model.ModalityMust),
		testClaim("clm_3", "evt_2", model.ModalityShould),
	}

	if err := s.Append("session_a", batch1); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("session_a", batch2); err != nil {
		t.Fatal(err)
	}

	claims, err := s.BySession("session_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}
	if claims[0].ClaimID != "clm_1" || claims[2].ClaimID != "clm_3" {
		t.Errorf("claims out of append order: %v", claims)
	}

	n, err := s.CountByEvent("session_a", "evt_2")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 claims for evt_2, got %d", n)
	}
}

func TestClaimStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewClaimStore(dir, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Append("session_a", []model.Claim{testClaim("clm_1", "evt_1", model.ModalityMust)}); err != nil {
		t.Fatal(err)
	}

	s2, err := NewClaimStore(dir, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s2.BySession("session_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 1 || claims[0].ClaimID != "clm_1" {
		t.Errorf("claims not durable across reopen: %v", claims)
	}
}

func TestClaimStore_UnknownSessionIsEmpty(t *testing.T) {
	s, err := NewClaimStore(t.TempDir(), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s.BySession("nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 0 {
		t.Errorf("expected no claims, got %d", len(claims))
	}
}

func TestClaimStore_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	s, err := NewClaimStore(dir, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append("session_a", []model.Claim{testClaim("clm_1", "evt_1", model.ModalityMust)}); err != nil {
		t.Fatal(err)
	}

	// Corrupt the partition with a trailing partial write.
	path := filepath.Join(dir, "claims", "session_a.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{\"claim_id\": truncated\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	// Reopen to bypass the snapshot cache.
	s2, err := NewClaimStore(dir, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s2.BySession("session_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 1 {
		t.Errorf("expected corrupt line to be skipped, got %d claims", len(claims))
	}
}

func TestConflictStore_DeduplicatesByPair(t *testing.T) {
	dir := t.TempDir()
	s, err := NewConflictStore(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	conflict := model.Conflict{
		ConflictID:  "cfl_abc",
		SessionID:   "session_a",
		Claims:      []string{"clm_1", "clm_2"},
		Severity:    model.SeverityHard,
		Explanation: "Contradictory instructions: must file_write vs must_not file_write on 'production files'",
		Confidence:  0.9,
	}

	fresh, err := s.AppendNew("session_a", []model.Conflict{conflict})
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected 1 fresh conflict, got %d", len(fresh))
	}

	// Same pair again: nothing new, even with a different conflict ID.
	dup := conflict
	dup.ConflictID = "cfl_other"
	fresh, err = s.AppendNew("session_a", []model.Conflict{dup})
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected duplicate pair to be dropped, got %d", len(fresh))
	}

	all, err := s.BySession("session_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 persisted conflict, got %d", len(all))
	}
}

func TestConflictStore_DedupSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewConflictStore(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	conflict := model.Conflict{
		ConflictID: "cfl_abc",
		SessionID:  "session_a",
		Claims:     []string{"clm_1", "clm_2"},
		Severity:   model.SeverityHard,
		Confidence: 0.9,
	}
	if _, err := s1.AppendNew("session_a", []model.Conflict{conflict}); err != nil {
		t.Fatal(err)
	}

	s2, err := NewConflictStore(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := s2.AppendNew("session_a", []model.Conflict{conflict})
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 0 {
		t.Error("pair index must be rebuilt from disk on reopen")
	}

	all, err := s2.BySession("session_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 conflict after reopen, got %d", len(all))
	}
}
