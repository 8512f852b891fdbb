package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/detect"
	"github.com/ppiankov/vigil/internal/model"
)

// ConflictStore is the append-only set of detected conflicts, partitioned by
// session and deduplicated by unordered claim-pair identity. Conflicts are
// permanent once detected; nothing is ever rewritten or retracted.
type ConflictStore struct {
	dir    string
	mu     sync.Mutex
	pairs  map[string]map[string]bool // session -> pair key -> seen
	logger *zap.Logger
}

// NewConflictStore creates the conflicts partition under dir.
func NewConflictStore(dir string, logger *zap.Logger) (*ConflictStore, error) {
	conflictsDir := filepath.Join(dir, "conflicts")
	if err := os.MkdirAll(conflictsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create conflicts dir: %w", err)
	}
	return &ConflictStore{
		dir:    conflictsDir,
		pairs:  make(map[string]map[string]bool),
		logger: logger,
	}, nil
}

// AppendNew persists the conflicts whose claim pair has not been recorded
// for the session yet and returns them. Re-running detection over an
// unchanged claim set therefore appends nothing.
func (s *ConflictStore) AppendNew(sessionID string, conflicts []model.Conflict) ([]model.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.pairIndex(sessionID)
	if err != nil {
		return nil, err
	}

	var fresh []model.Conflict
	for _, c := range conflicts {
		if len(c.Claims) != 2 {
			s.logger.Warn("dropping conflict without exactly two claims",
				zap.String("conflict_id", c.ConflictID))
			continue
		}
		key := detect.PairKey(c.Claims[0], c.Claims[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, c)
	}

	if len(fresh) == 0 {
		return nil, nil
	}
	if err := appendJSONL(s.path(sessionID), fresh); err != nil {
		return nil, fmt.Errorf("append conflicts: %w", err)
	}

	s.logger.Info("conflicts saved",
		zap.String("session_id", sessionID),
		zap.Int("count", len(fresh)))
	return fresh, nil
}

// BySession returns all conflicts recorded for a session, oldest first.
func (s *ConflictStore) BySession(sessionID string) ([]model.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(sessionID)
}

// pairIndex lazily builds the in-memory dedup index for a session from its
// persisted conflicts.
func (s *ConflictStore) pairIndex(sessionID string) (map[string]bool, error) {
	if seen, ok := s.pairs[sessionID]; ok {
		return seen, nil
	}
	existing, err := s.loadLocked(sessionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		if len(c.Claims) == 2 {
			seen[detect.PairKey(c.Claims[0], c.Claims[1])] = true
		}
	}
	s.pairs[sessionID] = seen
	return seen, nil
}

func (s *ConflictStore) loadLocked(sessionID string) ([]model.Conflict, error) {
	var conflicts []model.Conflict
	err := readJSONL(s.path(sessionID), func(line []byte) {
		var c model.Conflict
		if jsonErr := json.Unmarshal(line, &c); jsonErr != nil {
			s.logger.Warn("skipping invalid conflict line",
				zap.String("session_id", sessionID),
				zap.Error(jsonErr))
			return
		}
		conflicts = append(conflicts, c)
	})
	if err != nil {
		return nil, fmt.Errorf("load conflicts: %w", err)
	}
	return conflicts, nil
}

func (s *ConflictStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}
