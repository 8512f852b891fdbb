// Package store holds the monitor's durable state: append-only claim and
// conflict partitions keyed by session, plus the mutable-by-key processing
// ledger keyed by event. Everything survives restarts via JSONL files that
// are flushed on every write.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
)

// ClaimStore is the append-only set of accepted claims, partitioned by
// session. Reads are served from a TTL snapshot cache that is invalidated
// on every append, so the detector always sees a claim set that includes
// the write that triggered it.
type ClaimStore struct {
	dir    string
	mu     sync.Mutex
	cache  *gocache.Cache
	logger *zap.Logger
}

// NewClaimStore creates the claims partition under dir.
func NewClaimStore(dir string, snapshotTTL time.Duration, logger *zap.Logger) (*ClaimStore, error) {
	claimsDir := filepath.Join(dir, "claims")
	if err := os.MkdirAll(claimsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create claims dir: %w", err)
	}
	if snapshotTTL <= 0 {
		snapshotTTL = 5 * time.Minute
	}
	return &ClaimStore{
		dir:    claimsDir,
		cache:  gocache.New(snapshotTTL, 2*snapshotTTL),
		logger: logger,
	}, nil
}

// Append durably persists claims for their session. The write is flushed
// before returning so a subsequent crash cannot lose an accepted claim.
func (s *ClaimStore) Append(sessionID string, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendJSONL(s.path(sessionID), claims); err != nil {
		return fmt.Errorf("append claims: %w", err)
	}

	s.cache.Delete(sessionID)
	s.logger.Info("claims saved",
		zap.String("session_id", sessionID),
		zap.Int("count", len(claims)))
	return nil
}

// BySession returns all claims recorded for a session, oldest first.
func (s *ClaimStore) BySession(sessionID string) ([]model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, found := s.cache.Get(sessionID); found {
		return cached.([]model.Claim), nil
	}

	var claims []model.Claim
	err := readJSONL(s.path(sessionID), func(line []byte) {
		var c model.Claim
		if jsonErr := json.Unmarshal(line, &c); jsonErr != nil {
			s.logger.Warn("skipping invalid claim line",
				zap.String("session_id", sessionID),
				zap.Error(jsonErr))
			return
		}
		claims = append(claims, c)
	})
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}

	s.cache.Set(sessionID, claims, gocache.DefaultExpiration)
	return claims, nil
}

// CountByEvent returns how many stored claims trace to the given event.
func (s *ClaimStore) CountByEvent(sessionID, eventID string) (int, error) {
	claims, err := s.BySession(sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range claims {
		if c.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (s *ClaimStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

// appendJSONL appends one JSON document per line and syncs the file.
func appendJSONL[T any](path string, items []T) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return f.Sync()
}

// readJSONL invokes fn for every line of the file. A missing file is not an
// error: the partition simply has no entries yet.
func readJSONL(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}
