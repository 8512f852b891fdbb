package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
)

// ProcessingLedger is the durable record of which events have been
// attempted. It is an explicitly owned, lock-guarded table: loaded on start,
// appended to on every transition, readable at any time.
//
// Persistence is a state log: one JSONL entry per transition, last entry per
// event wins on replay. That makes every transition an O(1) durable append
// and gives crash recovery for free.
type ProcessingLedger struct {
	path   string
	mu     sync.Mutex
	recs   map[string]*model.ProcessingRecord
	held   map[string]bool // events currently held by a live worker, in-memory only
	logger *zap.Logger
	now    func() time.Time
}

// NewProcessingLedger opens the ledger under dir and replays its log.
func NewProcessingLedger(dir string, logger *zap.Logger) (*ProcessingLedger, error) {
	stateDir := filepath.Join(dir, "monitor")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	l := &ProcessingLedger{
		path:   filepath.Join(stateDir, "processing_log.jsonl"),
		recs:   make(map[string]*model.ProcessingRecord),
		held:   make(map[string]bool),
		logger: logger,
		now:    time.Now,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// load replays the transition log. A record still in "processing" after
// replay belonged to a run that crashed mid-extraction; it stays in that
// state (attempts preserved) and Acquire treats it as retryable because the
// log alone cannot distinguish "in progress" from "never finished".
func (l *ProcessingLedger) load() error {
	count := 0
	err := readJSONL(l.path, func(line []byte) {
		var rec model.ProcessingRecord
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
			l.logger.Warn("skipping invalid processing log line", zap.Error(jsonErr))
			return
		}
		r := rec
		l.recs[rec.EventID] = &r
		count++
	})
	if err != nil {
		return fmt.Errorf("load processing log: %w", err)
	}
	l.logger.Info("processing ledger loaded",
		zap.Int("entries", count),
		zap.Int("events", len(l.recs)))
	return nil
}

// Eligible reports whether an event has due work: no record yet, or a
// failed/crashed record with attempts below the ceiling.
func (l *ProcessingLedger) Eligible(eventID string, ceiling int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[eventID] {
		return false
	}
	rec, ok := l.recs[eventID]
	if !ok {
		return true
	}
	switch rec.State {
	case model.StatePending:
		return true
	case model.StateFailed, model.StateProcessing:
		return rec.Attempts < ceiling
	default:
		return false
	}
}

// Acquire atomically transitions an event to "processing" and increments
// attempts. Only one caller can hold an event at a time; a second Acquire
// for the same event returns false until the holder resolves it. Events
// already completed, or failed at the ceiling, are never acquired.
func (l *ProcessingLedger) Acquire(eventID, sessionID string, ceiling int) (model.ProcessingRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[eventID] {
		return model.ProcessingRecord{}, false
	}

	rec, ok := l.recs[eventID]
	if !ok {
		rec = &model.ProcessingRecord{
			EventID:   eventID,
			SessionID: sessionID,
			State:     model.StatePending,
		}
		l.recs[eventID] = rec
	}

	switch rec.State {
	case model.StateCompleted:
		return model.ProcessingRecord{}, false
	case model.StateFailed, model.StateProcessing:
		// StateProcessing here means a crashed prior run: retry it
		// exactly like a failed record, attempts preserved.
		if rec.Attempts >= ceiling {
			return model.ProcessingRecord{}, false
		}
	}

	rec.State = model.StateProcessing
	rec.Attempts++
	rec.UpdatedAt = l.now()
	l.held[eventID] = true

	if err := l.flushLocked(rec); err != nil {
		l.logger.Error("failed to persist processing transition",
			zap.String("event_id", eventID), zap.Error(err))
	}
	return *rec, true
}

// Complete marks a held event as successfully extracted.
func (l *ProcessingLedger) Complete(eventID string, claimsExtracted int) error {
	return l.resolve(eventID, func(rec *model.ProcessingRecord) {
		rec.State = model.StateCompleted
		rec.ClaimsExtracted = claimsExtracted
		rec.LastError = ""
	})
}

// Fail marks a held event as failed with the given error.
func (l *ProcessingLedger) Fail(eventID, lastError string) error {
	return l.resolve(eventID, func(rec *model.ProcessingRecord) {
		rec.State = model.StateFailed
		rec.LastError = lastError
	})
}

func (l *ProcessingLedger) resolve(eventID string, mutate func(*model.ProcessingRecord)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.recs[eventID]
	if !ok || !l.held[eventID] {
		return fmt.Errorf("event %s is not held", eventID)
	}
	mutate(rec)
	rec.UpdatedAt = l.now()
	delete(l.held, eventID)
	return l.flushLocked(rec)
}

// Get returns a copy of the record for an event, if any.
func (l *ProcessingLedger) Get(eventID string) (model.ProcessingRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[eventID]
	if !ok {
		return model.ProcessingRecord{}, false
	}
	return *rec, true
}

// Counts returns how many distinct sessions the ledger has seen plus the
// pending (not yet completed, still retryable) and permanently failed or
// exhausted counts, for status reporting.
func (l *ProcessingLedger) Counts(ceiling int) (sessions, pending, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	for _, rec := range l.recs {
		seen[rec.SessionID] = true
		switch rec.State {
		case model.StatePending:
			pending++
		case model.StateProcessing:
			pending++
		case model.StateFailed:
			if rec.Attempts >= ceiling {
				failed++
			} else {
				pending++
			}
		}
	}
	return len(seen), pending, failed
}

func (l *ProcessingLedger) flushLocked(rec *model.ProcessingRecord) error {
	return appendJSONL(l.path, []model.ProcessingRecord{*rec})
}
