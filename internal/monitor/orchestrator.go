// Package monitor drives the pipeline: it polls the ledger for new
// instruction events, runs extraction exactly once per event with bounded
// retries, and invokes conflict detection over each session's accumulated
// claims.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ppiankov/vigil/internal/detect"
	"github.com/ppiankov/vigil/internal/extract"
	"github.com/ppiankov/vigil/internal/ledger"
	"github.com/ppiankov/vigil/internal/model"
	"github.com/ppiankov/vigil/internal/store"
	"github.com/ppiankov/vigil/internal/worker"
)

// Orchestrator owns the polling cycle. Each cycle is a barrier: all due
// work for all sessions is processed before the next sleep. Sessions are
// independent and run concurrently; events within one session are processed
// in order so detection never sees a partially updated claim set.
type Orchestrator struct {
	ledger    ledger.Client
	extractor extract.Extractor
	claims    *store.ClaimStore
	conflicts *store.ConflictStore
	records   *store.ProcessingLedger
	logger    *zap.Logger

	interval       time.Duration
	retryCeiling   int
	sessionWorkers int
	extractTimeout time.Duration
	limiter        *rate.Limiter

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	lastCycle time.Time
}

// New wires an orchestrator from its collaborators and configuration.
func New(
	lc ledger.Client,
	ex extract.Extractor,
	claims *store.ClaimStore,
	conflicts *store.ConflictStore,
	records *store.ProcessingLedger,
	cfg *model.Config,
	logger *zap.Logger,
) *Orchestrator {
	burst := cfg.Extractor.RateBurst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.Extractor.RateLimit)
	if cfg.Extractor.RateLimit <= 0 {
		limit = rate.Inf
	}

	return &Orchestrator{
		ledger:         lc,
		extractor:      ex,
		claims:         claims,
		conflicts:      conflicts,
		records:        records,
		logger:         logger,
		interval:       cfg.Monitor.PollInterval,
		retryCeiling:   cfg.Monitor.RetryCeiling,
		sessionWorkers: cfg.Monitor.SessionWorkers,
		extractTimeout: cfg.Extractor.Timeout,
		limiter:        rate.NewLimiter(limit, burst),
		stopCh:         make(chan struct{}),
	}
}

// Start runs the polling loop in a background goroutine. The first cycle
// runs immediately so recovery work is not delayed by a full interval.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-o.stopCh
			cancel()
		}()

		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		o.logger.Info("monitor started",
			zap.Duration("interval", o.interval),
			zap.Int("retry_ceiling", o.retryCeiling),
			zap.Int("session_workers", o.sessionWorkers))

		if err := o.RunCycle(ctx); err != nil {
			o.logger.Error("cycle failed", zap.Error(err))
		}
		for {
			select {
			case <-ticker.C:
				if err := o.RunCycle(ctx); err != nil {
					o.logger.Error("cycle failed", zap.Error(err))
				}
			case <-o.stopCh:
				o.logger.Info("monitor stopped")
				return
			}
		}
	}()
}

// Stop shuts the loop down and waits for the in-flight cycle to end.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.wg.Wait()
}

// RunCycle processes all due work for all known sessions, fanning sessions
// out over the worker pool, and records the cycle time when done. A failure
// to even list sessions is the only error that aborts a cycle; per-session
// failures are contained and logged.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	sessions, err := o.ledger.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	pool := worker.NewPool(ctx, o.sessionWorkers)
	pool.Start()
	for _, sessionID := range sessions {
		pool.Submit(&sessionJob{orchestrator: o, sessionID: sessionID})
	}
	for _, result := range pool.Wait() {
		if err := result.GetError(); err != nil {
			o.logger.Error("session processing failed", zap.Error(err))
		}
	}

	o.mu.Lock()
	o.lastCycle = time.Now()
	o.mu.Unlock()
	return nil
}

// sessionJob is one session's share of a cycle.
type sessionJob struct {
	orchestrator *Orchestrator
	sessionID    string
}

type sessionResult struct {
	sessionID string
	err       error
}

func (r *sessionResult) GetError() error { return r.err }

func (j *sessionJob) Execute(ctx context.Context) worker.Result {
	err := j.orchestrator.processSession(ctx, j.sessionID)
	if err != nil {
		err = fmt.Errorf("session %s: %w", j.sessionID, err)
	}
	return &sessionResult{sessionID: j.sessionID, err: err}
}

// processSession runs extraction for every due event of one session, in
// event order, then detection once if anything completed. A failing event
// never blocks progress on the events after it.
func (o *Orchestrator) processSession(ctx context.Context, sessionID string) error {
	events, err := o.ledger.Events(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	completed := 0
	for _, event := range events {
		if event.EventID == "" || event.SessionID != sessionID {
			o.logger.Warn("skipping event with broken identity",
				zap.String("session_id", sessionID),
				zap.String("event_id", event.EventID))
			continue
		}
		if !o.records.Eligible(event.EventID, o.retryCeiling) {
			continue
		}
		if o.processEvent(ctx, event) {
			completed++
		}
		if ctx.Err() != nil {
			break
		}
	}

	if completed > 0 {
		o.detectSession(sessionID)
	}
	return nil
}

// processEvent attempts extraction for a single event and resolves its
// processing record. Returns true when the event reached completed state.
func (o *Orchestrator) processEvent(ctx context.Context, event model.Event) bool {
	rec, ok := o.records.Acquire(event.EventID, event.SessionID, o.retryCeiling)
	if !ok {
		return false
	}

	claims, err := o.extractEvent(ctx, event)
	if err == nil {
		err = o.acceptClaims(event, claims)
	}
	if err != nil {
		if ferr := o.records.Fail(event.EventID, err.Error()); ferr != nil {
			o.logger.Error("failed to record failure", zap.String("event_id", event.EventID), zap.Error(ferr))
		}
		o.logger.Warn("event processing failed",
			zap.String("event_id", event.EventID),
			zap.String("session_id", event.SessionID),
			zap.Int("attempt", rec.Attempts),
			zap.Error(err))
		return false
	}

	if cerr := o.records.Complete(event.EventID, len(claims)); cerr != nil {
		o.logger.Error("failed to record completion", zap.String("event_id", event.EventID), zap.Error(cerr))
	}
	o.logger.Info("event processed",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.Int("claims_extracted", len(claims)))
	return true
}

// extractEvent calls the extractor under the rate limiter with a hard
// deadline. No store lock is held while the call is in flight; a timed-out
// call fails the attempt and persists nothing.
func (o *Orchestrator) extractEvent(ctx context.Context, event model.Event) ([]model.Claim, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, &extract.ExtractionError{Kind: extract.KindTimeout, Err: err}
	}

	callCtx := ctx
	if o.extractTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.extractTimeout)
		defer cancel()
	}
	return o.extractor.Extract(callCtx, event)
}

// acceptClaims verifies claim identity against the source event, stamps the
// event's scope onto each claim, and durably persists them. An identity
// mismatch is a failure of the whole extraction, never silently corrected.
func (o *Orchestrator) acceptClaims(event model.Event, claims []model.Claim) error {
	for i := range claims {
		if claims[i].SessionID != event.SessionID || claims[i].EventID != event.EventID {
			return fmt.Errorf("claim %s does not match source event identity", claims[i].ClaimID)
		}
		claims[i].Scope = event.Scope
	}
	if err := o.claims.Append(event.SessionID, claims); err != nil {
		return fmt.Errorf("persist claims: %w", err)
	}
	return nil
}

// detectSession runs the detector over the session's full current claim set
// and appends any conflicts not already recorded for their claim pair.
func (o *Orchestrator) detectSession(sessionID string) {
	claims, err := o.claims.BySession(sessionID)
	if err != nil {
		o.logger.Error("failed to load claims for detection",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	found := detect.Detect(claims)
	fresh, err := o.conflicts.AppendNew(sessionID, found)
	if err != nil {
		o.logger.Error("failed to persist conflicts",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	for _, c := range fresh {
		o.logger.Info("conflict detected",
			zap.String("conflict_id", c.ConflictID),
			zap.String("session_id", sessionID),
			zap.String("severity", string(c.Severity)),
			zap.Float64("confidence", c.Confidence))
	}
}

// Status reports the operator-facing pipeline summary.
func (o *Orchestrator) Status() model.Status {
	sessions, pending, failed := o.records.Counts(o.retryCeiling)

	o.mu.Lock()
	last := o.lastCycle
	o.mu.Unlock()

	return model.Status{
		SessionsTracked: sessions,
		PendingCount:    pending,
		FailedCount:     failed,
		LastCycleTime:   last,
	}
}
