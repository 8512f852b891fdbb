// Package extract defines the claim-extraction contract the monitor
// consumes, plus the concrete clients: a remote extractor service and an
// in-process LLM extractor for OpenAI-compatible endpoints.
package extract

import (
	"context"
	"fmt"

	"github.com/ppiankov/vigil/internal/model"
)

// ErrorKind classifies extraction failures
type ErrorKind string

const (
	KindTimeout            ErrorKind = "timeout"
	KindMalformedOutput    ErrorKind = "malformed_output"
	KindValidationRejected ErrorKind = "validation_rejected"
	KindUnavailable        ErrorKind = "unavailable"
)

// ExtractionError is the typed failure an extractor returns. Every failure
// mode is retryable from the monitor's point of view; the attempt ceiling
// bounds how long it keeps trying.
type ExtractionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor converts one instruction event into zero or more validated
// claims, or a typed failure. Returned claims are trusted to have passed
// the extractor's own schema validation; the caller only verifies identity
// (session_id/event_id) against the source event.
type Extractor interface {
	Extract(ctx context.Context, event model.Event) ([]model.Claim, error)
}

// Mock is a scriptable extractor for tests and dry runs.
type Mock struct {
	ExtractFunc func(ctx context.Context, event model.Event) ([]model.Claim, error)
}

func (m *Mock) Extract(ctx context.Context, event model.Event) ([]model.Claim, error) {
	if m.ExtractFunc == nil {
		return nil, nil
	}
	return m.ExtractFunc(ctx, event)
}
