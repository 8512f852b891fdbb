package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
	"github.com/ppiankov/vigil/internal/util"
)

// RemoteExtractor talks to a standalone extractor service over HTTP.
// POST {base}/extract with the event identity and text; the service answers
// with schema-validated claims.
type RemoteExtractor struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRemoteExtractor creates a client for the extractor service.
// The per-call timeout comes from the caller's context, not the client,
// so the monitor stays in control of the deadline.
func NewRemoteExtractor(cfg model.ExtractorConfig, logger *zap.Logger) *RemoteExtractor {
	return &RemoteExtractor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
		},
		logger: logger,
	}
}

type extractRequest struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type extractResponse struct {
	EventID string        `json:"event_id"`
	Claims  []model.Claim `json:"claims"`
}

// Extract implements Extractor.
func (r *RemoteExtractor) Extract(ctx context.Context, event model.Event) ([]model.Claim, error) {
	body, err := json.Marshal(extractRequest{
		EventID:   event.EventID,
		SessionID: event.SessionID,
		Text:      event.Text,
	})
	if err != nil {
		return nil, &ExtractionError{Kind: KindMalformedOutput, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ExtractionError{Kind: KindTimeout, Err: err}
		}
		return nil, &ExtractionError{Kind: KindUnavailable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &ExtractionError{Kind: KindValidationRejected, Err: httpError(resp)}
	default:
		return nil, &ExtractionError{Kind: KindUnavailable, Err: httpError(resp)}
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ExtractionError{Kind: KindMalformedOutput, Err: err}
	}

	r.logger.Debug("claims extracted",
		zap.String("event_id", event.EventID),
		zap.Int("count", len(parsed.Claims)))
	return parsed.Claims, nil
}

func httpError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("extractor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
