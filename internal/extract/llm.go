package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
)

// LLMExtractor runs claim extraction in-process against any
// OpenAI-compatible chat completion endpoint (OpenAI itself, or Ollama's
// /v1 API for local models). Unlike the remote extractor, output validation
// happens here: individual malformed claims are rejected, not the batch.
type LLMExtractor struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewLLMExtractor creates an in-process extractor.
func NewLLMExtractor(cfg model.ExtractorConfig, logger *zap.Logger) (*LLMExtractor, error) {
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.Mode == "ollama" {
		apiKey = "ollama" // the endpoint ignores it, the client requires one
	}
	if apiKey == "" {
		return nil, fmt.Errorf("extractor api key is required for mode %q", cfg.Mode)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &LLMExtractor{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// rawClaim is the shape the model is asked to produce for each claim.
type rawClaim struct {
	Modality   string   `json:"modality"`
	Action     string   `json:"action"`
	Target     string   `json:"target"`
	Conditions []string `json:"conditions"`
	Exceptions []string `json:"exceptions"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, event model.Event) ([]model.Claim, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildExtractionPrompt(event.Text)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ExtractionError{Kind: KindTimeout, Err: err}
		}
		return nil, &ExtractionError{Kind: KindUnavailable, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ExtractionError{Kind: KindMalformedOutput, Err: fmt.Errorf("no completion choices")}
	}

	raws, err := parseRawClaims(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, &ExtractionError{Kind: KindMalformedOutput, Err: err}
	}

	claims := make([]model.Claim, 0, len(raws))
	rejected := 0
	for i, raw := range raws {
		claim, vErr := buildClaim(event, raw)
		if vErr != nil {
			rejected++
			e.logger.Warn("rejecting invalid claim",
				zap.String("event_id", event.EventID),
				zap.Int("claim_index", i),
				zap.Error(vErr))
			continue
		}
		claims = append(claims, claim)
	}

	// A model that produced claims but none that validate is a failure,
	// not an empty extraction.
	if len(raws) > 0 && len(claims) == 0 {
		return nil, &ExtractionError{
			Kind: KindValidationRejected,
			Err:  fmt.Errorf("all %d claims failed validation", rejected),
		}
	}

	e.logger.Info("claims extracted",
		zap.String("event_id", event.EventID),
		zap.Int("count", len(claims)),
		zap.Int("rejected", rejected))
	return claims, nil
}

// parseRawClaims tolerates a bare object where an array was requested, and
// strips markdown fences some models wrap around JSON output.
func parseRawClaims(content string) ([]rawClaim, error) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raws []rawClaim
	if err := json.Unmarshal([]byte(text), &raws); err == nil {
		return raws, nil
	}

	var single rawClaim
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return []rawClaim{single}, nil
}

func buildClaim(event model.Event, raw rawClaim) (model.Claim, error) {
	claim := model.Claim{
		SchemaVersion: "1.0",
		ClaimID:       NewClaimID(),
		SessionID:     event.SessionID,
		EventID:       event.EventID,
		Modality:      model.Modality(raw.Modality),
		Action:        raw.Action,
		Target:        raw.Target,
		Conditions:    raw.Conditions,
		Exceptions:    raw.Exceptions,
		Confidence:    raw.Confidence,
		Evidence:      raw.Evidence,
	}
	if claim.Conditions == nil {
		claim.Conditions = []string{}
	}
	if claim.Exceptions == nil {
		claim.Exceptions = []string{}
	}

	switch {
	case !claim.Modality.Known():
		return model.Claim{}, fmt.Errorf("unknown modality %q", raw.Modality)
	case claim.Action == "":
		return model.Claim{}, fmt.Errorf("empty action")
	case claim.Target == "":
		return model.Claim{}, fmt.Errorf("empty target")
	case claim.Confidence < 0 || claim.Confidence > 1:
		return model.Claim{}, fmt.Errorf("confidence %v out of range", raw.Confidence)
	case len(claim.Evidence) == 0:
		return model.Claim{}, fmt.Errorf("evidence must contain at least one quote")
	}
	return claim, nil
}

// NewClaimID generates a unique claim identifier.
func NewClaimID() string {
	return "clm_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(`You are a semantic claim extractor. Your job is to extract explicit rules and instructions from text.

RULES:
1. Only extract explicitly stated rules
2. Include verbatim evidence (quote exact text)
3. Return JSON only
4. If ambiguous, return empty list or low confidence
5. Use descriptive action names (e.g., "file_write", "internet_access", "tool_use")
6. Use only these modalities: must, must_not, should, prefer, avoid, allowed

INPUT: %s

OUTPUT: a JSON array of claims, each shaped like:
[{"modality": "...", "action": "...", "target": "...", "conditions": [], "exceptions": [], "confidence": 0.0, "evidence": ["exact quote"]}]

Examples:
- "Never modify production files" -> {"modality": "must_not", "action": "file_write", "target": "production files", "conditions": [], "exceptions": [], "confidence": 0.95, "evidence": ["Never modify production files"]}
- "Use verbose logging" -> {"modality": "should", "action": "set_verbosity", "target": "logging", "conditions": [], "exceptions": [], "confidence": 0.9, "evidence": ["Use verbose logging"]}

If no rules are found, return: []
Return ONLY the JSON array, no explanations or markdown.`, text)
}
