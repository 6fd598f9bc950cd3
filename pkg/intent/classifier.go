// Package intent classifies free-text messages into structured intents.
package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parley-ai/parley/pkg/completion"
	"github.com/parley-ai/parley/pkg/models"
)

const classifyPrompt = `Classify the customer message for a %s business.
Respond with a single JSON object and nothing else:
{"action": "<short action name>", "category": "<intent category>", "confidence": <0..1>, "canHandleAutonomously": <bool>, "requiresHumanApproval": <bool>}

Message: %s`

// Classifier maps message text plus business type to a structured intent via
// one completion call.
type Classifier struct {
	completions completion.Service
	logger      *slog.Logger
}

func NewClassifier(completions completion.Service, logger *slog.Logger) *Classifier {
	return &Classifier{
		completions: completions,
		logger:      logger.With("module", "intent"),
	}
}

// Classify never fails: a failed or malformed completion downgrades the
// message to the deterministic escalation intent instead of blocking the
// pipeline.
func (c *Classifier) Classify(ctx context.Context, message, businessType string) models.Intent {
	text, err := c.completions.Complete(ctx, fmt.Sprintf(classifyPrompt, businessType, message))
	if err != nil {
		c.logger.WarnContext(ctx, "Intent classification failed, using fallback intent", "error", err)

		return models.FallbackIntent()
	}

	parsed := completion.ParseJSON(text)
	if !parsed.Valid() {
		c.logger.WarnContext(ctx, "Intent classification returned malformed JSON, using fallback intent")

		return models.FallbackIntent()
	}

	fallback := models.FallbackIntent()

	intent := models.Intent{
		Action:                parsed.StringOr("action", ""),
		Category:              parsed.StringOr("category", fallback.Category),
		Confidence:            clamp01(parsed.FloatOr("confidence", fallback.Confidence)),
		CanHandleAutonomously: parsed.BoolOr("canHandleAutonomously", false),
		RequiresHumanApproval: parsed.BoolOr("requiresHumanApproval", true),
	}

	return intent
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
