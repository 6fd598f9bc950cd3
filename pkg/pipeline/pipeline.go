// Package pipeline composes ordered transformation stages over one mutable
// processing context per inbound message.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/otelhelper"
)

// Stage is one named transformation step. A stage is a pure function of the
// context it receives: it returns a partial patch and never mutates the
// context in place.
type Stage struct {
	Name string
	Run  func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error)
}

// Pipeline threads a processing context through its stage list, merging each
// stage's patch before invoking the next.
type Pipeline struct {
	name   string
	stages []Stage
	logger *slog.Logger
	tracer trace.Tracer
}

func New(name string, stages []Stage, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	return &Pipeline{
		name:   name,
		stages: stages,
		logger: logger.With("module", "pipeline", "pipeline", name),
		tracer: tracer,
	}
}

// Run executes the stage list sequentially. A stage error or panic aborts
// the remaining stages; the caller then receives a minimal fallback reply
// derived from the business profile and raw message, never an error.
func (p *Pipeline) Run(ctx context.Context, pc *models.ProcessingContext) *models.ProcessingContext {
	logger := p.logger.With(
		"business_id", pc.BusinessID,
		"user_id", pc.UserID,
		"source", string(pc.Source),
	)

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "pipeline.run",
		attribute.String(otelhelper.PipelineNameKey, p.name),
		attribute.String(otelhelper.BusinessIDKey, pc.BusinessID),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting pipeline run", "stages", len(p.stages))

	for _, stage := range p.stages {
		patch, err := p.runStage(ctx, stage, pc)
		if err != nil {
			logger.WarnContext(ctx, "Stage failed, aborting pipeline and falling back",
				"stage", stage.Name, "error", err)
			otelhelper.SetError(span, err, attribute.String(otelhelper.StageNameKey, stage.Name))

			p.applyFallback(pc)

			return pc
		}

		patch.Apply(pc)
	}

	logger.InfoContext(ctx, "Pipeline run finished", "actions", len(pc.Actions))

	return pc
}

// runStage isolates a single stage invocation so a panic inside a stage is
// indistinguishable from a stage error at the pipeline level.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, pc *models.ProcessingContext) (patch models.ContextPatch, err error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "pipeline.stage",
		attribute.String(otelhelper.StageNameKey, stage.Name),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, r)
		}
	}()

	return stage.Run(ctx, pc)
}

// applyFallback produces the always-available single-shot reply. The session
// id survives (or is minted) so the caller can continue the conversation.
func (p *Pipeline) applyFallback(pc *models.ProcessingContext) {
	if pc.SessionID == "" {
		pc.SessionID = fmt.Sprintf("%s:%s:%s", pc.BusinessID, pc.UserID, uuid.NewString())
	}

	pc.Reply = FallbackReply(pc)
	pc.Actions = append(pc.Actions, models.Action{
		Type:   "pipeline_fallback",
		Status: models.ActionStatusFailed,
		Details: map[string]any{
			"reason": "stage failure",
		},
	})
}

// FallbackReply builds the minimal reply from whatever identity facts are
// available. No raw error ever reaches the end user.
func FallbackReply(pc *models.ProcessingContext) string {
	name := "our team"
	if pc.Business != nil && pc.Business.Name != "" {
		name = pc.Business.Name
	}

	if pc.Role == models.RoleOperator {
		return "Something went wrong while processing that request. Please try again."
	}

	return fmt.Sprintf("Thanks for reaching out to %s! I couldn't fully process your message right now, but someone will get back to you shortly.", name)
}
