package pipeline

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Two concrete pipelines share one stage vocabulary. Branching between them
// is static per variant; only the flag-gated sub-stages branch at run time.

// NewOperatorPipeline serves the trusted console: full data access, no intent
// classification or autonomous execution, terse responses. The console
// supplies data snapshots instead of the webhook path's classified workflow.
func NewOperatorPipeline(stages *Stages, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	return New("operator", []Stage{
		stages.Identify(),
		stages.LoadMemory(),
		stages.ResolveInstructions(),
		stages.GatherFrontendData(),
		stages.Synthesize(),
		stages.PersistMemory(),
	}, logger, tracer)
}

// NewMemoryRefreshPipeline serves scheduled sweeps: no message, no reply
// synthesis. It re-reads memory snapshots and rewrites them so stale sessions
// keep an up-to-date last_seen trail.
func NewMemoryRefreshPipeline(stages *Stages, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	return New("memory-refresh", []Stage{
		stages.Identify(),
		stages.LoadMemory(),
		stages.PersistMemory(),
	}, logger, tracer)
}

// NewCustomerPipeline serves external webhook traffic: restricted data
// access, guided responses, and the classified-intent autonomous path.
func NewCustomerPipeline(stages *Stages, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	return New("customer", []Stage{
		stages.Identify(),
		stages.LoadMemory(),
		stages.ResolveInstructions(),
		stages.ClassifyIntent(),
		stages.RunAutonomous(),
		stages.Synthesize(),
		stages.PersistMemory(),
	}, logger, tracer)
}
