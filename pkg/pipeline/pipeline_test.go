package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/testutil"
)

func testTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("test")
}

func okStage(name string, patch models.ContextPatch) Stage {
	return Stage{
		Name: name,
		Run: func(context.Context, *models.ProcessingContext) (models.ContextPatch, error) {
			return patch, nil
		},
	}
}

func failingStage(name string) Stage {
	return Stage{
		Name: name,
		Run: func(context.Context, *models.ProcessingContext) (models.ContextPatch, error) {
			return models.ContextPatch{}, errors.New("store unavailable")
		},
	}
}

func TestPipeline_AppliesPatchesInOrder(t *testing.T) {
	pipeline := New("test", []Stage{
		okStage("first", models.ContextPatch{Role: models.RoleNewCustomer}),
		okStage("second", models.ContextPatch{
			Role:  models.RoleExistingCustomer,
			Reply: "hello",
		}),
	}, slog.Default(), testTracer())

	pc := testutil.CreateTestContext()
	pc.Role = ""

	out := pipeline.Run(context.Background(), pc)

	assert.Equal(t, models.RoleExistingCustomer, out.Role)
	assert.Equal(t, "hello", out.Reply)
}

// A stage failure mid-run aborts the remaining stages and produces the
// single-shot fallback reply instead of an error.
func TestPipeline_StageErrorProducesFallbackReply(t *testing.T) {
	terminalRan := false

	pipeline := New("test", []Stage{
		okStage("identification", models.ContextPatch{SessionID: "biz:user:s1"}),
		failingStage("memory-load"),
		{
			Name: "response-synthesis",
			Run: func(context.Context, *models.ProcessingContext) (models.ContextPatch, error) {
				terminalRan = true

				return models.ContextPatch{}, nil
			},
		},
	}, slog.Default(), testTracer())

	pc := testutil.CreateTestContext()

	out := pipeline.Run(context.Background(), pc)

	assert.False(t, terminalRan, "stages after the failure must not run")
	assert.NotEmpty(t, out.Reply)
	assert.Equal(t, "biz:user:s1", out.SessionID, "session id from completed stages survives")
	assert.Contains(t, out.Reply, out.Business.Name)

	require.NotEmpty(t, out.Actions)
	last := out.Actions[len(out.Actions)-1]
	assert.Equal(t, "pipeline_fallback", last.Type)
	assert.Equal(t, models.ActionStatusFailed, last.Status)
}

func TestPipeline_StagePanicIsContained(t *testing.T) {
	pipeline := New("test", []Stage{
		{
			Name: "identification",
			Run: func(context.Context, *models.ProcessingContext) (models.ContextPatch, error) {
				panic("nil map write")
			},
		},
	}, slog.Default(), testTracer())

	pc := testutil.CreateTestContext()

	out := pipeline.Run(context.Background(), pc)

	assert.NotEmpty(t, out.Reply)
	assert.NotEmpty(t, out.SessionID, "a session id is minted for the fallback")
	assert.NotContains(t, out.Reply, "panic")
	assert.NotContains(t, out.Reply, "nil map")
}

func TestFallbackReply_OperatorGetsTerseMessage(t *testing.T) {
	operator := testutil.CreateTestContext(testutil.WithOperatorSource())

	reply := FallbackReply(operator)

	assert.NotContains(t, reply, "Thanks for reaching out")
}

func TestFallbackReply_CustomerGetsBusinessName(t *testing.T) {
	customer := testutil.CreateTestContext()

	assert.Contains(t, FallbackReply(customer), customer.Business.Name)

	customer.Business = nil
	assert.Contains(t, FallbackReply(customer), "our team")
}
