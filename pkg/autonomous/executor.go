// Package autonomous executes a classified intent's workflow: an ordered
// step list run against backend resources with per-step validation and
// configurable partial-failure handling.
package autonomous

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parley-ai/parley/pkg/completion"
	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/notifier"
	"github.com/parley-ai/parley/pkg/resources"
)

// Canned responses used when synthesis is unavailable or the run failed.
const (
	fallbackSuccessResponse = "All done! Your request has been taken care of. Let me know if there is anything else I can help with."
	failureResponse         = "I'm sorry, I wasn't able to complete that for you. A member of the team has been notified and will follow up shortly."
)

// ChannelSender delivers confirmations back to the customer's channel. The
// actual delivery adapter lives outside this core.
type ChannelSender interface {
	Send(ctx context.Context, channel, userID, message string) error
}

// SessionResolver marks the originating conversation resolved after a
// successful run.
type SessionResolver interface {
	MarkResolved(ctx context.Context, sessionID string, resolved bool)
}

// Executor runs instruction workflows. All collaborators are injected; the
// executor owns only the step loop and its partial-failure semantics.
type Executor struct {
	resources   *resources.Client
	completions completion.Service
	store       kvstore.Store
	sender      ChannelSender
	sessions    SessionResolver
	broadcaster notifier.Broadcaster
	logger      *slog.Logger
}

func NewExecutor(
	resourceClient *resources.Client,
	completions completion.Service,
	store kvstore.Store,
	sender ChannelSender,
	sessions SessionResolver,
	broadcaster notifier.Broadcaster,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		resources:   resourceClient,
		completions: completions,
		store:       store,
		sender:      sender,
		sessions:    sessions,
		broadcaster: broadcaster,
		logger:      logger.With("module", "autonomous"),
	}
}

// Execute iterates the instruction's steps in declared order. A failed step
// whose policy is "stop" terminates the loop immediately; otherwise execution
// continues past failures. Every attempted step leaves a result. The global
// success criteria then decide the run's outcome, and a summary notification
// goes to the business's operators either way.
func (e *Executor) Execute(ctx context.Context, instruction models.Instruction, wctx *Context) models.AutonomousActionResult {
	logger := e.logger.With("business_id", wctx.BusinessID, "session_id", wctx.SessionID)

	if wctx.Data == nil {
		wctx.Data = make(map[string]any)
	}

	state := models.RunStatePending
	results := make([]models.WorkflowStepResult, 0, len(instruction.Steps))

	for i, step := range instruction.Steps {
		state = models.RunStateRunning

		stepLogger := logger.With("step", i+1, "action", step.Action, "kind", step.Kind)
		stepLogger.InfoContext(ctx, "Executing workflow step")

		data, err := e.runStep(ctx, step, wctx)
		success := err == nil

		if success && step.Validation != nil && !validate(step.Validation, data) {
			stepLogger.WarnContext(ctx, "Step result failed validation")

			success = false
		}

		if err != nil {
			stepLogger.WarnContext(ctx, "Step failed", "error", err)
		}

		results = append(results, models.NewWorkflowStepResult(i+1, step.Action, success, data))

		if success {
			if out, ok := data.(map[string]any); ok {
				for k, v := range out {
					wctx.Data[k] = v
				}
			}

			continue
		}

		if step.ErrorHandling == models.ErrorPolicyStop {
			state = models.RunStateStopped
			stepLogger.InfoContext(ctx, "Stop policy declared, terminating workflow")

			break
		}
	}

	if state != models.RunStateStopped {
		state = models.RunStateCompleted
	}

	// The criteria alone decide the outcome: an early stop with every
	// criterion already satisfied is still a successful run.
	success := criteriaMet(instruction.SuccessCriteria, results)

	result := models.AutonomousActionResult{
		Success:         success,
		WorkflowResults: results,
		Notification:    e.buildNotification(instruction, results, success),
		ShouldRespond:   true,
	}

	if success {
		result.Response = e.synthesizeResponse(ctx, instruction, results)
		e.sessions.MarkResolved(ctx, wctx.SessionID, true)
	} else {
		result.Response = failureResponse
	}

	e.broadcaster.Broadcast(ctx, wctx.BusinessID, "autonomous_workflow_completed", map[string]any{
		"success":       success,
		"state":         string(state),
		"steps":         len(results),
		"session_id":    wctx.SessionID,
		"customer_id":   wctx.CustomerID,
		"notification":  result.Notification,
		"business_type": instruction.BusinessType,
	})

	logger.InfoContext(ctx, "Workflow run finished",
		"state", state, "success", success, "steps_attempted", len(results))

	return result
}

func (e *Executor) runStep(ctx context.Context, step models.WorkflowStep, wctx *Context) (any, error) {
	config := SubstituteMap(step.Config, wctx)

	switch step.Kind {
	case models.StepKindAPICall:
		return e.runAPICall(ctx, config)
	case models.StepKindExtractData:
		return e.runExtractData(ctx, config)
	case models.StepKindCreateRecord:
		return e.runCreateRecord(ctx, config)
	case models.StepKindSendConfirmation:
		return e.runSendConfirmation(ctx, config, wctx)
	default:
		// Generic pass-through: the resolved config is the result.
		return config, nil
	}
}

func (e *Executor) runAPICall(ctx context.Context, config map[string]any) (any, error) {
	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return nil, fmt.Errorf("api_call step requires an endpoint")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = resources.MethodRead
	}

	payload, _ := config["payload"].(map[string]any)

	response, err := e.resources.Call(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"status_code": response.StatusCode,
		"body":        response.Body,
	}, nil
}

func (e *Executor) runExtractData(ctx context.Context, config map[string]any) (any, error) {
	prompt, _ := config["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("extract_data step requires a prompt")
	}

	text, err := e.completions.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed := completion.ParseJSON(text)
	if !parsed.Valid() {
		return nil, fmt.Errorf("extract_data completion returned no JSON body")
	}

	fields := parsed.MapOr("", map[string]any{})
	if len(fields) == 0 {
		return nil, fmt.Errorf("extract_data completion returned an empty object")
	}

	return fields, nil
}

func (e *Executor) runCreateRecord(ctx context.Context, config map[string]any) (any, error) {
	key, _ := config["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("create_record step requires a key")
	}

	fields, _ := config["fields"].(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}

	if err := e.store.Put(ctx, key, kvstore.Record(fields)); err != nil {
		return nil, err
	}

	return map[string]any{"key": key, "created": true}, nil
}

func (e *Executor) runSendConfirmation(ctx context.Context, config map[string]any, wctx *Context) (any, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, fmt.Errorf("send_confirmation step requires a message")
	}

	if err := e.sender.Send(ctx, wctx.Channel, wctx.CustomerID, message); err != nil {
		return nil, err
	}

	return map[string]any{"sent": true, "channel": wctx.Channel}, nil
}

// validate evaluates a step's declarative predicate against its result data.
func validate(predicate *models.StepValidation, data any) bool {
	fields, ok := data.(map[string]any)
	if !ok {
		return false
	}

	value, exists := lookupField(fields, predicate.Field)

	if predicate.NotEmpty {
		if !exists || value == nil || fmt.Sprint(value) == "" {
			return false
		}
	}

	if predicate.Equals != "" {
		if !exists || fmt.Sprint(value) != predicate.Equals {
			return false
		}
	}

	return true
}

func lookupField(fields map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = fields

	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// criteriaMet requires every criterion to be satisfied by at least one
// successful, matching step. With no criteria declared, every attempted step
// must have succeeded.
func criteriaMet(criteria []models.SuccessCriterion, results []models.WorkflowStepResult) bool {
	if len(criteria) == 0 {
		for _, result := range results {
			if !result.Success {
				return false
			}
		}

		return true
	}

	for _, criterion := range criteria {
		satisfied := false

		for _, result := range results {
			if result.Success && result.Action == criterion.Action {
				satisfied = true

				break
			}
		}

		if !satisfied {
			return false
		}
	}

	return true
}

func (e *Executor) buildNotification(instruction models.Instruction, results []models.WorkflowStepResult, success bool) string {
	succeeded := 0

	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}

	outcome := "completed"
	if !success {
		outcome = "needs attention"
	}

	return fmt.Sprintf("Autonomous workflow %s: %d/%d steps succeeded (%s)",
		outcome, succeeded, len(results), instruction.Key())
}

func (e *Executor) synthesizeResponse(ctx context.Context, instruction models.Instruction, results []models.WorkflowStepResult) string {
	var summary strings.Builder

	for _, result := range results {
		fmt.Fprintf(&summary, "- %s: success=%t\n", result.Action, result.Success)
	}

	prompt := fmt.Sprintf(
		"Write a short, friendly confirmation for a customer of a %s business. These steps were completed on their behalf:\n%sRespond with plain text only.",
		instruction.BusinessType, summary.String())

	text, err := e.completions.Complete(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallbackSuccessResponse
	}

	return strings.TrimSpace(text)
}
