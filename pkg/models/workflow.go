package models

import "time"

// RunState tracks an autonomous workflow run through its step loop.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateStopped   RunState = "stopped"
	RunStateCompleted RunState = "completed"
)

// WorkflowStepResult records one attempted step. The JSON shape is persisted
// and read by other components; field names are part of the contract.
type WorkflowStepResult struct {
	Step      int    `json:"step"`
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// NewWorkflowStepResult stamps a step result with an ISO8601 timestamp.
func NewWorkflowStepResult(step int, action string, success bool, data any) WorkflowStepResult {
	return WorkflowStepResult{
		Step:      step,
		Action:    action,
		Success:   success,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// AutonomousActionResult is the primary output of one workflow run.
// The JSON shape is persisted, keep it stable.
type AutonomousActionResult struct {
	Success         bool                 `json:"success"`
	WorkflowResults []WorkflowStepResult `json:"workflowResults"`
	Notification    string               `json:"notification"`
	ShouldRespond   bool                 `json:"shouldRespond"`
	Response        string               `json:"response,omitempty"`
}
