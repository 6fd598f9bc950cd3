// Package models defines the core data model for conversation orchestration.
package models

import (
	"time"
)

// Source identifies where an inbound message entered the system.
type Source string

const (
	SourceOperatorConsole Source = "operator-console"
	SourceExternalWebhook Source = "external-webhook"
	SourceScheduledJob    Source = "scheduled-job"
)

// Role is the inferred role of the message author.
type Role string

const (
	RoleOperator         Role = "operator"
	RoleNewCustomer      Role = "new-customer"
	RoleExistingCustomer Role = "existing-customer"
	RoleAnonymous        Role = "anonymous"
)

// InstructionRole maps a conversation role onto the role axis instructions
// are keyed by. Every non-operator role resolves client instructions.
func (r Role) InstructionRole() string {
	if r == RoleOperator {
		return "operator"
	}

	return "client"
}

// Flag names for the advisory control flags set and read by pipeline stages.
const (
	FlagNeedsResourceSearch    = "needs-resource-search"
	FlagNeedsExternalCall      = "needs-external-call"
	FlagNeedsHumanApproval     = "needs-human-approval"
	FlagNeedsIntrospection     = "needs-introspection"
	FlagNeedsMemoryRefresh     = "needs-memory-refresh"
	FlagNeedsFrontendRoundTrip = "needs-frontend-round-trip"
	FlagNeedsDraft             = "needs-draft"
	FlagNeedsAutonomousRun     = "needs-autonomous-run"
)

// TimeContext carries wall-clock facts derived once when the context is built.
type TimeContext struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	Weekday         string `json:"weekday"`
	IsWeekend       bool   `json:"is_weekend"`
	IsBusinessHours bool   `json:"is_business_hours"`
}

// NewTimeContext derives a TimeContext from a point in time and the business
// opening window (hours in [open, close), local to the supplied time).
func NewTimeContext(t time.Time, openHour, closeHour int) TimeContext {
	weekday := t.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday

	return TimeContext{
		Date:            t.Format("2006-01-02"),
		Time:            t.Format("15:04"),
		Weekday:         weekday.String(),
		IsWeekend:       isWeekend,
		IsBusinessHours: !isWeekend && t.Hour() >= openHour && t.Hour() < closeHour,
	}
}

// MemoryMap is a loaded memory snapshot. Snapshots are plain maps so stages
// can read them without caring which store produced them.
type MemoryMap map[string]any

// ProcessingContext is the single mutable record threaded through one
// pipeline run. Exactly one exists per inbound message; stages never mutate
// it directly but return a ContextPatch the executor merges in.
type ProcessingContext struct {
	BusinessID string `json:"business_id"`
	LocationID string `json:"location_id,omitempty"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	Source     Source `json:"source"`
	Channel    string `json:"channel"`
	Role       Role   `json:"role"`

	Message string      `json:"message"`
	Time    TimeContext `json:"time"`

	Business *BusinessProfile `json:"business,omitempty"`
	History  []Turn           `json:"history,omitempty"`

	BusinessMemory  MemoryMap            `json:"business_memory,omitempty"`
	UserMemory      MemoryMap            `json:"user_memory,omitempty"`
	ChannelMemories map[string]MemoryMap `json:"channel_memories,omitempty"`

	Flags map[string]bool `json:"flags,omitempty"`

	Instructions []Instruction `json:"instructions,omitempty"`
	Intent       *Intent       `json:"intent,omitempty"`

	// Accumulators. Append-only for the duration of one run.
	ResourceResults []ResourceResult        `json:"resource_results,omitempty"`
	ExternalCalls   []ExternalCallResult    `json:"external_calls,omitempty"`
	Queries         []DataQuery             `json:"queries,omitempty"`
	Drafts          []Draft                 `json:"drafts,omitempty"`
	Autonomous      *AutonomousActionResult `json:"autonomous,omitempty"`

	// Output. Populated by the terminal stage only.
	Reply   string   `json:"reply,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// ResourceResult is one entry in the resource-operation accumulator.
type ResourceResult struct {
	Resource  string    `json:"resource"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExternalCallResult is one entry in the external-API accumulator.
type ExternalCallResult struct {
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	StatusCode int    `json:"status_code"`
	Body       any    `json:"body,omitempty"`
	Err        string `json:"error,omitempty"`
}

// DataQuery is a generated data-access query and its result.
type DataQuery struct {
	Query  string `json:"query"`
	Result any    `json:"result,omitempty"`
}

// Draft is a produced draft object awaiting operator review.
type Draft struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// ActionStatus is the lifecycle state of an output action.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusPending ActionStatus = "pending"
)

// Action is one structured entry of the pipeline's output action list.
type Action struct {
	Type    string         `json:"type"`
	Status  ActionStatus   `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
