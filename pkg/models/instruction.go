package models

import "fmt"

// GeneralBusinessType is the business-type segment matched when no
// type-specific instruction exists.
const GeneralBusinessType = "general"

// DefaultTopic and DefaultVersion pin the instruction lookup axis that is not
// varied per request yet.
const (
	DefaultTopic   = "general"
	DefaultVersion = "v1"
)

// Step error-handling policies.
const (
	ErrorPolicyStop     = "stop"
	ErrorPolicyContinue = "continue"
)

// Step kinds dispatched by the autonomous executor.
const (
	StepKindAPICall          = "api_call"
	StepKindExtractData      = "extract_data"
	StepKindCreateRecord     = "create_record"
	StepKindSendConfirmation = "send_confirmation"
)

// Capabilities are the free-form capability flags an instruction grants.
type Capabilities struct {
	CanAccessAllData    bool   `json:"can_access_all_data"    yaml:"can_access_all_data"`
	CanViewPersonalInfo bool   `json:"can_view_personal_info" yaml:"can_view_personal_info"`
	CanModify           bool   `json:"can_modify"             yaml:"can_modify"`
	ResponseStyle       string `json:"response_style"         yaml:"response_style"`
}

// StepValidation is a declarative predicate evaluated against a step's result
// data. A failed predicate makes the step a failure even when the underlying
// call succeeded.
type StepValidation struct {
	Field    string `json:"field"              yaml:"field"`
	NotEmpty bool   `json:"not_empty"          yaml:"not_empty"`
	Equals   string `json:"equals,omitempty"   yaml:"equals,omitempty"`
}

// WorkflowStep is one declared step of an instruction's autonomous workflow.
type WorkflowStep struct {
	Action        string          `json:"action"                  yaml:"action"        validate:"required"`
	Kind          string          `json:"kind"                    yaml:"kind"          validate:"required"`
	Config        map[string]any  `json:"config,omitempty"        yaml:"config"`
	Validation    *StepValidation `json:"validation,omitempty"    yaml:"validation"`
	ErrorHandling string          `json:"error_handling"          yaml:"error_handling"`
}

// SuccessCriterion names a step action that must have at least one
// successful, matching step result for the workflow to count as a success.
type SuccessCriterion struct {
	Action string `json:"action" yaml:"action"`
}

// Instruction is a role- and business-type-scoped behavioral rule set.
// Read-only from the orchestration core's perspective.
type Instruction struct {
	BusinessType string `json:"business_type" yaml:"business_type" validate:"required"`
	Role         string `json:"role"          yaml:"role"          validate:"required"`
	Topic        string `json:"topic"         yaml:"topic"`
	Version      string `json:"version"       yaml:"version"`

	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`
	Body         string       `json:"body"         yaml:"body"`

	Steps           []WorkflowStep     `json:"steps,omitempty"            yaml:"steps"`
	SuccessCriteria []SuccessCriterion `json:"success_criteria,omitempty" yaml:"success_criteria"`
}

// Key is the composite lookup key {businessType}.{role}.{topic}.{version}.
func (i Instruction) Key() string {
	topic := i.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	version := i.Version
	if version == "" {
		version = DefaultVersion
	}

	return fmt.Sprintf("%s.%s.%s.%s", i.BusinessType, i.Role, topic, version)
}

// InstructionKey builds the lookup key for a resolver probe.
func InstructionKey(businessType, role string) string {
	return fmt.Sprintf("%s.%s.%s.%s", businessType, role, DefaultTopic, DefaultVersion)
}
