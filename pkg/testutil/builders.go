// Package testutil provides test data builders shared across package tests.
package testutil

import (
	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/models"
)

// CreateTestInstruction creates a client instruction with default values that
// can be overridden.
func CreateTestInstruction(overrides ...func(*models.Instruction)) models.Instruction {
	instruction := models.Instruction{
		BusinessType: "restaurant",
		Role:         "client",
		Topic:        models.DefaultTopic,
		Version:      models.DefaultVersion,
		Body:         "Help guests with reservations and menu questions.",
		Capabilities: models.Capabilities{
			ResponseStyle: "guided",
		},
	}

	for _, override := range overrides {
		override(&instruction)
	}

	return instruction
}

// WithOperatorRole configures the instruction for the operator role with full
// capabilities.
func WithOperatorRole() func(*models.Instruction) {
	return func(i *models.Instruction) {
		i.Role = "operator"
		i.Capabilities = models.Capabilities{
			CanAccessAllData:    true,
			CanViewPersonalInfo: true,
			CanModify:           true,
			ResponseStyle:       "terse",
		}
	}
}

// WithBody sets the instruction body.
func WithBody(body string) func(*models.Instruction) {
	return func(i *models.Instruction) {
		i.Body = body
	}
}

// WithSteps sets the workflow steps and marks the instruction autonomous.
func WithSteps(steps ...models.WorkflowStep) func(*models.Instruction) {
	return func(i *models.Instruction) {
		i.Steps = steps
	}
}

// WithSuccessCriteria sets the workflow success criteria.
func WithSuccessCriteria(actions ...string) func(*models.Instruction) {
	return func(i *models.Instruction) {
		criteria := make([]models.SuccessCriterion, 0, len(actions))
		for _, action := range actions {
			criteria = append(criteria, models.SuccessCriterion{Action: action})
		}

		i.SuccessCriteria = criteria
	}
}

// CreateTestStep creates a pass-through workflow step with default values
// that can be overridden.
func CreateTestStep(action string, overrides ...func(*models.WorkflowStep)) models.WorkflowStep {
	step := models.WorkflowStep{
		Action:        action,
		Config:        map[string]any{},
		ErrorHandling: models.ErrorPolicyStop,
	}

	for _, override := range overrides {
		override(&step)
	}

	return step
}

// WithKind sets the step kind.
func WithKind(kind string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Kind = kind
	}
}

// WithStepConfig sets the step configuration.
func WithStepConfig(config map[string]any) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Config = config
	}
}

// WithValidation sets the step validation predicate.
func WithValidation(validation models.StepValidation) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Validation = &validation
	}
}

// WithErrorPolicy sets the step error handling policy.
func WithErrorPolicy(policy string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.ErrorHandling = policy
	}
}

// CreateTestBusiness creates a business profile with default values that can
// be overridden.
func CreateTestBusiness(overrides ...func(*models.BusinessProfile)) *models.BusinessProfile {
	business := &models.BusinessProfile{
		ID:        "biz-" + uuid.New().String()[:8],
		Name:      "Mario's Trattoria",
		Type:      "restaurant",
		OpenHour:  9,
		CloseHour: 18,
	}

	for _, override := range overrides {
		override(business)
	}

	return business
}

// CreateTestContext creates a webhook-sourced processing context with default
// values that can be overridden.
func CreateTestContext(overrides ...func(*models.ProcessingContext)) *models.ProcessingContext {
	business := CreateTestBusiness()

	pc := &models.ProcessingContext{
		BusinessID: business.ID,
		UserID:     "user-" + uuid.New().String()[:8],
		Source:     models.SourceExternalWebhook,
		Channel:    "whatsapp",
		Role:       models.RoleNewCustomer,
		Message:    "Do you have a table for two tonight?",
		Business:   business,
	}

	for _, override := range overrides {
		override(pc)
	}

	return pc
}

// WithOperatorSource configures the context as an operator console message.
func WithOperatorSource() func(*models.ProcessingContext) {
	return func(pc *models.ProcessingContext) {
		pc.Source = models.SourceOperatorConsole
		pc.Channel = "console"
		pc.Role = models.RoleOperator
	}
}

// WithMessage sets the inbound message.
func WithMessage(message string) func(*models.ProcessingContext) {
	return func(pc *models.ProcessingContext) {
		pc.Message = message
	}
}
