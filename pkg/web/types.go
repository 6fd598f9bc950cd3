package web

import "github.com/parley-ai/parley/pkg/models"

// ConsoleMessageRequest is the trusted-operator inbound message. The console
// may attach data snapshots the pipeline's data-gathering stage consumes
// instead of querying backends itself.
type ConsoleMessageRequest struct {
	BusinessID string         `json:"business_id" validate:"required"`
	LocationID string         `json:"location_id,omitempty"`
	UserID     string         `json:"user_id"     validate:"required"`
	SessionID  string         `json:"session_id,omitempty"`
	Message    string         `json:"message"     validate:"required,min=1"`
	Data       map[string]any `json:"data,omitempty"`
}

// WebhookMessageRequest is an external customer message arriving on a
// channel (meta, twilio, ...) identified by the route.
type WebhookMessageRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message"     validate:"required,min=1"`
}

// MessageResponse is what both paths return. Failures inside the pipeline
// still produce a populated message; no raw error reaches the caller.
type MessageResponse struct {
	Message   string          `json:"message"`
	SessionID string          `json:"session_id"`
	Role      string          `json:"role"`
	Actions   []models.Action `json:"actions"`
}
