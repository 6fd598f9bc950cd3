// Package web provides the HTTP edge: the operator console path, the
// external webhook path, and instruction pack administration.
package web

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/parley-ai/parley/pkg/instructions"
	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/pipeline"
)

// pipelineTimeout is the caller-side timeout around one pipeline run; it is
// the only cancellation mechanism. Memory writes already issued before a
// timeout are not rolled back.
const pipelineTimeout = 60 * time.Second

const consoleChannel = "console"

type APIHandlers struct {
	operatorPipeline *pipeline.Pipeline
	customerPipeline *pipeline.Pipeline
	store            kvstore.Store
	validator        *validator.Validate
}

func NewAPIHandlers(
	operatorPipeline *pipeline.Pipeline,
	customerPipeline *pipeline.Pipeline,
	store kvstore.Store,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		operatorPipeline: operatorPipeline,
		customerPipeline: customerPipeline,
		store:            store,
		validator:        validator,
	}
}

// PostConsoleMessage handles trusted-operator traffic.
func (h *APIHandlers) PostConsoleMessage(c fiber.Ctx) error {
	var req ConsoleMessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	pc := &models.ProcessingContext{
		BusinessID: req.BusinessID,
		LocationID: req.LocationID,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Source:     models.SourceOperatorConsole,
		Channel:    consoleChannel,
		Message:    req.Message,
	}

	// Console data snapshots seed the query accumulator; the frontend-data
	// stage treats them as already-gathered results.
	for name, result := range req.Data {
		pc.Queries = append(pc.Queries, models.DataQuery{Query: name, Result: result})
	}

	return h.runPipeline(c, h.operatorPipeline, pc)
}

// PostWebhookMessage handles external customer traffic for one channel.
func (h *APIHandlers) PostWebhookMessage(c fiber.Ctx) error {
	channel := c.Params("channel")
	if channel == "" {
		return badRequest(c, "Missing channel")
	}

	var req WebhookMessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	pc := &models.ProcessingContext{
		BusinessID: req.BusinessID,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Source:     models.SourceExternalWebhook,
		Channel:    channel,
		Message:    req.Message,
	}

	return h.runPipeline(c, h.customerPipeline, pc)
}

// PutInstructions installs an instruction pack. The body is a YAML pack
// document; invalid packs are rejected wholesale.
func (h *APIHandlers) PutInstructions(c fiber.Ctx) error {
	pack, err := instructions.ParsePack(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := instructions.Install(c.Context(), h.store, pack); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"installed": len(pack.Instructions),
	})
}

func (h *APIHandlers) runPipeline(c fiber.Ctx, p *pipeline.Pipeline, pc *models.ProcessingContext) error {
	ctx, cancel := context.WithTimeout(c.Context(), pipelineTimeout)
	defer cancel()

	result := p.Run(ctx, pc)

	actions := result.Actions
	if actions == nil {
		actions = []models.Action{}
	}

	return c.JSON(MessageResponse{
		Message:   result.Reply,
		SessionID: result.SessionID,
		Role:      string(result.Role),
		Actions:   actions,
	})
}
