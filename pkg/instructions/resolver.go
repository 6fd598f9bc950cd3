// Package instructions resolves role- and business-type-scoped behavioral
// rule sets with a fallback chain and an unconditional visibility filter.
package instructions

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
)

// KeyPrefix namespaces instruction documents inside the shared store.
const KeyPrefix = "instruction#"

// sensitiveMarkers is the fixed denylist applied to non-operator results. It
// is deliberately not configurable so a bad deploy cannot empty it.
var sensitiveMarkers = []string{
	"personal-data",
	"full-history",
	"admin",
	"coordinator",
	"internal-only",
}

// Resolver selects instructions for one (role, businessType) pair. Selection
// is re-run on every pipeline invocation; nothing is cached across runs.
type Resolver struct {
	store  kvstore.Store
	logger *slog.Logger
}

func NewResolver(store kvstore.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With("module", "instructions"),
	}
}

// Resolve walks the fallback chain (exact business type, then general, then
// the built-in default for the role) and applies the visibility filter to
// whatever was selected. The filter runs on the final role regardless of how
// the instructions were sourced, so a fallback-chain bug cannot leak
// operator-only content to a restricted role.
func (r *Resolver) Resolve(ctx context.Context, role models.Role, businessType string) []models.Instruction {
	instructionRole := role.InstructionRole()

	selected := r.lookup(ctx, models.InstructionKey(businessType, instructionRole))
	if len(selected) == 0 {
		selected = r.lookup(ctx, models.InstructionKey(models.GeneralBusinessType, instructionRole))
	}

	if len(selected) == 0 {
		selected = []models.Instruction{builtinInstruction(instructionRole)}
	}

	return filterForRole(role, selected)
}

func (r *Resolver) lookup(ctx context.Context, key string) []models.Instruction {
	record, err := r.store.Get(ctx, KeyPrefix+key)
	if err != nil {
		if err != kvstore.ErrNotFound {
			r.logger.WarnContext(ctx, "Instruction lookup failed, falling through",
				"key", key, "error", err)
		}

		return nil
	}

	return decodeInstructions(record)
}

// filterForRole strips anything a non-operator role must never see: operator
// instructions and bodies carrying a denylisted sensitive marker.
func filterForRole(role models.Role, selected []models.Instruction) []models.Instruction {
	if role == models.RoleOperator {
		return selected
	}

	visible := make([]models.Instruction, 0, len(selected))

	for _, instruction := range selected {
		if instruction.Role == "operator" || containsSensitiveMarker(instruction.Body) {
			continue
		}

		visible = append(visible, instruction)
	}

	return visible
}

func containsSensitiveMarker(body string) bool {
	lowered := strings.ToLower(body)

	for _, marker := range sensitiveMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}

	return false
}

func decodeInstructions(record kvstore.Record) []models.Instruction {
	payload, err := json.Marshal(record["instructions"])
	if err != nil {
		return nil
	}

	var instructions []models.Instruction
	if err := json.Unmarshal(payload, &instructions); err != nil {
		return nil
	}

	return instructions
}
