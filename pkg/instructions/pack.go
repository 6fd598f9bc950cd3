package instructions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
)

// instructionSchema is the JSON schema every pack entry must satisfy before
// it is written to the store.
var instructionSchema = map[string]any{
	"type":     "object",
	"required": []any{"business_type", "role"},
	"properties": map[string]any{
		"business_type": map[string]any{"type": "string", "minLength": 1},
		"role":          map[string]any{"type": "string", "enum": []any{"operator", "client"}},
		"topic":         map[string]any{"type": "string"},
		"version":       map[string]any{"type": "string"},
		"body":          map[string]any{"type": "string"},
		"capabilities": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"can_access_all_data":    map[string]any{"type": "boolean"},
				"can_view_personal_info": map[string]any{"type": "boolean"},
				"can_modify":             map[string]any{"type": "boolean"},
				"response_style":         map[string]any{"type": "string"},
			},
		},
		"steps": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"action", "kind"},
				"properties": map[string]any{
					"action": map[string]any{"type": "string", "minLength": 1},
					"kind":   map[string]any{"type": "string", "minLength": 1},
					"error_handling": map[string]any{
						"type": "string",
						"enum": []any{models.ErrorPolicyStop, models.ErrorPolicyContinue, ""},
					},
				},
			},
		},
	},
}

// Pack is a YAML instruction pack file.
type Pack struct {
	Instructions []models.Instruction `yaml:"instructions"`
}

// LoadPack reads and validates an instruction pack from a YAML file. Invalid
// documents are rejected wholesale; a pack is installed all or nothing.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction pack %s: %w", path, err)
	}

	return ParsePack(data)
}

// ParsePack parses pack bytes and validates each entry against the
// instruction schema.
func ParsePack(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse instruction pack: %w", err)
	}

	for i, instruction := range pack.Instructions {
		if err := validateInstruction(instruction); err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, instruction.Key(), err)
		}
	}

	return &pack, nil
}

func validateInstruction(instruction models.Instruction) error {
	payload, err := json.Marshal(instruction)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}

	schemaLoader := gojsonschema.NewGoLoader(instructionSchema)
	dataLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Install writes a pack into the store, grouping instructions by their
// composite key so the resolver finds every instruction for a key in one
// read.
func Install(ctx context.Context, store kvstore.Store, pack *Pack) error {
	grouped := make(map[string][]models.Instruction)

	for _, instruction := range pack.Instructions {
		grouped[instruction.Key()] = append(grouped[instruction.Key()], instruction)
	}

	for key, group := range grouped {
		payload, err := json.Marshal(group)
		if err != nil {
			return fmt.Errorf("failed to encode instructions for %s: %w", key, err)
		}

		var encoded []any
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return fmt.Errorf("failed to encode instructions for %s: %w", key, err)
		}

		record := kvstore.Record{"instructions": encoded}
		if err := store.Put(ctx, KeyPrefix+key, record); err != nil {
			return fmt.Errorf("failed to install instructions for %s: %w", key, err)
		}
	}

	return nil
}
