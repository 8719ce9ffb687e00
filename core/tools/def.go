// Package tools is the dynamic capability registry. Tool definitions live
// as JSON files under a directory tree (core/, builtin/, generated/) and
// are hot-reloaded by content-hash diffing, so external processes can add
// capabilities without restarting the agent.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrHandlerNotFound is returned when no handler resolves for a tool.
	ErrHandlerNotFound = errors.New("tools: no handler for tool")

	// ErrUnknownTool is returned when a tool name is not in the registry.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrInvalidTool is returned for definitions that fail validation.
	ErrInvalidTool = errors.New("tools: invalid definition")
)

// Tiers. Tier 0-1 tools are always offered to the model; tier 2-3 are
// deferred until explicitly requested.
const (
	TierSearch    = 0
	TierCore      = 1
	TierBuiltin   = 2
	TierGenerated = 3
)

// ToolDef is one capability available to the agent.
type ToolDef struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	InputSchema     map[string]any   `json:"input_schema"`
	Tier            int              `json:"tier"`
	HandlerModule   string           `json:"handler_module,omitempty"`
	HandlerFunction string           `json:"handler_function,omitempty"`
	InputExamples   []map[string]any `json:"input_examples,omitempty"`
	Category        string           `json:"category"`
	Enabled         bool             `json:"enabled"`
	CreatedAt       string           `json:"created_at,omitempty"`
	CreatedBy       string           `json:"created_by"` // "system", "builder", "user"
}

// toolFile is the on-disk shape with optional fields defaulted.
type toolFile struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	InputSchema     map[string]any   `json:"input_schema"`
	Tier            *int             `json:"tier"`
	HandlerModule   string           `json:"handler_module"`
	HandlerFunction string           `json:"handler_function"`
	InputExamples   []map[string]any `json:"input_examples"`
	Category        string           `json:"category"`
	Enabled         *bool            `json:"enabled"`
	CreatedAt       string           `json:"created_at"`
	CreatedBy       string           `json:"created_by"`
}

func (f *toolFile) toDef() ToolDef {
	def := ToolDef{
		Name:            f.Name,
		Description:     f.Description,
		InputSchema:     f.InputSchema,
		Tier:            TierBuiltin,
		HandlerModule:   f.HandlerModule,
		HandlerFunction: f.HandlerFunction,
		InputExamples:   f.InputExamples,
		Category:        f.Category,
		Enabled:         true,
		CreatedAt:       f.CreatedAt,
		CreatedBy:       f.CreatedBy,
	}
	if f.Tier != nil {
		def.Tier = *f.Tier
	}
	if f.Enabled != nil {
		def.Enabled = *f.Enabled
	}
	if def.Category == "" {
		def.Category = "general"
	}
	if def.CreatedBy == "" {
		def.CreatedBy = "system"
	}
	return def
}

// Validate checks the definition is usable.
func (t *ToolDef) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidTool)
	}
	if t.Description == "" {
		return fmt.Errorf("%w: %s: description required", ErrInvalidTool, t.Name)
	}
	if t.Tier < TierSearch || t.Tier > TierGenerated {
		return fmt.Errorf("%w: %s: tier %d out of range", ErrInvalidTool, t.Name, t.Tier)
	}
	return nil
}

// APISchema is the inference-API view of the tool: just name,
// description, and input schema.
type APISchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToAPISchema strips the definition down to what the model sees.
func (t *ToolDef) ToAPISchema() APISchema {
	return APISchema{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// decodeToolDefs parses definition file content holding either one tool
// object or an array of them.
func decodeToolDefs(data []byte) ([]ToolDef, error) {
	var files []toolFile
	if err := json.Unmarshal(data, &files); err != nil {
		var single toolFile
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parse tool file: %w", err)
		}
		files = []toolFile{single}
	}

	defs := make([]ToolDef, 0, len(files))
	for _, f := range files {
		def := f.toDef()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
