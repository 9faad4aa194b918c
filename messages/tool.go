package messages

import (
	"fmt"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var toolReflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
}

// Tool describes a tool the model may call.
// Required lists the input fields the model must supply; it is merged with
// the required list of the schema itself when the tool is sent.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Required    []string
}

// ToolFor builds a tool whose input schema is reflected from T.
func ToolFor[T any](name, description string) Tool {
	var v T
	schema := toolReflector.Reflect(v)
	schema.Version = ""
	schema.ID = jsonschema.EmptyID
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Required:    slices.Clone(schema.Required),
	}
}

// Schema returns the JSON encoding of the tool input schema.
// A tool without a schema accepts an empty object.
func (t Tool) Schema() (json.RawMessage, error) {
	schema := t.InputSchema
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object", Properties: orderedmap.New[string, *jsonschema.Schema]()}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to marshal schema: %w", t.Name, err)
	}
	if len(t.Required) == 0 {
		return data, nil
	}
	required := slices.Clone(schema.Required)
	for _, name := range t.Required {
		if !slices.Contains(required, name) {
			required = append(required, name)
		}
	}
	return sjson.SetBytes(data, "required", required)
}

// ToolFromSchema is the inverse of Schema, used when decoding wire requests.
func ToolFromSchema(name, description string, schema []byte) (Tool, error) {
	t := Tool{Name: name, Description: description}
	if len(schema) == 0 || !gjson.ValidBytes(schema) {
		return t, nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(schema, &s); err != nil {
		return t, fmt.Errorf("tool %s: invalid schema: %w", name, err)
	}
	t.InputSchema = &s
	t.Required = slices.Clone(s.Required)
	return t, nil
}

// FindTool returns the tool with the given name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// ToolChoice constrains how the model may use the offered tools.
type ToolChoice interface {
	toolChoice()
}

// Auto lets the model decide whether to call tools.
type Auto struct {
	DisableParallelToolUse bool
}

// Any requires the model to call at least one tool.
type Any struct{}

// None forbids tool calls.
type None struct{}

// Specific requires the model to call the named tool.
type Specific struct {
	Name string
}

func (Auto) toolChoice()     {}
func (Any) toolChoice()      {}
func (None) toolChoice()     {}
func (Specific) toolChoice() {}

// ThinkingConfig requests extended reasoning. Backends without native support ignore it.
type ThinkingConfig struct {
	BudgetTokens int64
}
