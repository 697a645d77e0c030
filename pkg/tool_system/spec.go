package toolsystem

type JSONType string

const (
	JSONString  JSONType = "string"
	JSONNumber  JSONType = "number"
	JSONInteger JSONType = "integer"
	JSONObject  JSONType = "object"
	JSONArray   JSONType = "array"
	JSONBool    JSONType = "boolean"
)

// ArgSpec describes one named argument of a function.
type ArgSpec struct {
	Type        JSONType `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ParamSchema is the JSON-schema subset clients use to describe arguments.
type ParamSchema struct {
	Type       JSONType           `json:"type"`
	Properties map[string]ArgSpec `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// FunctionDef is a client-declared function the model may ask to call.
// The gateway never executes it; calls are forwarded back to the client.
type FunctionDef struct {
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description,omitempty"`
	Parameters  *ParamSchema `json:"parameters,omitempty"`
}

// AsMap renders the schema the way JSON-schema consuming SDKs expect it.
func (p *ParamSchema) AsMap() map[string]any {
	out := map[string]any{"type": string(JSONObject)}
	if p == nil {
		out["properties"] = map[string]any{}
		return out
	}
	if p.Type != "" {
		out["type"] = string(p.Type)
	}
	props := make(map[string]any, len(p.Properties))
	for name, arg := range p.Properties {
		prop := map[string]any{"type": string(arg.Type)}
		if arg.Description != "" {
			prop["description"] = arg.Description
		}
		if len(arg.Enum) > 0 {
			prop["enum"] = arg.Enum
		}
		props[name] = prop
	}
	out["properties"] = props
	if len(p.Required) > 0 {
		out["required"] = p.Required
	}
	return out
}

// FunctionCall is a model-issued request to invoke a FunctionDef.
type FunctionCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}
