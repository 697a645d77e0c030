package toolsystem

// FunctionBuilder helps create function definitions with a fluent interface
type FunctionBuilder struct {
	name        string
	description string
	properties  map[string]ArgSpec
	required    []string
}

// NewFunctionBuilder creates a new function builder
func NewFunctionBuilder(name, description string) *FunctionBuilder {
	return &FunctionBuilder{
		name:        name,
		description: description,
		properties:  make(map[string]ArgSpec),
		required:    make([]string, 0),
	}
}

// AddParameter adds a parameter to the function
func (fb *FunctionBuilder) AddParameter(name string, paramType JSONType, description string, required bool, enum ...string) *FunctionBuilder {
	fb.properties[name] = ArgSpec{
		Type:        paramType,
		Description: description,
		Enum:        enum,
	}
	if required {
		fb.required = append(fb.required, name)
	}
	return fb
}

func (fb *FunctionBuilder) AddStringParameter(name, description string, required bool, enum ...string) *FunctionBuilder {
	return fb.AddParameter(name, JSONString, description, required, enum...)
}

func (fb *FunctionBuilder) AddNumberParameter(name, description string, required bool) *FunctionBuilder {
	return fb.AddParameter(name, JSONNumber, description, required)
}

func (fb *FunctionBuilder) AddBooleanParameter(name, description string, required bool) *FunctionBuilder {
	return fb.AddParameter(name, JSONBool, description, required)
}

// Build returns the finished definition
func (fb *FunctionBuilder) Build() FunctionDef {
	props := make(map[string]ArgSpec, len(fb.properties))
	for k, v := range fb.properties {
		props[k] = v
	}
	return FunctionDef{
		Name:        fb.name,
		Description: fb.description,
		Parameters: &ParamSchema{
			Type:       JSONObject,
			Properties: props,
			Required:   append([]string(nil), fb.required...),
		},
	}
}
