package assistant

import (
	"context"

	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

// Event is one item of a generation stream: a text fragment, a function
// call, or a terminal error.
type Event struct {
	Text         string
	FunctionCall *toolsystem.FunctionCall
	Err          error
}

type GenerateInput struct {
	SessionID string
	UserID    string
	RequestID string
	UserInput string
	Functions []toolsystem.FunctionDef
}

// Generator streams a model reply. The channel is closed when generation
// ends; an Event with Err set is always the last one sent.
type Generator interface {
	Generate(ctx context.Context, input GenerateInput) (<-chan Event, error)
}
