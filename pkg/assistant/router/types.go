package router

import (
	"errors"

	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
)

var ErrNoAdapter = errors.New("no adapter for selected provider")

// RoutePolicy picks the provider name that serves a generation.
type RoutePolicy interface {
	Select(input assistant.GenerateInput) string
}

type AdapterPack struct {
	Name    string
	Adapter assistant.Generator
}

type Mux struct {
	RouterPolicy RoutePolicy
	AdapterMap   map[string]AdapterPack
}
