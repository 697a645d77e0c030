package router

import (
	"context"
	"fmt"

	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
)

// StaticRP always routes to the configured provider.
type StaticRP struct {
	Provider string
}

func (s StaticRP) Select(assistant.GenerateInput) string {
	return s.Provider
}

func New(policy RoutePolicy, packs ...AdapterPack) *Mux {
	adm := make(map[string]AdapterPack, len(packs))
	for _, p := range packs {
		adm[p.Name] = p
	}
	return &Mux{RouterPolicy: policy, AdapterMap: adm}
}

// Generate implements assistant.Generator.
func (m *Mux) Generate(ctx context.Context, input assistant.GenerateInput) (<-chan assistant.Event, error) {
	name := m.RouterPolicy.Select(input)
	pack, ok := m.AdapterMap[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoAdapter, name)
	}
	return pack.Adapter.Generate(ctx, input)
}

func (m *Mux) Providers() []string {
	out := make([]string, 0, len(m.AdapterMap))
	for name := range m.AdapterMap {
		out = append(out, name)
	}
	return out
}
