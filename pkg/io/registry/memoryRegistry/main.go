package memoryregistry

import (
	"sync"

	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/device"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/registry"
)

type mmrRegistry struct {
	mu     sync.Mutex
	epMap  map[string]device.Endpoint
	logger *Logger.Logger
}

// Connect implements registry.Registry.
func (m *mmrRegistry) Connect(sessionID string, ep device.Endpoint) {
	m.mu.Lock()
	prev, replaced := m.epMap[sessionID]
	m.epMap[sessionID] = ep
	m.mu.Unlock()

	if replaced && prev.ID() != ep.ID() {
		m.logger.Warnf("session %s rebound from endpoint %s to %s", sessionID, prev.ID(), ep.ID())
	}
}

// Disconnect implements registry.Registry.
func (m *mmrRegistry) Disconnect(sessionID string) bool {
	m.mu.Lock()
	ep, ok := m.epMap[sessionID]
	delete(m.epMap, sessionID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	if err := ep.Close(); err != nil {
		m.logger.Debugf("closing endpoint %s for session %s: %v", ep.ID(), sessionID, err)
	}
	return true
}

// DisconnectEndpoint implements registry.Registry.
func (m *mmrRegistry) DisconnectEndpoint(sessionID string, id device.EndpointID) bool {
	m.mu.Lock()
	ep, ok := m.epMap[sessionID]
	if !ok || ep.ID() != id {
		m.mu.Unlock()
		return false
	}
	delete(m.epMap, sessionID)
	m.mu.Unlock()

	_ = ep.Close()
	return true
}

// Unbind implements registry.Registry.
func (m *mmrRegistry) Unbind(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.epMap[sessionID]; !ok {
		return false
	}
	delete(m.epMap, sessionID)
	return true
}

// Owns implements registry.Registry.
func (m *mmrRegistry) Owns(sessionID string, id device.EndpointID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.epMap[sessionID]
	return ok && ep.ID() == id
}

// Lookup implements registry.Registry.
func (m *mmrRegistry) Lookup(sessionID string) (device.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.epMap[sessionID]
	return ep, ok
}

// Send implements registry.Registry.
func (m *mmrRegistry) Send(sessionID string, env protocol.Envelope) bool {
	ep, ok := m.Lookup(sessionID)
	if !ok {
		return false
	}
	if err := ep.WriteEnvelope(env); err != nil {
		m.logger.Warnf("send %s to session %s failed, disconnecting: %v", env.MsgType, sessionID, err)
		m.DisconnectEndpoint(sessionID, ep.ID())
		return false
	}
	return true
}

// Broadcast implements registry.Registry.
func (m *mmrRegistry) Broadcast(env protocol.Envelope) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.epMap))
	for id := range m.epMap {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sent := 0
	for _, id := range ids {
		if m.Send(id, env) {
			sent++
		}
	}
	return sent
}

// Count implements registry.Registry.
func (m *mmrRegistry) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.epMap)
}

func New(logger *Logger.Logger) registry.Registry {
	return &mmrRegistry{
		epMap:  make(map[string]device.Endpoint),
		logger: logger,
	}
}
