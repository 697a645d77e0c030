package registry

import (
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/device"
)

// Registry maps a session id to its single live endpoint.
type Registry interface {
	// Connect binds ep to sessionID, replacing any previous binding.
	Connect(sessionID string, ep device.Endpoint)
	// Disconnect removes the binding and closes its endpoint.
	Disconnect(sessionID string) bool
	// DisconnectEndpoint removes the binding only if it still points at id.
	DisconnectEndpoint(sessionID string, id device.EndpointID) bool
	// Unbind drops the binding but leaves the endpoint open.
	Unbind(sessionID string) bool
	Owns(sessionID string, id device.EndpointID) bool
	Lookup(sessionID string) (device.Endpoint, bool)
	// Send writes env to the session's endpoint. False means the session
	// is no longer reachable and has been disconnected.
	Send(sessionID string, env protocol.Envelope) bool
	Broadcast(env protocol.Envelope) int
	Count() int
}
