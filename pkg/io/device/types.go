package device

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
)

type Transport string

const (
	TransportWS Transport = "ws"
)

type EndpointID uuid.UUID

func (id EndpointID) String() string {
	return uuid.UUID(id).String()
}

func NewEndpointID() EndpointID {
	return EndpointID(uuid.New())
}

// Endpoint is one live client socket as seen by the connection registry.
type Endpoint interface {
	// Identity
	ID() EndpointID
	Transport() Transport
	// framing
	WriteEnvelope(env protocol.Envelope) error
	Touch()
	// lifecyle
	IsAlive() bool
	Close() error
	LastActive() time.Time
}
