package websocket

import (
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	wsdevice "github.com/xpanvictor/xarvis-gateway/pkg/io/device/websocket"
)

// meteredEndpoint counts every envelope written to the socket, whichever
// path wrote it.
type meteredEndpoint struct {
	*wsdevice.WSEndpoint
	metrics *metrics.Metrics
}

func (e *meteredEndpoint) WriteEnvelope(env protocol.Envelope) error {
	if err := e.WSEndpoint.WriteEnvelope(env); err != nil {
		return err
	}
	e.metrics.FrameOut(string(env.MsgType))
	return nil
}

// connection is the state one socket loop carries between frames.
// Only the loop goroutine mutates it; mu guards what stats reads.
type connection struct {
	ep          *meteredEndpoint
	lc          *fsm.FSM
	logger      *Logger.Logger
	connectedAt time.Time

	mu        sync.Mutex
	sessionID string
	voice     map[string]*voiceStream
	// active is the voice request binary frames are appended to.
	active string

	lastBeatReply time.Time
}

func newConnection(ep *meteredEndpoint, logger *Logger.Logger) *connection {
	return &connection{
		ep:          ep,
		lc:          newConnLifecycle(),
		logger:      logger.With("endpoint", ep.ID().String()),
		connectedAt: time.Now(),
		voice:       make(map[string]*voiceStream),
	}
}

func (c *connection) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// bind attaches the socket to sessionID. Voice state from a previous
// session does not carry over.
func (c *connection) bind(sessionID string) {
	c.mu.Lock()
	if c.sessionID != sessionID {
		c.voice = make(map[string]*voiceStream)
		c.active = ""
	}
	c.sessionID = sessionID
	c.mu.Unlock()
	advance(c.lc, eventRegister)
}

func (c *connection) openVoice(vs *voiceStream) {
	c.mu.Lock()
	c.voice[vs.requestID] = vs
	if vs.mode == protocol.VoiceBinary {
		c.active = vs.requestID
	}
	c.mu.Unlock()
}

func (c *connection) voiceFor(requestID string) (*voiceStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vs, ok := c.voice[requestID]
	return vs, ok
}

func (c *connection) activeVoice() (*voiceStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return nil, false
	}
	vs, ok := c.voice[c.active]
	return vs, ok
}

func (c *connection) openVoiceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voice)
}

// dropVoice discards the accumulator for requestID and clears it as the
// binary target.
func (c *connection) dropVoice(requestID string) {
	c.mu.Lock()
	if vs, ok := c.voice[requestID]; ok {
		vs.buf.Reset()
		delete(c.voice, requestID)
	}
	if c.active == requestID {
		c.active = ""
	}
	c.mu.Unlock()
}

func (c *connection) stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnStats{
		EndpointID:  c.ep.ID().String(),
		SessionID:   c.sessionID,
		State:       c.lc.Current(),
		ConnectedAt: c.connectedAt,
		LastActive:  c.ep.LastActive(),
		OpenVoice:   len(c.voice),
	}
}
