package websocket

import (
	"context"
	"time"

	"github.com/looplab/fsm"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	audioring "github.com/xpanvictor/xarvis-gateway/pkg/io/stt/audioRing"
)

// Connection states. A socket starts connected, becomes registered after
// a successful REGISTER and ends closing.
const (
	StateConnected  = "connected"
	StateRegistered = "registered"
	StateClosing    = "closing"
)

const (
	eventRegister = "register"
	eventClose    = "close"
)

// maxOpenVoiceStreams bounds concurrent chunked voice requests per socket.
const maxOpenVoiceStreams = 4

func newConnLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		StateConnected,
		fsm.Events{
			{Name: eventRegister, Src: []string{StateConnected}, Dst: StateRegistered},
			{Name: eventClose, Src: []string{StateConnected, StateRegistered}, Dst: StateClosing},
		},
		fsm.Callbacks{},
	)
}

func advance(f *fsm.FSM, event string) {
	if f.Can(event) {
		_ = f.Event(context.Background(), event)
	}
}

// inbound is one frame handed from the reader goroutine to the loop.
type inbound struct {
	messageType int
	data        []byte
}

// voiceStream accumulates one chunked voice request.
type voiceStream struct {
	requestID string
	mode      protocol.VoiceMode
	format    string
	next      int
	buf       audioring.VoiceBuffer
	openedAt  time.Time
}

// ConnStats is the per-socket row of the stats endpoint.
type ConnStats struct {
	EndpointID  string    `json:"endpoint_id"`
	SessionID   string    `json:"session_id,omitempty"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	LastActive  time.Time `json:"last_active"`
	OpenVoice   int       `json:"open_voice_streams"`
}
