package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/device"
)

var ErrConnectionClosed = errors.New("websocket connection is closed")

// WSEndpoint wraps a gorilla connection with a write lock and a closed flag
// so the registry and the connection loop can both write to it.
type WSEndpoint struct {
	id           device.EndpointID
	conn         *websocket.Conn
	lock         sync.Mutex
	closed       atomic.Bool
	lastActive   atomic.Int64
	writeTimeout time.Duration
}

func New(conn *websocket.Conn, writeTimeout time.Duration) *WSEndpoint {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	w := &WSEndpoint{
		id:           device.NewEndpointID(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
	w.Touch()
	return w
}

// ID implements device.Endpoint.
func (w *WSEndpoint) ID() device.EndpointID {
	return w.id
}

// Transport implements device.Endpoint.
func (w *WSEndpoint) Transport() device.Transport {
	return device.TransportWS
}

func (w *WSEndpoint) Touch() {
	w.lastActive.Store(time.Now().UnixNano())
}

// LastActive implements device.Endpoint.
func (w *WSEndpoint) LastActive() time.Time {
	return time.Unix(0, w.lastActive.Load())
}

// IsAlive implements device.Endpoint.
func (w *WSEndpoint) IsAlive() bool {
	return !w.closed.Load()
}

// ReadMessage blocks for the next frame. Any read error marks the
// endpoint closed.
func (w *WSEndpoint) ReadMessage() (int, []byte, error) {
	if w.closed.Load() {
		return 0, nil, ErrConnectionClosed
	}
	mt, p, err := w.conn.ReadMessage()
	if err != nil {
		w.closed.Store(true)
		return 0, nil, err
	}
	w.Touch()
	return mt, p, nil
}

// WriteEnvelope implements device.Endpoint.
func (w *WSEndpoint) WriteEnvelope(env protocol.Envelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	return w.WriteMessage(websocket.TextMessage, raw)
}

func (w *WSEndpoint) WriteMessage(messageType int, data []byte) error {
	if w.closed.Load() {
		return ErrConnectionClosed
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	// closed while waiting for the lock
	if w.closed.Load() {
		return ErrConnectionClosed
	}

	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := w.conn.WriteMessage(messageType, data); err != nil {
		w.closed.Store(true)
		_ = w.conn.Close()
		return ErrConnectionClosed
	}
	return nil
}

// Close implements device.Endpoint. Safe to call more than once.
func (w *WSEndpoint) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed")
	_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = w.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return w.conn.Close()
}
