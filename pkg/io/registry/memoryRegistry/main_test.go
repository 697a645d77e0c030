package memoryregistry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/device"
)

type fakeEndpoint struct {
	id      device.EndpointID
	mu      sync.Mutex
	sent    []protocol.Envelope
	failing bool
	closed  bool
}

func newFake() *fakeEndpoint { return &fakeEndpoint{id: device.NewEndpointID()} }

func (f *fakeEndpoint) ID() device.EndpointID       { return f.id }
func (f *fakeEndpoint) Transport() device.Transport { return device.TransportWS }
func (f *fakeEndpoint) Touch()                      {}
func (f *fakeEndpoint) LastActive() time.Time       { return time.Time{} }

func (f *fakeEndpoint) WriteEnvelope(env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.closed {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeEndpoint) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func envelope(t *testing.T) protocol.Envelope {
	env, err := protocol.BuildMessage(protocol.MsgHeartbeat, protocol.HeartbeatPayload{RemainingSeconds: 1}, "s")
	require.NoError(t, err)
	return env
}

func TestConnectReplacesMapping(t *testing.T) {
	reg := New(Logger.NewNop())
	first, second := newFake(), newFake()

	reg.Connect("s", first)
	reg.Connect("s", second)

	assert.Equal(t, 1, reg.Count())
	assert.False(t, reg.Owns("s", first.ID()))
	assert.True(t, reg.Owns("s", second.ID()))

	require.True(t, reg.Send("s", envelope(t)))
	assert.Empty(t, first.sent)
	assert.Len(t, second.sent, 1)

	// the replaced endpoint cannot remove the new binding
	assert.False(t, reg.DisconnectEndpoint("s", first.ID()))
	assert.Equal(t, 1, reg.Count())
}

func TestSendFailureDisconnects(t *testing.T) {
	reg := New(Logger.NewNop())
	ep := newFake()
	ep.failing = true
	reg.Connect("s", ep)

	assert.False(t, reg.Send("s", envelope(t)))
	assert.Equal(t, 0, reg.Count())
	assert.True(t, ep.closed)

	assert.False(t, reg.Send("missing", envelope(t)))
}

func TestDisconnect(t *testing.T) {
	reg := New(Logger.NewNop())
	ep := newFake()
	reg.Connect("s", ep)

	assert.True(t, reg.Disconnect("s"))
	assert.False(t, reg.Disconnect("s"))
	assert.True(t, ep.closed)
	_, ok := reg.Lookup("s")
	assert.False(t, ok)
}

func TestUnbindLeavesEndpointOpen(t *testing.T) {
	reg := New(Logger.NewNop())
	ep := newFake()
	reg.Connect("s", ep)

	assert.True(t, reg.Unbind("s"))
	assert.False(t, reg.Unbind("s"))
	assert.True(t, ep.IsAlive())
	assert.False(t, reg.Owns("s", ep.ID()))
}

func TestBroadcast(t *testing.T) {
	reg := New(Logger.NewNop())
	a, b, c := newFake(), newFake(), newFake()
	c.failing = true
	reg.Connect("a", a)
	reg.Connect("b", b)
	reg.Connect("c", c)

	assert.Equal(t, 2, reg.Broadcast(envelope(t)))
	assert.Equal(t, 2, reg.Count())
}

func TestConcurrentAccess(t *testing.T) {
	reg := New(Logger.NewNop())
	env := envelope(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep := newFake()
			reg.Connect("shared", ep)
			reg.Send("shared", env)
			reg.DisconnectEndpoint("shared", ep.ID())
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, reg.Count(), 1)
}
