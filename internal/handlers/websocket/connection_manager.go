package websocket

import (
	"sync"
	"time"

	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/device"
)

// closeWait bounds how long Close waits for connection loops to clean up.
const closeWait = 5 * time.Second

// ConnectionManager tracks every live socket, registered or not. The
// session registry only knows sockets that completed REGISTER; this is
// what the health check counts and what shutdown closes.
type ConnectionManager struct {
	logger  *Logger.Logger
	metrics *metrics.Metrics
	conns   map[device.EndpointID]*connection
	mutex   sync.RWMutex
	closed  bool
	// one count per tracked socket, released by remove
	loops sync.WaitGroup
}

func NewConnectionManager(logger *Logger.Logger, m *metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		logger:  logger,
		metrics: m,
		conns:   make(map[device.EndpointID]*connection),
	}
}

// add tracks c. It reports false once the manager is closed.
func (cm *ConnectionManager) add(c *connection) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if cm.closed {
		return false
	}
	cm.conns[c.ep.ID()] = c
	cm.loops.Add(1)
	cm.metrics.ConnOpened()
	return true
}

func (cm *ConnectionManager) remove(id device.EndpointID) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.conns[id]; ok {
		delete(cm.conns, id)
		cm.metrics.ConnClosed()
		cm.loops.Done()
	}
}

// Count returns the number of open sockets.
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.conns)
}

// GetStats returns one row per open socket.
func (cm *ConnectionManager) GetStats() []ConnStats {
	cm.mutex.RLock()
	conns := make([]*connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		conns = append(conns, c)
	}
	cm.mutex.RUnlock()

	out := make([]ConnStats, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.stats())
	}
	return out
}

// Close closes every socket and refuses new ones. Each loop notices its
// read failing and runs its own cleanup; Close returns once every cleanup
// has finished or closeWait has passed.
func (cm *ConnectionManager) Close() error {
	cm.mutex.Lock()
	cm.closed = true
	conns := make([]*connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		conns = append(conns, c)
	}
	cm.mutex.Unlock()

	for _, c := range conns {
		if err := c.ep.Close(); err != nil {
			cm.logger.Errorf("Error closing connection %s: %v", c.ep.ID(), err)
		}
	}

	done := make(chan struct{})
	go func() {
		cm.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
		cm.logger.Warnf("Gave up waiting for %d connection(s) to clean up", cm.Count())
	}
	cm.logger.Infof("Connection manager closed %d connection(s)", len(conns))
	return nil
}
