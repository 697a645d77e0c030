package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	s  Session
	lc *fsm.FSM
}

type eviction struct {
	id     string
	reason Reason
}

// Manager owns the session table and its timeout sweep.
type Manager struct {
	cfg    Config
	logger *Logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	hooks    []EvictHook

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

type Option func(*Manager)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(cfg Config, logger *Logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Config() Config {
	return m.cfg
}

// Now reads the manager's clock.
func (m *Manager) Now() time.Time {
	return m.now()
}

// OnEvict registers a hook called for every eviction.
func (m *Manager) OnEvict(h EvictHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Register creates the session, replacing any session with the same id.
func (m *Manager) Register(id string, meta Metadata, functions []toolsystem.FunctionDef) Session {
	now := m.now()
	lc := newLifecycle()
	_ = lc.Event(context.Background(), eventRegister)

	m.mu.Lock()
	old, replaced := m.sessions[id]
	if replaced {
		retire(old.lc, ReasonReplaced)
	}

	e := &entry{
		s: Session{
			ID:              id,
			UserID:          meta.UserID,
			Platform:        meta.Platform,
			RequireTTS:      meta.RequireTTS,
			Functions:       copyDefs(functions),
			ExpectFunctions: len(functions) > 0,
			CreatedAt:       now,
			LastHeartbeat:   now,
			LastActivity:    now,
			ExpiresAt:       now.Add(m.cfg.SessionTimeout),
			Registered:      true,
			State:           lc.Current(),
		},
		lc: lc,
	}
	m.sessions[id] = e
	snapshot := e.snapshot()
	m.mu.Unlock()

	if replaced {
		m.logger.Warnf("duplicate registration for session %s, replacing (user %s -> %s)",
			id, old.s.UserID, meta.UserID)
	}
	m.logger.Infof("Registered session %s (user %s, platform %s)", id, meta.UserID, meta.Platform)
	return snapshot
}

// Validate returns the session if it is still usable and refreshes its
// activity clock and expiry. An unusable session is evicted.
func (m *Manager) Validate(id string) (Session, bool) {
	now := m.now()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Session{}, false
	}
	if reason, bad := m.checkLocked(e, now); bad {
		ev := m.evictLocked(id, reason)
		m.mu.Unlock()
		m.fire(ev)
		return Session{}, false
	}
	e.s.LastActivity = now
	e.s.ExpiresAt = now.Add(m.cfg.SessionTimeout)
	snapshot := e.snapshot()
	m.mu.Unlock()

	return snapshot, true
}

// Heartbeat refreshes both clocks and extends expiry. It returns false,
// evicting the session, if the session is already unusable.
func (m *Manager) Heartbeat(id string) bool {
	now := m.now()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if reason, bad := m.checkLocked(e, now); bad {
		ev := m.evictLocked(id, reason)
		m.mu.Unlock()
		m.fire(ev)
		return false
	}
	e.s.LastHeartbeat = now
	e.s.LastActivity = now
	e.s.ExpiresAt = now.Add(m.cfg.SessionTimeout)
	m.mu.Unlock()
	return true
}

// Get returns a usable session without refreshing it.
func (m *Manager) Get(id string) (Session, bool) {
	now := m.now()

	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Session{}, false
	}
	if reason, bad := m.checkLocked(e, now); bad {
		ev := m.evictLocked(id, reason)
		m.mu.Unlock()
		m.fire(ev)
		return Session{}, false
	}
	snapshot := e.snapshot()
	m.mu.Unlock()
	return snapshot, true
}

// Remaining reports time left before expiry, without side effects.
func (m *Manager) Remaining(id string) (time.Duration, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return 0, false
	}
	return e.s.Remaining(now), true
}

// UpdateFunctions applies a function_calling_op to the session.
func (m *Manager) UpdateFunctions(id string, op toolsystem.Op, defs []toolsystem.FunctionDef) ([]toolsystem.FunctionDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	next, err := toolsystem.Apply(e.s.Functions, op, defs)
	if err != nil {
		return nil, err
	}
	e.s.Functions = next
	if len(next) > 0 {
		e.s.ExpectFunctions = true
	} else if op == toolsystem.OpReplace {
		e.s.ExpectFunctions = false
	}
	return copyDefs(next), nil
}

// Unregister evicts the session. It reports whether a session was removed.
func (m *Manager) Unregister(id string, reason Reason) bool {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return false
	}
	ev := m.evictLocked(id, reason)
	m.mu.Unlock()
	m.fire(ev)
	return true
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns snapshots of every session in the table.
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.snapshot())
	}
	return out
}

// Start launches the sweep goroutine when auto cleanup is enabled.
func (m *Manager) Start() {
	if !m.cfg.AutoCleanup {
		return
	}
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.sweepLoop()
	})
}

// Stop halts the sweep and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()
	deep := time.NewTicker(m.cfg.DeepValidationInterval)
	defer deep.Stop()

	for {
		select {
		case <-sweep.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Infof("session sweep evicted %d session(s)", n)
			}
		case <-deep.C:
			if n := m.DeepValidate(); n > 0 {
				m.logger.Warnf("deep validation evicted %d session(s)", n)
			}
		case <-m.stopCh:
			return
		}
	}
}

// Sweep evicts expired sessions first, then heartbeat-lost ones, then idle
// ones. It returns the number evicted.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	buckets := map[Reason][]string{}
	for id, e := range m.sessions {
		if reason, bad := m.checkLocked(e, now); bad {
			buckets[reason] = append(buckets[reason], id)
		}
	}
	var evs []eviction
	for _, reason := range []Reason{ReasonExpired, ReasonHeartbeat, ReasonInactive, ReasonInvalid} {
		for _, id := range buckets[reason] {
			evs = append(evs, m.evictLocked(id, reason))
		}
	}
	m.mu.Unlock()

	m.fire(evs...)
	return len(evs)
}

// DeepValidate evicts sessions whose record is structurally inconsistent.
func (m *Manager) DeepValidate() int {
	m.mu.Lock()
	var evs []eviction
	for id, e := range m.sessions {
		if !structurallySound(id, e) {
			evs = append(evs, m.evictLocked(id, ReasonStructural))
		}
	}
	m.mu.Unlock()

	m.fire(evs...)
	return len(evs)
}

func structurallySound(id string, e *entry) bool {
	s := e.s
	switch {
	case id == "" || s.ID != id:
		return false
	case !s.Registered:
		return false
	case s.ExpectFunctions && len(s.Functions) == 0:
		return false
	case s.CreatedAt.IsZero() || s.ExpiresAt.Before(s.CreatedAt):
		return false
	case e.lc.Current() != StateActive:
		return false
	}
	return true
}

// checkLocked reports why e is unusable at now, in eviction priority order.
func (m *Manager) checkLocked(e *entry, now time.Time) (Reason, bool) {
	s := e.s
	if !s.Registered {
		return ReasonInvalid, true
	}
	if !now.Before(s.ExpiresAt) {
		return ReasonExpired, true
	}
	if m.cfg.HeartbeatMonitoring && m.cfg.HeartbeatTimeout > 0 &&
		now.Sub(s.LastHeartbeat) >= m.cfg.HeartbeatTimeout {
		return ReasonHeartbeat, true
	}
	if m.cfg.InactivityTimeout > 0 && now.Sub(s.LastActivity) >= m.cfg.InactivityTimeout {
		return ReasonInactive, true
	}
	return "", false
}

func (m *Manager) evictLocked(id string, reason Reason) eviction {
	if e, ok := m.sessions[id]; ok {
		retire(e.lc, reason)
		delete(m.sessions, id)
	}
	return eviction{id: id, reason: reason}
}

func (m *Manager) fire(evs ...eviction) {
	if len(evs) == 0 {
		return
	}
	m.mu.Lock()
	hooks := append([]EvictHook(nil), m.hooks...)
	m.mu.Unlock()

	for _, ev := range evs {
		m.logger.Infof("Evicted session %s: %s", ev.id, ev.reason)
		for _, h := range hooks {
			h(ev.id, ev.reason)
		}
	}
}

func (e *entry) snapshot() Session {
	s := e.s
	s.Functions = copyDefs(e.s.Functions)
	s.State = e.lc.Current()
	return s
}

func copyDefs(defs []toolsystem.FunctionDef) []toolsystem.FunctionDef {
	if defs == nil {
		return []toolsystem.FunctionDef{}
	}
	out := make([]toolsystem.FunctionDef, len(defs))
	copy(out, defs)
	return out
}
