package session

import (
	"time"

	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

// Session is a snapshot of one registered client. Values handed out by the
// Manager are copies; mutating them has no effect on the table.
type Session struct {
	ID              string
	UserID          string
	Platform        string
	RequireTTS      bool
	Functions       []toolsystem.FunctionDef
	ExpectFunctions bool
	CreatedAt       time.Time
	LastHeartbeat   time.Time
	LastActivity    time.Time
	ExpiresAt       time.Time
	Registered      bool
	State           string
}

// Metadata is what a REGISTER contributes besides the function list.
type Metadata struct {
	UserID     string
	Platform   string
	RequireTTS bool
}

// Remaining returns the time left before absolute expiry.
func (s Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Project renders the session as the SESSION_INFO field map. An empty
// field list selects everything; unknown names are ignored.
func (s Session) Project(fields []string, now time.Time) map[string]any {
	all := map[string]any{
		"session_id":        s.ID,
		"user_id":           s.UserID,
		"platform":          s.Platform,
		"require_tts":       s.RequireTTS,
		"function_calling":  s.Functions,
		"created_at":        s.CreatedAt.UnixMilli(),
		"last_heartbeat":    s.LastHeartbeat.UnixMilli(),
		"last_activity":     s.LastActivity.UnixMilli(),
		"expires_at":        s.ExpiresAt.UnixMilli(),
		"remaining_seconds": int64(s.Remaining(now) / time.Second),
		"registered":        s.Registered,
		"state":             s.State,
	}
	if len(fields) == 0 {
		return all
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := all[f]; ok {
			out[f] = v
		}
	}
	return out
}

type Reason string

const (
	ReasonExpired    Reason = "expired"
	ReasonHeartbeat  Reason = "heartbeat_timeout"
	ReasonInactive   Reason = "inactive"
	ReasonInvalid    Reason = "invalid"
	ReasonUnregister Reason = "unregistered"
	ReasonClosed     Reason = "connection_closed"
	ReasonShutdown   Reason = "shutdown"
	ReasonStructural Reason = "structural"
	ReasonReplaced   Reason = "replaced"
	ReasonForced     Reason = "forced"
)

// EvictHook observes evictions. Hooks run outside the table lock.
type EvictHook func(sessionID string, reason Reason)

type Config struct {
	SessionTimeout         time.Duration
	InactivityTimeout      time.Duration
	HeartbeatTimeout       time.Duration
	SweepInterval          time.Duration
	DeepValidationInterval time.Duration
	AutoCleanup            bool
	HeartbeatMonitoring    bool
}

func DefaultConfig() Config {
	return Config{
		SessionTimeout:         30 * time.Minute,
		InactivityTimeout:      10 * time.Minute,
		HeartbeatTimeout:       90 * time.Second,
		SweepInterval:          30 * time.Second,
		DeepValidationInterval: 300 * time.Second,
		AutoCleanup:            true,
		HeartbeatMonitoring:    true,
	}
}
