package session

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	StateUnregistered = "unregistered"
	StateActive       = "active"
	StateExpired      = "expired"
	StateDisconnected = "disconnected"
	StateInactive     = "inactive"
	StateEvicted      = "evicted"
)

const (
	eventRegister      = "register"
	eventExpire        = "expire"
	eventHeartbeatLost = "heartbeat_lost"
	eventIdle          = "idle"
	eventEvict         = "evict"
)

func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		StateUnregistered,
		fsm.Events{
			{Name: eventRegister, Src: []string{StateUnregistered}, Dst: StateActive},
			{Name: eventExpire, Src: []string{StateActive}, Dst: StateExpired},
			{Name: eventHeartbeatLost, Src: []string{StateActive}, Dst: StateDisconnected},
			{Name: eventIdle, Src: []string{StateActive}, Dst: StateInactive},
			{Name: eventEvict, Src: []string{
				StateUnregistered, StateActive, StateExpired, StateDisconnected, StateInactive,
			}, Dst: StateEvicted},
		},
		fsm.Callbacks{},
	)
}

// retire walks the lifecycle to evicted, passing through the terminal
// state matching reason when there is one.
func retire(f *fsm.FSM, reason Reason) {
	ctx := context.Background()
	var via string
	switch reason {
	case ReasonExpired:
		via = eventExpire
	case ReasonHeartbeat:
		via = eventHeartbeatLost
	case ReasonInactive:
		via = eventIdle
	}
	if via != "" && f.Can(via) {
		_ = f.Event(ctx, via)
	}
	if f.Can(eventEvict) {
		_ = f.Event(ctx, eventEvict)
	}
}
