package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the only protocol version this gateway speaks.
const Version = "1.0"

type MessageType string

const (
	MsgRegister       MessageType = "REGISTER"
	MsgRegisterAck    MessageType = "REGISTER_ACK"
	MsgRequest        MessageType = "REQUEST"
	MsgResponse       MessageType = "RESPONSE"
	MsgSessionQuery   MessageType = "SESSION_QUERY"
	MsgSessionInfo    MessageType = "SESSION_INFO"
	MsgHeartbeat      MessageType = "HEARTBEAT"
	MsgHeartbeatReply MessageType = "HEARTBEAT_REPLY"
	MsgSessionWarn    MessageType = "SESSION_WARN"
	MsgHealthCheck    MessageType = "HEALTH_CHECK"
	MsgHealthCheckAck MessageType = "HEALTH_CHECK_ACK"
	MsgShutdown       MessageType = "SHUTDOWN"
	MsgError          MessageType = "ERROR"
)

var knownTypes = map[MessageType]struct{}{
	MsgRegister: {}, MsgRegisterAck: {}, MsgRequest: {}, MsgResponse: {},
	MsgSessionQuery: {}, MsgSessionInfo: {}, MsgHeartbeat: {}, MsgHeartbeatReply: {},
	MsgSessionWarn: {}, MsgHealthCheck: {}, MsgHealthCheckAck: {}, MsgShutdown: {},
	MsgError: {},
}

// Known reports whether t is part of the wire vocabulary.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the outer wrapper of every JSON frame in either direction.
type Envelope struct {
	Version     string          `json:"version"`
	MsgType     MessageType     `json:"msg_type"`
	SessionID   *string         `json:"session_id"`
	Payload     json.RawMessage `json:"payload"`
	TimestampMS float64         `json:"timestamp_ms"`
}

// Session returns the session id carried by the envelope, or "".
func (e Envelope) Session() string {
	if e.SessionID == nil {
		return ""
	}
	return *e.SessionID
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func defaultNowMS() int64 { return time.Now().UnixMilli() }

// nowMS is swapped in tests.
var nowMS = defaultNowMS

// BuildMessage wraps payload in an envelope stamped with the current time.
// An empty sessionID is encoded as null.
func BuildMessage(msgType MessageType, payload any, sessionID string) (Envelope, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
		raw = json.RawMessage("{}")
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		raw = b
	}

	env := Envelope{
		Version:     Version,
		MsgType:     msgType,
		Payload:     raw,
		TimestampMS: float64(nowMS()),
	}
	if sessionID != "" {
		sid := sessionID
		env.SessionID = &sid
	}
	return env, nil
}

// BuildError renders an ERROR envelope. The retryable flag always comes
// from the code table.
func BuildError(code *ErrorCode, message, detail, requestID, sessionID string) Envelope {
	if message == "" {
		message = code.Message()
	}
	env, err := BuildMessage(MsgError, ErrorPayload{
		ErrorCode:   code.Code(),
		ErrorMsg:    message,
		ErrorDetail: detail,
		Retryable:   code.Retryable(),
		RequestID:   requestID,
	}, sessionID)
	if err != nil {
		// ErrorPayload only carries strings and a bool
		panic(err)
	}
	return env
}
