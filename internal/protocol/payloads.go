package protocol

import (
	"encoding/base64"

	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

type AuthType string

const (
	AuthAPIKey  AuthType = "API_KEY"
	AuthAccount AuthType = "ACCOUNT"
)

type Platform string

const (
	PlatformWeb      Platform = "WEB"
	PlatformAndroid  Platform = "ANDROID"
	PlatformIOS      Platform = "IOS"
	PlatformWindows  Platform = "WINDOWS"
	PlatformMacOS    Platform = "MACOS"
	PlatformLinux    Platform = "LINUX"
	PlatformEmbedded Platform = "EMBEDDED"
)

type DataType string

const (
	DataText  DataType = "TEXT"
	DataVoice DataType = "VOICE"
)

type VoiceMode string

const (
	VoiceBase64 VoiceMode = "BASE64"
	VoiceBinary VoiceMode = "BINARY"
)

// Stream sequence markers.
const (
	SeqStart = 0
	SeqEnd   = -1
)

type AuthBlock struct {
	Type     AuthType `json:"type" validate:"required,oneof=API_KEY ACCOUNT"`
	APIKey   string   `json:"api_key,omitempty" validate:"required_if=Type API_KEY"`
	Account  string   `json:"account,omitempty" validate:"required_if=Type ACCOUNT"`
	Password string   `json:"password,omitempty" validate:"required_if=Type ACCOUNT"`
}

// Credential returns the value checked by the authenticator.
func (a AuthBlock) Credential() string {
	if a.Type == AuthAccount {
		return a.Account
	}
	return a.APIKey
}

type RegisterPayload struct {
	Auth            *AuthBlock               `json:"auth" validate:"required"`
	Platform        Platform                 `json:"platform" validate:"required,oneof=WEB ANDROID IOS WINDOWS MACOS LINUX EMBEDDED"`
	RequireTTS      *bool                    `json:"require_tts" validate:"required"`
	FunctionCalling []toolsystem.FunctionDef `json:"function_calling" validate:"required,dive"`
}

type RegisterAckPayload struct {
	SessionID         string `json:"session_id"`
	UserID            string `json:"user_id,omitempty"`
	SessionTimeout    int64  `json:"session_timeout"`
	HeartbeatInterval int64  `json:"heartbeat_interval"`
}

type RequestContent struct {
	Text        *string   `json:"text,omitempty"`
	Voice       string    `json:"voice,omitempty"`
	VoiceMode   VoiceMode `json:"voice_mode,omitempty"`
	AudioFormat string    `json:"audio_format,omitempty"`
}

// DecodeVoice returns the inline base64 audio as bytes.
func (c RequestContent) DecodeVoice() ([]byte, error) {
	if c.Voice == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(c.Voice)
}

type RequestPayload struct {
	RequestID         string                   `json:"request_id" validate:"required"`
	DataType          DataType                 `json:"data_type" validate:"required,oneof=TEXT VOICE"`
	StreamFlag        *bool                    `json:"stream_flag" validate:"required"`
	StreamSeq         *int                     `json:"stream_seq" validate:"required"`
	Content           *RequestContent          `json:"content" validate:"required"`
	RequireTTS        *bool                    `json:"require_tts,omitempty"`
	FunctionCallingOp toolsystem.Op            `json:"function_calling_op,omitempty" validate:"omitempty,oneof=ADD REMOVE REPLACE"`
	FunctionCalling   []toolsystem.FunctionDef `json:"function_calling,omitempty" validate:"omitempty,dive"`
}

func (r *RequestPayload) Streaming() bool {
	return r.StreamFlag != nil && *r.StreamFlag
}

func (r *RequestPayload) Seq() int {
	if r.StreamSeq == nil {
		return 0
	}
	return *r.StreamSeq
}

type ResponseContent struct {
	Text  string `json:"text,omitempty"`
	Voice string `json:"voice,omitempty"`
}

type ResponsePayload struct {
	RequestID      string                   `json:"request_id"`
	TextStreamSeq  *int                     `json:"text_stream_seq,omitempty"`
	VoiceStreamSeq *int                     `json:"voice_stream_seq,omitempty"`
	FunctionCall   *toolsystem.FunctionCall `json:"function_call,omitempty"`
	Content        ResponseContent          `json:"content"`
}

type ErrorPayload struct {
	ErrorCode   string `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	ErrorDetail string `json:"error_detail"`
	Retryable   bool   `json:"retryable"`
	RequestID   string `json:"request_id,omitempty"`
}

type SessionQueryPayload struct {
	Fields []string `json:"fields,omitempty"`
}

type HeartbeatPayload struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type SessionWarnPayload struct {
	RemainingSeconds int64  `json:"remaining_seconds"`
	Message          string `json:"message"`
}

type HealthCheckAckPayload struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

type ShutdownAckPayload struct {
	Acknowledged bool `json:"acknowledged"`
}
