package protocol

import "fmt"

var (
	ErrAuthFailed       = NewErrorCode("AUTH_FAILED", "authentication failed", true)
	ErrSessionInvalid   = NewErrorCode("SESSION_INVALID", "session is invalid or expired", false)
	ErrMalformedPayload = NewErrorCode("MALFORMED_PAYLOAD", "malformed payload", false)
	ErrServerBusy       = NewErrorCode("SERVER_BUSY", "server busy", true)
	ErrInternal         = NewErrorCode("INTERNAL_ERROR", "internal error", true)
	ErrRequestTimeout   = NewErrorCode("REQUEST_TIMEOUT", "request timed out", true)
	ErrStreamSeq        = NewErrorCode("STREAM_SEQ_ERROR", "stream sequence out of order", true)
	ErrPayloadTooLarge  = NewErrorCode("PAYLOAD_TOO_LARGE", "payload too large", false)
)

// ErrorCode is a wire error code with its static retry classification.
type ErrorCode struct {
	code      string
	msg       string
	retryable bool
}

var codes = map[string]*ErrorCode{}

func NewErrorCode(code, msg string, retryable bool) *ErrorCode {
	if _, ok := codes[code]; ok {
		panic(fmt.Sprintf("error code %s already registered", code))
	}
	ec := &ErrorCode{code: code, msg: msg, retryable: retryable}
	codes[code] = ec
	return ec
}

// LookupErrorCode finds a registered code by its wire name.
func LookupErrorCode(code string) (*ErrorCode, bool) {
	ec, ok := codes[code]
	return ec, ok
}

func (e *ErrorCode) Code() string {
	return e.code
}

func (e *ErrorCode) Message() string {
	return e.msg
}

func (e *ErrorCode) Retryable() bool {
	return e.retryable
}

func (e *ErrorCode) String() string {
	return e.code
}
