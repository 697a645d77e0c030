package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

// ValidationError names the offending field of a rejected frame.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateEnvelope checks the outer frame before anything is decoded.
// Unknown message types pass; the handler answers them itself.
func ValidateEnvelope(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return invalid("", "frame is not valid JSON")
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return invalid("", "frame is not a JSON object")
	}

	version := gjson.GetBytes(raw, "version")
	if !version.Exists() || version.Type != gjson.String {
		return invalid("version", "missing")
	}
	if version.Str != Version {
		return invalid("version", fmt.Sprintf("unsupported version %q", version.Str))
	}

	msgType := gjson.GetBytes(raw, "msg_type")
	if !msgType.Exists() || msgType.Type != gjson.String || msgType.Str == "" {
		return invalid("msg_type", "missing")
	}

	sid := gjson.GetBytes(raw, "session_id")
	if sid.Exists() && sid.Type != gjson.String && sid.Type != gjson.Null {
		return invalid("session_id", "must be a string or null")
	}

	payload := gjson.GetBytes(raw, "payload")
	if !payload.Exists() {
		return invalid("payload", "missing")
	}
	if !payload.IsObject() {
		return invalid("payload", "must be an object")
	}

	ts := gjson.GetBytes(raw, "timestamp_ms")
	if !ts.Exists() {
		return invalid("timestamp_ms", "missing")
	}
	if ts.Type != gjson.Number {
		return invalid("timestamp_ms", "must be a number")
	}
	return nil
}

// DecodeEnvelope validates raw and decodes it.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if err := ValidateEnvelope(raw); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, invalid("", err.Error())
	}
	return env, nil
}

func ValidateRegisterPayload(raw json.RawMessage) (*RegisterPayload, error) {
	var p RegisterPayload
	if err := decodeStrict(raw, &p); err != nil {
		return nil, err
	}
	if err := structErr(validate.Struct(&p)); err != nil {
		return nil, err
	}
	return &p, nil
}

func ValidateRequestPayload(raw json.RawMessage) (*RequestPayload, error) {
	var p RequestPayload
	if err := decodeStrict(raw, &p); err != nil {
		return nil, err
	}
	if err := structErr(validate.Struct(&p)); err != nil {
		return nil, err
	}
	if *p.StreamSeq < SeqEnd {
		return nil, invalid("stream_seq", "must be -1, 0 or positive")
	}

	switch p.DataType {
	case DataText:
		if p.Content.Text == nil {
			return nil, invalid("content.text", "required for TEXT requests")
		}
	case DataVoice:
		switch p.Content.VoiceMode {
		case VoiceBase64, VoiceBinary:
		case "":
			return nil, invalid("content.voice_mode", "required for VOICE requests")
		default:
			return nil, invalid("content.voice_mode", fmt.Sprintf("unknown mode %q", p.Content.VoiceMode))
		}
		if p.Content.VoiceMode == VoiceBase64 && !p.Streaming() && p.Content.Voice == "" {
			return nil, invalid("content.voice", "inline audio required for non-streaming BASE64")
		}
		if _, err := p.Content.DecodeVoice(); err != nil {
			return nil, invalid("content.voice", "not valid base64")
		}
	}

	if p.FunctionCallingOp != "" && p.FunctionCalling == nil {
		return nil, invalid("function_calling", "required with function_calling_op")
	}
	return &p, nil
}

// DecodePayload is a lenient decode used for payloads without a schema.
func DecodePayload(raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalid("payload", err.Error())
	}
	return nil
}

func decodeStrict(raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return invalid("payload", "missing")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return invalid(typeErr.Field, fmt.Sprintf("expected %s", typeErr.Type))
		}
		return invalid("payload", err.Error())
	}
	return nil
}

func structErr(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return invalid(field, "failed "+reason)
	}
	return invalid("payload", err.Error())
}
