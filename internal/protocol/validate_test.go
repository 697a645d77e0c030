package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnvelope(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"ok", `{"version":"1.0","msg_type":"HEARTBEAT_REPLY","session_id":null,"payload":{},"timestamp_ms":1}`, ""},
		{"ok with session", `{"version":"1.0","msg_type":"REQUEST","session_id":"s1","payload":{},"timestamp_ms":1.5e12}`, ""},
		{"unknown type passes", `{"version":"1.0","msg_type":"PING","payload":{},"timestamp_ms":1}`, ""},
		{"not json", `{"version":`, ""},
		{"version mismatch", `{"version":"2.0","msg_type":"REQUEST","payload":{},"timestamp_ms":1}`, "version"},
		{"missing version", `{"msg_type":"REQUEST","payload":{},"timestamp_ms":1}`, "version"},
		{"missing type", `{"version":"1.0","payload":{},"timestamp_ms":1}`, "msg_type"},
		{"empty type", `{"version":"1.0","msg_type":"","payload":{},"timestamp_ms":1}`, "msg_type"},
		{"missing payload", `{"version":"1.0","msg_type":"REQUEST","timestamp_ms":1}`, "payload"},
		{"missing timestamp", `{"version":"1.0","msg_type":"REQUEST","payload":{}}`, "timestamp_ms"},
		{"string timestamp", `{"version":"1.0","msg_type":"REQUEST","payload":{},"timestamp_ms":"1"}`, "timestamp_ms"},
		{"numeric session", `{"version":"1.0","msg_type":"REQUEST","session_id":5,"payload":{},"timestamp_ms":1}`, "session_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tc.raw))
			if tc.name == "ok" || tc.name == "ok with session" || tc.name == "unknown type passes" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":"1.0","msg_type":"REQUEST","session_id":"abc","payload":{"x":1},"timestamp_ms":42}`))
	require.NoError(t, err)
	assert.Equal(t, MsgRequest, env.MsgType)
	assert.Equal(t, "abc", env.Session())
	assert.Equal(t, float64(42), env.TimestampMS)
	assert.JSONEq(t, `{"x":1}`, string(env.Payload))
}

func TestValidateRegisterPayload(t *testing.T) {
	ok := `{"auth":{"type":"API_KEY","api_key":"k"},"platform":"WEB","require_tts":false,"function_calling":[]}`
	p, err := ValidateRegisterPayload(json.RawMessage(ok))
	require.NoError(t, err)
	assert.Equal(t, PlatformWeb, p.Platform)
	assert.False(t, *p.RequireTTS)
	assert.NotNil(t, p.FunctionCalling)
	assert.Empty(t, p.FunctionCalling)
	assert.Equal(t, "k", p.Auth.Credential())

	account := `{"auth":{"type":"ACCOUNT","account":"a","password":"p"},"platform":"IOS","require_tts":true,"function_calling":[{"name":"f"}]}`
	p, err = ValidateRegisterPayload(json.RawMessage(account))
	require.NoError(t, err)
	assert.Equal(t, "a", p.Auth.Credential())
	assert.Len(t, p.FunctionCalling, 1)

	bad := map[string]string{
		"auth.api_key":        `{"auth":{"type":"API_KEY"},"platform":"WEB","require_tts":false,"function_calling":[]}`,
		"auth.password":       `{"auth":{"type":"ACCOUNT","account":"a"},"platform":"WEB","require_tts":false,"function_calling":[]}`,
		"auth.type":           `{"auth":{"type":"OAUTH","api_key":"k"},"platform":"WEB","require_tts":false,"function_calling":[]}`,
		"auth":                `{"platform":"WEB","require_tts":false,"function_calling":[]}`,
		"platform":            `{"auth":{"type":"API_KEY","api_key":"k"},"platform":"TOASTER","require_tts":false,"function_calling":[]}`,
		"require_tts":         `{"auth":{"type":"API_KEY","api_key":"k"},"platform":"WEB","function_calling":[]}`,
		"function_calling":    `{"auth":{"type":"API_KEY","api_key":"k"},"platform":"WEB","require_tts":false}`,
		"function_calling[0]": `{"auth":{"type":"API_KEY","api_key":"k"},"platform":"WEB","require_tts":false,"function_calling":[{"description":"x"}]}`,
	}
	for field, raw := range bad {
		_, err := ValidateRegisterPayload(json.RawMessage(raw))
		require.Error(t, err, field)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), field)
		assert.Contains(t, verr.Field, field)
	}
}

func TestValidateRequestPayload(t *testing.T) {
	text := `{"request_id":"r1","data_type":"TEXT","stream_flag":false,"stream_seq":0,"content":{"text":"hello"}}`
	p, err := ValidateRequestPayload(json.RawMessage(text))
	require.NoError(t, err)
	assert.Equal(t, "hello", *p.Content.Text)
	assert.False(t, p.Streaming())

	binary := `{"request_id":"r2","data_type":"VOICE","stream_flag":true,"stream_seq":-1,"content":{"voice_mode":"BINARY"}}`
	p, err = ValidateRequestPayload(json.RawMessage(binary))
	require.NoError(t, err)
	assert.Equal(t, SeqEnd, p.Seq())

	inline := `{"request_id":"r3","data_type":"VOICE","stream_flag":false,"stream_seq":0,"content":{"voice_mode":"BASE64","voice":"AQID"}}`
	p, err = ValidateRequestPayload(json.RawMessage(inline))
	require.NoError(t, err)
	audio, err := p.Content.DecodeVoice()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, audio)

	bad := map[string]string{
		"request_id":         `{"data_type":"TEXT","stream_flag":false,"stream_seq":0,"content":{"text":"x"}}`,
		"data_type":          `{"request_id":"r","data_type":"IMAGE","stream_flag":false,"stream_seq":0,"content":{"text":"x"}}`,
		"stream_flag":        `{"request_id":"r","data_type":"TEXT","stream_seq":0,"content":{"text":"x"}}`,
		"stream_seq":         `{"request_id":"r","data_type":"TEXT","stream_flag":false,"stream_seq":"0","content":{"text":"x"}}`,
		"content":            `{"request_id":"r","data_type":"TEXT","stream_flag":false,"stream_seq":0}`,
		"content.text":       `{"request_id":"r","data_type":"TEXT","stream_flag":false,"stream_seq":0,"content":{}}`,
		"content.voice_mode": `{"request_id":"r","data_type":"VOICE","stream_flag":true,"stream_seq":0,"content":{"voice_mode":"MP3"}}`,
		"content.voice":      `{"request_id":"r","data_type":"VOICE","stream_flag":false,"stream_seq":0,"content":{"voice_mode":"BASE64"}}`,
		"function_calling":   `{"request_id":"r","data_type":"TEXT","stream_flag":false,"stream_seq":0,"content":{"text":"x"},"function_calling_op":"ADD"}`,
	}
	for field, raw := range bad {
		_, err := ValidateRequestPayload(json.RawMessage(raw))
		require.Error(t, err, field)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), field)
		assert.Contains(t, verr.Field, field)
	}

	_, err = ValidateRequestPayload(json.RawMessage(`{"request_id":"r","data_type":"TEXT","stream_flag":true,"stream_seq":-2,"content":{"text":"x"}}`))
	assert.Error(t, err)

	_, err = ValidateRequestPayload(json.RawMessage(`{"request_id":"r","data_type":"VOICE","stream_flag":false,"stream_seq":0,"content":{"voice_mode":"BASE64","voice":"%%%"}}`))
	assert.Error(t, err)
}

func TestBuildMessageAndError(t *testing.T) {
	nowMS = func() int64 { return 1234 }
	defer func() { nowMS = defaultNowMS }()

	env, err := BuildMessage(MsgHeartbeat, HeartbeatPayload{RemainingSeconds: 10}, "")
	require.NoError(t, err)
	raw, err := env.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0","msg_type":"HEARTBEAT","session_id":null,"payload":{"remaining_seconds":10},"timestamp_ms":1234}`, string(raw))
	require.NoError(t, ValidateEnvelope(raw))

	errEnv := BuildError(ErrSessionInvalid, "", "expired", "r9", "s1")
	raw, err = errEnv.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0","msg_type":"ERROR","session_id":"s1","payload":{"error_code":"SESSION_INVALID","error_msg":"session is invalid or expired","error_detail":"expired","retryable":false,"request_id":"r9"},"timestamp_ms":1234}`, string(raw))

	empty, err := BuildMessage(MsgShutdown, nil, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(empty.Payload))
}

func TestErrorCodeTable(t *testing.T) {
	table := map[string]bool{
		"AUTH_FAILED":       true,
		"SESSION_INVALID":   false,
		"MALFORMED_PAYLOAD": false,
		"SERVER_BUSY":       true,
		"INTERNAL_ERROR":    true,
		"REQUEST_TIMEOUT":   true,
		"STREAM_SEQ_ERROR":  true,
		"PAYLOAD_TOO_LARGE": false,
	}
	for code, retryable := range table {
		ec, ok := LookupErrorCode(code)
		require.True(t, ok, code)
		assert.Equal(t, retryable, ec.Retryable(), code)
	}
	assert.Panics(t, func() { NewErrorCode("AUTH_FAILED", "dup", false) })
}
