package io

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/registry"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

// ErrUnreachable means the session has no live endpoint any more.
var ErrUnreachable = errors.New("session endpoint unreachable")

// Publisher renders turn output as RESPONSE frames and routes them through
// the connection registry.
type Publisher struct {
	reg registry.Registry
}

func New(reg registry.Registry) Publisher {
	return Publisher{reg: reg}
}

// SendTextDelta emits one text stream frame. seq -1 with empty text is the
// stream terminator.
func (p *Publisher) SendTextDelta(
	ctx context.Context,
	sessionID string,
	requestID string,
	seq int,
	text string,
) error {
	return p.send(ctx, sessionID, protocol.ResponsePayload{
		RequestID:     requestID,
		TextStreamSeq: &seq,
		Content:       protocol.ResponseContent{Text: text},
	})
}

// SendFunctionCall emits a function call in the text stream.
func (p *Publisher) SendFunctionCall(
	ctx context.Context,
	sessionID string,
	requestID string,
	seq int,
	call toolsystem.FunctionCall,
) error {
	if call.Parameters == nil {
		call.Parameters = map[string]any{}
	}
	return p.send(ctx, sessionID, protocol.ResponsePayload{
		RequestID:     requestID,
		TextStreamSeq: &seq,
		FunctionCall:  &call,
	})
}

// SendAudioFrame emits one voice stream frame, base64 encoded.
func (p *Publisher) SendAudioFrame(
	ctx context.Context,
	sessionID string,
	requestID string,
	seq int,
	frame []byte,
) error {
	var voice string
	if len(frame) > 0 {
		voice = base64.StdEncoding.EncodeToString(frame)
	}
	return p.send(ctx, sessionID, protocol.ResponsePayload{
		RequestID:      requestID,
		VoiceStreamSeq: &seq,
		Content:        protocol.ResponseContent{Voice: voice},
	})
}

// SendEvent emits a non-RESPONSE frame to the session.
func (p *Publisher) SendEvent(
	ctx context.Context,
	sessionID string,
	msgType protocol.MessageType,
	payload any,
) error {
	env, err := protocol.BuildMessage(msgType, payload, sessionID)
	if err != nil {
		return err
	}
	if !p.reg.Send(sessionID, env) {
		return fmt.Errorf("%s to %s: %w", msgType, sessionID, ErrUnreachable)
	}
	return nil
}

func (p *Publisher) send(ctx context.Context, sessionID string, payload protocol.ResponsePayload) error {
	return p.SendEvent(ctx, sessionID, protocol.MsgResponse, payload)
}
