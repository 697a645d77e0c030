package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	audioring "github.com/xpanvictor/xarvis-gateway/pkg/io/stt/audioRing"
)

const defaultMaxVoiceBytes = 10 << 20

// handleVoice runs an inline voice request or advances a chunked one.
// Chunked requests open at stream_seq 0, continue at consecutive positive
// seqs and are processed at -1. In BINARY mode the audio arrives as binary
// frames between the JSON frames.
func (h *WebSocketHandler) handleVoice(ctx context.Context, c *connection, sess session.Session, p *protocol.RequestPayload, requireTTS bool) {
	rid := p.RequestID

	chunk, err := p.Content.DecodeVoice()
	if err != nil {
		h.replyError(c, protocol.ErrMalformedPayload, "content.voice is not valid base64", rid)
		return
	}

	if !p.Streaming() && p.Content.VoiceMode == protocol.VoiceBase64 {
		if len(chunk) > h.maxVoiceBytes() {
			h.replyError(c, protocol.ErrPayloadTooLarge,
				fmt.Sprintf("voice exceeds %d bytes", h.maxVoiceBytes()), rid)
			return
		}
		h.processVoice(ctx, c, sess, rid, chunk, p.Content.AudioFormat, requireTTS)
		return
	}

	switch seq := p.Seq(); {
	case seq == protocol.SeqStart:
		if _, open := c.voiceFor(rid); open {
			c.dropVoice(rid)
			h.replyError(c, protocol.ErrStreamSeq, "voice stream reopened before it was closed", rid)
			return
		}
		if c.openVoiceCount() >= maxOpenVoiceStreams {
			h.replyError(c, protocol.ErrServerBusy, "too many open voice streams", rid)
			return
		}
		vs := &voiceStream{
			requestID: rid,
			mode:      p.Content.VoiceMode,
			format:    p.Content.AudioFormat,
			next:      1,
			buf:       audioring.New(h.maxVoiceBytes()),
			openedAt:  time.Now(),
		}
		c.openVoice(vs)
		h.appendVoice(c, vs, chunk)

	case seq == protocol.SeqEnd:
		vs, open := c.voiceFor(rid)
		if !open {
			h.replyError(c, protocol.ErrStreamSeq, "no open voice stream for request", rid)
			return
		}
		if !h.appendVoice(c, vs, chunk) {
			return
		}
		audio := vs.buf.Drain()
		c.dropVoice(rid)
		if len(audio) == 0 {
			h.replyError(c, protocol.ErrMalformedPayload, "voice stream carried no audio", rid)
			return
		}
		c.logger.Debugf("voice request %s closed with %d bytes after %s",
			rid, len(audio), time.Since(vs.openedAt).Round(time.Millisecond))
		h.processVoice(ctx, c, sess, rid, audio, vs.format, requireTTS)

	default:
		vs, open := c.voiceFor(rid)
		if !open {
			h.replyError(c, protocol.ErrStreamSeq, "no open voice stream for request", rid)
			return
		}
		if seq != vs.next {
			c.dropVoice(rid)
			h.replyError(c, protocol.ErrStreamSeq,
				fmt.Sprintf("expected stream_seq %d, got %d", vs.next, seq), rid)
			return
		}
		vs.next++
		h.appendVoice(c, vs, chunk)
	}
}

// handleBinary appends a raw audio frame to the open BINARY voice request.
func (h *WebSocketHandler) handleBinary(c *connection, data []byte) {
	vs, ok := c.activeVoice()
	if !ok {
		h.replyError(c, protocol.ErrMalformedPayload, "binary frame without an open BINARY voice request", "")
		return
	}
	h.appendVoice(c, vs, data)
}

// appendVoice adds chunk to vs. On overflow the stream is dropped and the
// client told; it reports whether the append succeeded.
func (h *WebSocketHandler) appendVoice(c *connection, vs *voiceStream, chunk []byte) bool {
	err := vs.buf.Append(chunk)
	if err == nil {
		return true
	}
	c.dropVoice(vs.requestID)
	if errors.Is(err, audioring.ErrTooLarge) {
		h.replyError(c, protocol.ErrPayloadTooLarge,
			fmt.Sprintf("voice exceeds %d bytes", vs.buf.Capacity()), vs.requestID)
		return false
	}
	c.logger.Errorf("buffering voice for %s: %v", vs.requestID, err)
	h.replyError(c, protocol.ErrInternal, "failed to buffer voice", vs.requestID)
	return false
}

func (h *WebSocketHandler) processVoice(ctx context.Context, c *connection, sess session.Session, requestID string, audio []byte, format string, requireTTS bool) {
	h.runTurn(ctx, c, requestID, func(ctx context.Context) error {
		return h.turns.ProcessVoice(ctx, sess, requestID, audio, format, requireTTS)
	})
}

func (h *WebSocketHandler) maxVoiceBytes() int {
	if h.config.MaxVoiceBytes > 0 {
		return h.config.MaxVoiceBytes
	}
	return defaultMaxVoiceBytes
}
