package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrProcMsg        = errors.New("error processing msg")
	ErrTurnTimeout    = errors.New("turn timed out")
	ErrNoTranscriber  = errors.New("voice input is not supported")
	ErrNoSpeech       = errors.New("no speech recognized")
	ErrTranscribeFail = errors.New("transcription failed")
)

// TurnProcessor turns one client request into a streamed reply.
type TurnProcessor interface {
	ProcessText(ctx context.Context, sess session.Session, requestID, text string, requireTTS bool) error
	ProcessVoice(ctx context.Context, sess session.Session, requestID string, audio []byte, format string, requireTTS bool) error
}

// Streamer is the part of the response pipeline the service drives.
type Streamer interface {
	Run(ctx context.Context, turn pipeline.Turn, events <-chan assistant.Event) (pipeline.Result, error)
}

type conversationService struct {
	gen         assistant.Generator
	streamer    Streamer
	transcriber stt.Transcriber
	turnTimeout time.Duration
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *Logger.Logger
}

// New wires a conversation service. transcriber may be nil, which disables
// voice requests.
func New(
	gen assistant.Generator,
	streamer Streamer,
	transcriber stt.Transcriber,
	turnTimeout time.Duration,
	m *metrics.Metrics,
	logger *Logger.Logger,
) TurnProcessor {
	return &conversationService{
		gen:         gen,
		streamer:    streamer,
		transcriber: transcriber,
		turnTimeout: turnTimeout,
		metrics:     m,
		tracer:      otel.Tracer("github.com/xpanvictor/xarvis-gateway/internal/domains/conversation"),
		logger:      logger,
	}
}

// ProcessText implements TurnProcessor.
func (c *conversationService) ProcessText(ctx context.Context, sess session.Session, requestID, text string, requireTTS bool) error {
	ctx, finish := c.startTurn(ctx, "text", sess, requestID)
	err := c.respond(ctx, sess, requestID, text, requireTTS)
	finish(err)
	return err
}

// ProcessVoice implements TurnProcessor.
func (c *conversationService) ProcessVoice(ctx context.Context, sess session.Session, requestID string, audio []byte, format string, requireTTS bool) error {
	ctx, finish := c.startTurn(ctx, "voice", sess, requestID, attribute.Int("audio.bytes", len(audio)))
	err := c.processVoice(ctx, sess, requestID, audio, format, requireTTS)
	finish(err)
	return err
}

// startTurn opens the turn span; finish records the outcome on the span
// and in metrics.
func (c *conversationService) startTurn(ctx context.Context, kind string, sess session.Session, requestID string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	attrs = append(attrs,
		attribute.String("session.id", sess.ID),
		attribute.String("request.id", requestID),
		attribute.String("session.platform", sess.Platform),
	)
	ctx, span := c.tracer.Start(ctx, "turn."+kind, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		res := outcome(err)
		span.SetAttributes(attribute.String("turn.outcome", res))
		if err != nil && res != "cancelled" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.Turn(kind, res, time.Since(started))
	}
}

func (c *conversationService) processVoice(ctx context.Context, sess session.Session, requestID string, audio []byte, format string, requireTTS bool) error {
	if c.transcriber == nil {
		return ErrNoTranscriber
	}
	ctx, cancel := c.withTurnTimeout(ctx)
	defer cancel()

	text, err := c.transcriber.Transcribe(ctx, audio, format)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTurnTimeout
		}
		return fmt.Errorf("%w: %v", ErrTranscribeFail, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNoSpeech
	}
	c.logger.Debugf("session %s request %s transcribed %d bytes to %q", sess.ID, requestID, len(audio), text)
	return c.respond(ctx, sess, requestID, text, requireTTS)
}

func (c *conversationService) respond(ctx context.Context, sess session.Session, requestID, text string, requireTTS bool) error {
	ctx, cancel := c.withTurnTimeout(ctx)
	defer cancel()

	events, err := c.gen.Generate(ctx, assistant.GenerateInput{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		RequestID: requestID,
		UserInput: text,
		Functions: sess.Functions,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcMsg, err)
	}

	_, err = c.streamer.Run(ctx, pipeline.Turn{
		SessionID:  sess.ID,
		RequestID:  requestID,
		RequireTTS: requireTTS,
	}, events)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return ErrTurnTimeout
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrProcMsg, err)
	}
}

// withTurnTimeout bounds a turn; zero disables the bound.
func (c *conversationService) withTurnTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.turnTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.turnTimeout)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTurnTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
