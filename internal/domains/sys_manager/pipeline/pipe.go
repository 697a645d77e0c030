package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/tts"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/tts/stream"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

// Sink receives rendered stream frames. pkg/io.Publisher satisfies it.
type Sink interface {
	SendTextDelta(ctx context.Context, sessionID, requestID string, seq int, text string) error
	SendFunctionCall(ctx context.Context, sessionID, requestID string, seq int, call toolsystem.FunctionCall) error
	SendAudioFrame(ctx context.Context, sessionID, requestID string, seq int, frame []byte) error
}

type Config struct {
	MinSentenceChars int
	MaxSentenceChars int
	AudioChunkBytes  int
}

// Turn identifies the request whose reply is being streamed.
type Turn struct {
	SessionID  string
	RequestID  string
	RequireTTS bool
}

// Result counts what a run emitted, terminators excluded.
type Result struct {
	TextFrames    int
	FunctionCalls int
	AudioFrames   int
}

type Pipeline struct {
	sink   Sink
	synth  tts.Synthesizer
	cfg    Config
	logger *Logger.Logger
}

// New builds a pipeline. synth may be nil, in which case turns never carry
// a voice stream.
func New(sink Sink, synth tts.Synthesizer, cfg Config, logger *Logger.Logger) *Pipeline {
	if cfg.AudioChunkBytes <= 0 {
		cfg.AudioChunkBytes = 4096
	}
	return &Pipeline{sink: sink, synth: synth, cfg: cfg, logger: logger}
}

// Run streams events to the sink as a text stream and, when the turn wants
// speech, a voice stream synthesized sentence by sentence. Both streams
// get their -1 terminator even when ctx is cancelled; the voice terminator
// only follows audio that was actually sent.
func (p *Pipeline) Run(ctx context.Context, turn Turn, events <-chan assistant.Event) (Result, error) {
	log := p.logger.With("session_id", turn.SessionID, "request_id", turn.RequestID)

	speak := turn.RequireTTS && p.synth != nil
	if turn.RequireTTS && p.synth == nil {
		log.Warnf("speech requested but no synthesizer configured, sending text only")
	}

	var (
		res       Result
		sentences chan string
		wg        sync.WaitGroup
		audioErr  error
	)
	if speak {
		sentences = make(chan string, 16)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.AudioFrames, audioErr = p.speak(ctx, turn, sentences, log)
		}()
	}

	buf := stream.New(p.cfg.MinSentenceChars, p.cfg.MaxSentenceChars)
	textSeq := 0
	var genErr, sinkErr error

pump:
	for {
		select {
		case <-ctx.Done():
			break pump
		case ev, ok := <-events:
			if !ok {
				break pump
			}
			switch {
			case ev.Err != nil:
				genErr = ev.Err
				break pump
			case ev.FunctionCall != nil:
				if sinkErr = p.sink.SendFunctionCall(ctx, turn.SessionID, turn.RequestID, textSeq, *ev.FunctionCall); sinkErr != nil {
					break pump
				}
				textSeq++
				res.FunctionCalls++
			case ev.Text != "":
				if sinkErr = p.sink.SendTextDelta(ctx, turn.SessionID, turn.RequestID, textSeq, ev.Text); sinkErr != nil {
					break pump
				}
				textSeq++
				res.TextFrames++
				if speak {
					for _, s := range buf.Push(ev.Text) {
						if !offer(ctx, sentences, s) {
							break pump
						}
					}
				}
			}
		}
	}

	// terminators go out on a context that survives cancellation
	endCtx := context.WithoutCancel(ctx)
	if err := p.sink.SendTextDelta(endCtx, turn.SessionID, turn.RequestID, protocol.SeqEnd, ""); err != nil && sinkErr == nil {
		sinkErr = err
	}

	if speak {
		if ctx.Err() == nil && sinkErr == nil {
			if rest := buf.Flush(); rest != "" {
				offer(ctx, sentences, rest)
			}
		}
		close(sentences)
		wg.Wait()
		if res.AudioFrames > 0 {
			if err := p.sink.SendAudioFrame(endCtx, turn.SessionID, turn.RequestID, protocol.SeqEnd, nil); err != nil && sinkErr == nil {
				sinkErr = err
			}
		}
		if sinkErr == nil {
			sinkErr = audioErr
		}
	}

	switch {
	case genErr != nil:
		return res, fmt.Errorf("generation failed: %w", genErr)
	case sinkErr != nil:
		return res, sinkErr
	case ctx.Err() != nil:
		return res, ctx.Err()
	}
	log.Debugf("turn streamed: %d text, %d calls, %d audio", res.TextFrames, res.FunctionCalls, res.AudioFrames)
	return res, nil
}

func offer(ctx context.Context, ch chan<- string, s string) bool {
	select {
	case ch <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// speak synthesizes sentences in arrival order and emits their audio in
// fixed size chunks. It drains the channel even after it stops speaking.
func (p *Pipeline) speak(ctx context.Context, turn Turn, sentences <-chan string, log *Logger.Logger) (int, error) {
	seq := 0
	chunk := make([]byte, p.cfg.AudioChunkBytes)
	var sendErr error

	for s := range sentences {
		if ctx.Err() != nil || sendErr != nil {
			continue
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		rc, err := p.synth.Synthesize(ctx, s)
		if err != nil {
			log.Warnf("synthesis failed, skipping sentence: %v", err)
			continue
		}
		sendErr = p.pumpAudio(ctx, turn, rc, chunk, &seq, log)
		rc.Close()
	}
	return seq, sendErr
}

func (p *Pipeline) pumpAudio(ctx context.Context, turn Turn, r io.Reader, chunk []byte, seq *int, log *Logger.Logger) error {
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if serr := p.sink.SendAudioFrame(ctx, turn.SessionID, turn.RequestID, *seq, chunk[:n]); serr != nil {
				return serr
			}
			*seq++
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("audio read failed mid-sentence: %v", err)
			}
			return nil
		}
	}
}
