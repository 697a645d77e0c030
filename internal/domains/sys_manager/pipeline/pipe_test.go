package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
	toolsystem "github.com/xpanvictor/xarvis-gateway/pkg/tool_system"
)

type frame struct {
	kind string // text, call, audio
	seq  int
	data string
}

type recordingSink struct {
	mu     sync.Mutex
	frames []frame
}

func (s *recordingSink) add(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) SendTextDelta(_ context.Context, _, _ string, seq int, text string) error {
	return s.add(frame{"text", seq, text})
}

func (s *recordingSink) SendFunctionCall(_ context.Context, _, _ string, seq int, call toolsystem.FunctionCall) error {
	return s.add(frame{"call", seq, call.Name})
}

func (s *recordingSink) SendAudioFrame(_ context.Context, _, _ string, seq int, b []byte) error {
	return s.add(frame{"audio", seq, string(b)})
}

func (s *recordingSink) of(kind string) []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []frame
	for _, f := range s.frames {
		if f.kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// bracketSynth speaks a sentence as "<sentence>".
type bracketSynth struct {
	mu    sync.Mutex
	spoke []string
	fail  string
}

func (b *bracketSynth) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	if b.fail != "" && strings.Contains(text, b.fail) {
		return nil, errors.New("synth down")
	}
	b.mu.Lock()
	b.spoke = append(b.spoke, text)
	b.mu.Unlock()
	return io.NopCloser(strings.NewReader("<" + text + ">")), nil
}

func feed(evs ...assistant.Event) <-chan assistant.Event {
	ch := make(chan assistant.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func seqs(fs []frame) []int {
	out := make([]int, len(fs))
	for i, f := range fs {
		out[i] = f.seq
	}
	return out
}

func testCfg() Config {
	return Config{MinSentenceChars: 5, MaxSentenceChars: 50, AudioChunkBytes: 4}
}

func TestTextOnlyStream(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, &bracketSynth{}, testCfg(), Logger.NewNop())

	res, err := p.Run(context.Background(), Turn{SessionID: "s", RequestID: "r"},
		feed(assistant.Event{Text: "Hello"}, assistant.Event{Text: " world"}))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TextFrames)

	text := sink.of("text")
	assert.Equal(t, []int{0, 1, -1}, seqs(text))
	assert.Equal(t, "Hello", text[0].data)
	assert.Equal(t, "", text[2].data)
	assert.Empty(t, sink.of("audio"))
}

func TestVoiceStreamFollowsSentences(t *testing.T) {
	sink := &recordingSink{}
	synth := &bracketSynth{}
	p := New(sink, synth, testCfg(), Logger.NewNop())

	res, err := p.Run(context.Background(), Turn{SessionID: "s", RequestID: "r", RequireTTS: true},
		feed(assistant.Event{Text: "Hello there, fri"}, assistant.Event{Text: "end. How are you"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello there,", " friend.", " How are you"}, synth.spoke)

	audio := sink.of("audio")
	require.NotEmpty(t, audio)
	last := audio[len(audio)-1]
	assert.Equal(t, -1, last.seq)
	var joined strings.Builder
	for i, f := range audio[:len(audio)-1] {
		assert.Equal(t, i, f.seq)
		assert.LessOrEqual(t, len(f.data), 4)
		joined.WriteString(f.data)
	}
	assert.Equal(t, "<Hello there,>< friend.>< How are you>", joined.String())
	assert.Equal(t, len(audio)-1, res.AudioFrames)
	assert.Equal(t, []int{0, 1, -1}, seqs(sink.of("text")))
}

func TestFunctionCallTakesTextSlot(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, nil, testCfg(), Logger.NewNop())

	res, err := p.Run(context.Background(), Turn{SessionID: "s", RequestID: "r", RequireTTS: true},
		feed(
			assistant.Event{Text: "On it"},
			assistant.Event{FunctionCall: &toolsystem.FunctionCall{Name: "lamp"}},
			assistant.Event{Text: "done"},
		))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FunctionCalls)

	calls := sink.of("call")
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].seq)
	assert.Equal(t, []int{0, 2, -1}, seqs(sink.of("text")))
	assert.Empty(t, sink.of("audio"))
}

func TestSynthesisFailureSkipsSentence(t *testing.T) {
	sink := &recordingSink{}
	synth := &bracketSynth{fail: "bad"}
	p := New(sink, synth, testCfg(), Logger.NewNop())

	_, err := p.Run(context.Background(), Turn{SessionID: "s", RequestID: "r", RequireTTS: true},
		feed(assistant.Event{Text: "A bad one. A good one."}))
	require.NoError(t, err)
	assert.Equal(t, []string{" A good one."}, synth.spoke)
}

func TestNoVoiceTerminatorWithoutAudio(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, &bracketSynth{}, testCfg(), Logger.NewNop())

	_, err := p.Run(context.Background(), Turn{SessionID: "s", RequestID: "r", RequireTTS: true},
		feed(assistant.Event{Text: "   "}))
	require.NoError(t, err)
	assert.Empty(t, sink.of("audio"))
}

func TestGenerationErrorStillTerminates(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, nil, testCfg(), Logger.NewNop())
	boom := errors.New("model crashed")

	_, err := p.Run(context.Background(), Turn{SessionID: "s", RequestID: "r"},
		feed(assistant.Event{Text: "partial"}, assistant.Event{Err: boom}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0, -1}, seqs(sink.of("text")))
}

// stallingAudio yields one chunk and then blocks until the turn is
// cancelled. started closes once the first chunk has been consumed.
type stallingAudio struct {
	ctx     context.Context
	started chan struct{}
	reads   int
}

func (a *stallingAudio) Read(p []byte) (int, error) {
	a.reads++
	if a.reads == 1 {
		return copy(p, "RIFF"), nil
	}
	if a.reads == 2 {
		close(a.started)
	}
	<-a.ctx.Done()
	return 0, a.ctx.Err()
}

type stallingSynth struct {
	started chan struct{}
}

func (s *stallingSynth) Synthesize(ctx context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(&stallingAudio{ctx: ctx, started: s.started}), nil
}

func TestCancelStillTerminates(t *testing.T) {
	sink := &recordingSink{}
	synth := &stallingSynth{started: make(chan struct{})}
	p := New(sink, synth, testCfg(), Logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan assistant.Event)
	go func() {
		events <- assistant.Event{Text: "first sentence here."}
		<-synth.started
		cancel()
	}()

	_, err := p.Run(ctx, Turn{SessionID: "s", RequestID: "r", RequireTTS: true}, events)
	assert.ErrorIs(t, err, context.Canceled)

	text := sink.of("text")
	require.NotEmpty(t, text)
	assert.Equal(t, -1, text[len(text)-1].seq)

	assert.Equal(t, []int{0, -1}, seqs(sink.of("audio")))
}
