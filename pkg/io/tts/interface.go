package tts

import (
	"context"
	"io"
)

// Synthesizer turns one sentence into an audio byte stream. The caller
// closes the returned reader.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}
