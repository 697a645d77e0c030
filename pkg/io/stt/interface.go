package stt

import (
	"context"
)

// Transcriber turns one complete voice request into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}
