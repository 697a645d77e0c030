package adapters

import (
	"context"
	"time"

	"github.com/xpanvictor/xarvis-gateway/pkg/assistant"
)

type ContractLLMCfg struct {
	// DeltaBufferLimit sizes the event channel handed to the consumer.
	DeltaBufferLimit uint
	// RequestTimeout bounds a whole generation; zero means no bound.
	RequestTimeout time.Duration
}

func (c ContractLLMCfg) BufferSize() int {
	if c.DeltaBufferLimit == 0 {
		return 32
	}
	return int(c.DeltaBufferLimit)
}

// Emit delivers ev unless ctx is cancelled first.
func Emit(ctx context.Context, ch chan<- assistant.Event, ev assistant.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stream runs produce on its own goroutine and returns the channel it
// feeds. A non-nil error from produce becomes the final event.
func Stream(
	ctx context.Context,
	cfg ContractLLMCfg,
	produce func(ctx context.Context, emit func(assistant.Event) bool) error,
) <-chan assistant.Event {
	out := make(chan assistant.Event, cfg.BufferSize())
	go func() {
		defer close(out)
		runCtx := ctx
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}
		emit := func(ev assistant.Event) bool { return Emit(runCtx, out, ev) }
		if err := produce(runCtx, emit); err != nil && ctx.Err() == nil {
			Emit(ctx, out, assistant.Event{Err: err})
		}
	}()
	return out
}
