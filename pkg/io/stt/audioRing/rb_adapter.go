package audioring

import (
	"errors"

	"github.com/smallnest/ringbuffer"
)

var ErrTooLarge = errors.New("voice payload exceeds buffer capacity")

// VoiceBuffer collects the raw bytes of one chunked voice request.
type VoiceBuffer interface {
	Append(chunk []byte) error
	// Drain hands back everything appended so far and empties the buffer.
	Drain() []byte
	Len() int
	Capacity() int
	Reset()
}

type rb_impl struct {
	size int
	rb   *ringbuffer.RingBuffer
}

// Append implements VoiceBuffer. A chunk that does not fit is rejected
// whole; nothing is overwritten.
func (r *rb_impl) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if len(chunk) > r.rb.Free() {
		return ErrTooLarge
	}
	_, err := r.rb.Write(chunk)
	return err
}

// Drain implements VoiceBuffer.
func (r *rb_impl) Drain() []byte {
	if r.rb.IsEmpty() {
		return []byte{}
	}
	data := make([]byte, r.rb.Length())
	n, err := r.rb.Read(data)
	if err != nil {
		return []byte{}
	}
	r.rb.Reset()
	return data[:n]
}

// Len implements VoiceBuffer.
func (r *rb_impl) Len() int {
	return r.rb.Length()
}

// Capacity implements VoiceBuffer.
func (r *rb_impl) Capacity() int {
	return r.size
}

// Reset implements VoiceBuffer.
func (r *rb_impl) Reset() {
	r.rb.Reset()
}

func New(size int) VoiceBuffer {
	return &rb_impl{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false), // Non-blocking for graceful overflow handling
	}
}
