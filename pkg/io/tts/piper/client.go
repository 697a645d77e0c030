package piper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var ErrEmptyText = errors.New("empty text")

type Piper struct {
	BaseURL string        // e.g. "http://tts:5000"
	Client  *http.Client  // inject; default if nil
	Voice   string        // default voice (override per-call)
	Timeout time.Duration // request timeout per sentence
}

func New(baseURL, voice string, timeout time.Duration) *Piper {
	return &Piper{BaseURL: baseURL, Voice: voice, Timeout: timeout}
}

// Synthesize implements tts.Synthesizer with the default voice.
func (p *Piper) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	body, _, err := p.DoTTS(ctx, text, "")
	return body, err
}

func (p *Piper) DoTTS(ctx context.Context, text string, optVoice string) (io.ReadCloser, string, error) {
	if text == "" {
		return nil, "", ErrEmptyText
	}
	voice := p.Voice
	if optVoice != "" {
		voice = optVoice
	}

	// rhasspy/wyoming-piper HTTP: GET /api/text-to-speech?text=...&voice=...
	// streams a WAV body on success.
	u, err := url.Parse(p.BaseURL + "/api/text-to-speech")
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	q.Set("text", text)
	if voice != "" {
		q.Set("voice", voice)
	}
	u.RawQuery = q.Encode()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx2, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, "", err
	}
	req.Header.Set("Accept", "audio/wav")

	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		return nil, "", fmt.Errorf("tts http request failed: %w (url=%s)", err, u.String())
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, "", fmt.Errorf("tts http %d: %s (dur=%s)", resp.StatusCode, string(b), time.Since(start))
	}
	// caller must Close the body
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, resp.Header.Get("Content-Type"), nil
}

// cancelOnClose keeps the request context alive until the body is drained.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
