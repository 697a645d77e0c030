package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

// TranscriptionResponse represents the response from Whisper STT service
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
}

// TranscriptionSegment represents a timed segment of transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ID    int     `json:"id"`
}

// WhisperClient handles communication with Whisper STT service
type WhisperClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *Logger.Logger
	// SampleRate is assumed for raw PCM uploads.
	SampleRate int
}

// NewWhisperClient creates a new Whisper client
func NewWhisperClient(baseURL string, timeout time.Duration, logger *Logger.Logger) *WhisperClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		SampleRate: 16000,
	}
}

// Transcribe implements stt.Transcriber.
func (w *WhisperClient) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	resp, err := w.TranscribeAudio(ctx, audio, format)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// TranscribeAudio uploads one audio clip and returns the transcription.
// Raw PCM is wrapped in a WAV header first.
func (w *WhisperClient) TranscribeAudio(ctx context.Context, audio []byte, format string) (*TranscriptionResponse, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio provided")
	}

	format = strings.ToLower(format)
	filename := "audio." + format
	switch format {
	case "", "pcm", "pcm_s16le":
		audio = pcmToWAV(audio, w.SampleRate)
		filename = "audio.wav"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	requestURL := fmt.Sprintf("%s/asr?encode=true&task=transcribe&output=json", w.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		w.logger.Errorf("Whisper service error (status %d): %s", resp.StatusCode, string(responseBody))
		return nil, fmt.Errorf("whisper service returned status %d", resp.StatusCode)
	}
	if len(responseBody) == 0 {
		return nil, fmt.Errorf("whisper service returned empty response")
	}

	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		// some deployments answer with plain text
		w.logger.Debugf("Treating whisper response as plain text (%d bytes)", len(responseBody))
		return &TranscriptionResponse{Text: string(responseBody)}, nil
	}

	w.logger.Debugf("Whisper transcription: %s (language: %s)", transcription.Text, transcription.Language)
	return &transcription, nil
}

// pcmToWAV prepends a 16-bit mono PCM WAV header.
func pcmToWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate == 0 {
		sampleRate = 16000
	}

	const (
		numChannels   = 1  // Mono
		bitsPerSample = 16 // 16-bit PCM
	)

	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	wavSize := 44 + len(pcm)

	header := make([]byte, 44)

	// RIFF chunk descriptor
	copy(header[0:4], "RIFF")
	writeUint32LE(header[4:8], uint32(wavSize-8))
	copy(header[8:12], "WAVE")

	// fmt sub-chunk
	copy(header[12:16], "fmt ")
	writeUint32LE(header[16:20], 16) // PCM format chunk size
	writeUint16LE(header[20:22], 1)  // PCM format
	writeUint16LE(header[22:24], uint16(numChannels))
	writeUint32LE(header[24:28], uint32(sampleRate))
	writeUint32LE(header[28:32], uint32(byteRate))
	writeUint16LE(header[32:34], uint16(blockAlign))
	writeUint16LE(header[34:36], uint16(bitsPerSample))

	// data sub-chunk
	copy(header[36:40], "data")
	writeUint32LE(header[40:44], uint32(len(pcm)))

	wavData := make([]byte, 0, wavSize)
	wavData = append(wavData, header...)
	return append(wavData, pcm...)
}

func writeUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func writeUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
