// Package whisper provides whisper.cpp-backed speech-to-text transcribers.
//
// Two backends share this package: [Native] links the model directly through
// the whisper.cpp CGO bindings, and [Client] talks to a running whisper-server
// binary, which exposes a REST API at POST /inference. The server cannot run
// the native backend when the model does not fit next to the LLM; the HTTP
// backend lets a second machine carry the model.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080/inference",
//	    whisper.WithLanguage("ko"),
//	)
//	text, err := c.Transcribe(ctx, samples)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jwhan-dev/ccoli/pkg/audio"
	"github.com/jwhan-dev/ccoli/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the PCM WAV payload whisper.cpp
	// expects.
	bitsPerSample = 16

	defaultLanguage = "ko"
)

// Compile-time assertion that Client implements stt.Transcriber.
var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithLanguage sets the language code sent to the whisper.cpp server.
// Defaults to "ko".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithHTTPClient overrides the HTTP client used for inference requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpc = hc
	}
}

// Client implements [stt.Transcriber] against a whisper-server inference
// endpoint. Safe for concurrent use.
type Client struct {
	endpoint string
	language string
	httpc    *http.Client
}

// New creates a Client posting to the whisper-server inference URL
// (e.g., "http://localhost:8080/inference").
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("whisper: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		language: defaultLanguage,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Ready implements [stt.Transcriber]. The server is probed lazily; a
// constructed client is assumed serviceable.
func (c *Client) Ready() bool {
	return true
}

// Transcribe implements [stt.Transcriber]. The samples are wrapped in a WAV
// container and POSTed as multipart/form-data.
func (c *Client) Transcribe(ctx context.Context, samples []float32) (string, error) {
	wav := encodeWAV(audio.Float32ToPCM16(samples), audio.SampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
