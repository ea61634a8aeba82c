// Package edge provides a TTS synthesizer backed by Microsoft Edge's online
// neural voices over the read-aloud WebSocket API.
//
// Each Synthesize call opens a fresh connection, configures raw 16 kHz 16-bit
// mono PCM output, sends one SSML request, and collects binary audio frames
// until the service signals the end of the turn. Binary frames carry a
// big-endian u16 header length followed by MIME-style headers; the audio bytes
// follow the header block.
package edge

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/jwhan-dev/ccoli/pkg/audio"
	"github.com/jwhan-dev/ccoli/pkg/provider/tts"
)

const (
	// trustedClientToken is the fixed token the Edge browser uses for the
	// read-aloud endpoint.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	wsEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"

	// outputFormat matches the device's playback format, so no resampling
	// is needed on either side.
	outputFormat = "raw-16khz-16bit-mono-pcm"

	defaultVoice   = "ko-KR-SunHiNeural"
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring a [Synthesizer].
type Option func(*Synthesizer)

// WithVoice sets the neural voice short name (e.g., "ko-KR-SunHiNeural").
func WithVoice(voice string) Option {
	return func(s *Synthesizer) {
		if voice != "" {
			s.voice = voice
		}
	}
}

// WithTimeout bounds one whole synthesis call. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Synthesizer implements [tts.Synthesizer] against the Edge read-aloud
// service. Safe for concurrent use; every call is an independent connection.
type Synthesizer struct {
	voice   string
	timeout time.Duration
}

// New creates an Edge synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		voice:   defaultVoice,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("edge: text must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	connID := newRequestID()
	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("%s?TrustedClientToken=%s&ConnectionId=%s", wsEndpoint, trustedClientToken, connID), nil)
	if err != nil {
		return nil, fmt.Errorf("edge: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	if err := conn.Write(ctx, websocket.MessageText, speechConfig()); err != nil {
		return nil, fmt.Errorf("edge: send speech config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, s.ssmlRequest(newRequestID(), text)); err != nil {
		return nil, fmt.Errorf("edge: send ssml: %w", err)
	}

	var pcm []byte
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("edge: read: %w", err)
		}
		switch typ {
		case websocket.MessageText:
			if strings.Contains(string(msg), "Path:turn.end") {
				if len(pcm)%2 != 0 {
					pcm = pcm[:len(pcm)-1]
				}
				return audio.PCM16ToFloat32(pcm), nil
			}
		case websocket.MessageBinary:
			payload, err := audioPayload(msg)
			if err != nil {
				return nil, err
			}
			pcm = append(pcm, payload...)
		}
	}
}

// speechConfig is the one-time output format negotiation message.
func speechConfig() []byte {
	var b strings.Builder
	b.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	b.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	b.WriteString("Path:speech.config\r\n\r\n")
	b.WriteString(`{"context":{"synthesis":{"audio":{"metadataoptions":{` +
		`"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + outputFormat + `"}}}}`)
	return []byte(b.String())
}

// ssmlRequest wraps text in an SSML document addressed to the configured
// voice.
func (s *Synthesizer) ssmlRequest(requestID, text string) []byte {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(text))

	var b strings.Builder
	b.WriteString("X-RequestId:" + requestID + "\r\n")
	b.WriteString("X-Timestamp:" + timestamp() + "\r\n")
	b.WriteString("Content-Type:application/ssml+xml\r\n")
	b.WriteString("Path:ssml\r\n\r\n")
	b.WriteString(`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='ko-KR'>`)
	b.WriteString(`<voice name='` + s.voice + `'>`)
	b.WriteString(escaped.String())
	b.WriteString(`</voice></speak>`)
	return []byte(b.String())
}

// audioPayload strips the header block of a binary frame and returns the
// audio bytes. Frames whose headers do not declare Path:audio carry no
// samples and yield an empty payload.
func audioPayload(msg []byte) ([]byte, error) {
	if len(msg) < 2 {
		return nil, errors.New("edge: binary frame too short")
	}
	headerLen := int(binary.BigEndian.Uint16(msg[:2]))
	if 2+headerLen > len(msg) {
		return nil, fmt.Errorf("edge: header length %d exceeds frame size %d", headerLen, len(msg))
	}
	if !strings.Contains(string(msg[2:2+headerLen]), "Path:audio") {
		return nil, nil
	}
	return msg[2+headerLen:], nil
}

// newRequestID returns a 32-character lowercase hex identifier.
func newRequestID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// timestamp renders the header timestamp in the format the service expects.
func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 2 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
