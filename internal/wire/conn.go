package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// ErrTooManyTimeouts is returned by [Conn.ReadPacket] when the peer has been
// silent for the configured number of consecutive read timeouts. The session
// treats it as a terminal transport error.
var ErrTooManyTimeouts = errors.New("wire: too many consecutive read timeouts")

// audioChunkDelay paces consecutive AUDIO_OUT frames so a slow receiver's
// ring buffer is never overrun.
const audioChunkDelay = 2 * time.Millisecond

// Option configures a [Conn].
type Option func(*Conn)

// WithReadTimeout sets the per-read socket deadline. Each expired deadline
// counts as one keepalive tick. The default is 500 ms.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithMaxTimeouts sets how many consecutive read timeouts are tolerated
// before [ErrTooManyTimeouts]. The default of 120 drops a fully silent peer
// after one minute at the default read timeout.
func WithMaxTimeouts(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxTimeouts = n
		}
	}
}

// WithWriteTimeout sets the deadline for writing one frame. The default is
// 5 seconds.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// Conn frames packets over a single [net.Conn].
//
// Reads must come from one goroutine (the session reader). Writes may come
// from any goroutine: every Send* method serializes the full logical message
// under one mutex, so outbound packets never interleave mid-message.
type Conn struct {
	c            net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxTimeouts  int

	sendMu sync.Mutex
}

// NewConn wraps c with the protocol framing.
func NewConn(c net.Conn, opts ...Option) *Conn {
	conn := &Conn{
		c:            c,
		readTimeout:  500 * time.Millisecond,
		writeTimeout: 5 * time.Second,
		maxTimeouts:  120,
	}
	for _, o := range opts {
		o(conn)
	}
	return conn
}

// RemoteAddr reports the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.c.RemoteAddr()
}

// Close closes the underlying connection. Blocked reads and writes fail.
func (c *Conn) Close() error {
	return c.c.Close()
}

// ReadPacket reads the next frame. It blocks until a full frame arrives or a
// terminal condition occurs: io.EOF on clean close, [ErrTooManyTimeouts] on a
// silent peer, or the underlying transport error. A partial frame interrupted
// by EOF is reported as [io.ErrUnexpectedEOF].
func (c *Conn) ReadPacket() (Packet, error) {
	var header [headerSize]byte
	if err := c.readExact(header[:]); err != nil {
		return Packet{}, err
	}

	pkt := Packet{Type: PacketType(header[0])}
	length := int(binary.LittleEndian.Uint16(header[1:]))
	if length == 0 {
		return pkt, nil
	}

	pkt.Payload = make([]byte, length)
	if err := c.readExact(pkt.Payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	return pkt, nil
}

// readExact fills buf completely. Read timeouts are tolerated up to the
// configured consecutive bound; receiving any data resets the count.
func (c *Conn) readExact(buf []byte) error {
	filled := 0
	timeouts := 0
	for filled < len(buf) {
		// A failed deadline means the connection is already dead. Fall
		// through to Read, which reports the terminal error (io.EOF on a
		// closed pipe) instead of the deadline's wrapper.
		_ = c.c.SetReadDeadline(time.Now().Add(c.readTimeout))
		n, err := c.c.Read(buf[filled:])
		filled += n
		if n > 0 {
			timeouts = 0
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				timeouts++
				if timeouts >= c.maxTimeouts {
					return ErrTooManyTimeouts
				}
				continue
			}
			if errors.Is(err, io.EOF) && filled > 0 && filled < len(buf) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// SendCommand marshals cmd and sends it as a CMD packet.
func (c *Conn) SendCommand(cmd types.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("wire: encode command: %w", err)
	}
	return c.SendRawCommand(payload)
}

// SendRawCommand sends pre-encoded JSON as a CMD packet. Used for commands
// rendered by collaborators (the emotion pass-through).
func (c *Conn) SendRawCommand(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.writeChunked(TypeCmd, payload)
}

// SendPong answers a keepalive probe with an empty PONG.
func (c *Conn) SendPong() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.writePacket(TypePong, nil)
}

// SendAudio streams pcm as AUDIO_OUT chunks and terminates the sequence with
// AUDIO_OUT_END. Chunks are at most [AudioChunkSize] bytes and always
// sample-aligned; a trailing odd byte is dropped. Consecutive chunks are
// paced by a short sleep. The terminator is attempted even after a mid-stream
// write failure so the device framer is not left waiting.
func (c *Conn) SendAudio(pcm []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	for off := 0; off < len(pcm); off += AudioChunkSize {
		end := min(off+AudioChunkSize, len(pcm))
		if err := c.writePacket(TypeAudioOut, pcm[off:end]); err != nil {
			_ = c.writePacket(TypeAudioOutEnd, nil)
			return err
		}
		if end < len(pcm) {
			time.Sleep(audioChunkDelay)
		}
	}
	return c.writePacket(TypeAudioOutEnd, nil)
}

// writeChunked splits payload into maxChunk-sized frames of the same type.
// Must be called with sendMu held.
func (c *Conn) writeChunked(t PacketType, payload []byte) error {
	if len(payload) == 0 {
		return c.writePacket(t, nil)
	}
	for off := 0; off < len(payload); off += maxChunk {
		end := min(off+maxChunk, len(payload))
		if err := c.writePacket(t, payload[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// writePacket writes one frame. Must be called with sendMu held.
func (c *Conn) writePacket(t PacketType, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("wire: payload %d exceeds frame limit", len(payload))
	}

	frame := make([]byte, headerSize+len(payload))
	frame[0] = byte(t)
	binary.LittleEndian.PutUint16(frame[1:], uint16(len(payload)))
	copy(frame[headerSize:], payload)

	if err := c.c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("wire: set write deadline: %w", err)
	}
	if _, err := c.c.Write(frame); err != nil {
		return fmt.Errorf("wire: send %s: %w", t, err)
	}
	return nil
}
