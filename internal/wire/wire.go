// Package wire implements the framed binary protocol spoken between the
// server and the device over a single TCP byte stream.
//
// Every packet is exactly
//
//	1 byte type ∥ 2 bytes payload length (little-endian) ∥ payload
//
// The device streams microphone audio inbound (START, AUDIO, END) and keeps
// the link alive with PING; the server answers with CMD (JSON action),
// AUDIO_OUT (chunked PCM16LE), AUDIO_OUT_END, and PONG.
//
// [Conn] wraps a [net.Conn] with the framing rules: timeout-tolerant exact
// reads on the receive side and a mutex-serialized, chunked, paced write path
// on the send side.
package wire

import "fmt"

// PacketType identifies the kind of a framed packet. The set is closed;
// unknown values are logged and skipped by the session, never fatal.
type PacketType byte

const (
	// TypeStart opens an inbound audio stream. Empty payload.
	TypeStart PacketType = 0x01

	// TypeAudio carries PCM16LE mono 16 kHz samples of an open stream.
	TypeAudio PacketType = 0x02

	// TypeEnd closes an inbound audio stream. Empty payload.
	TypeEnd PacketType = 0x03

	// TypePing is a device keepalive probe. Empty payload.
	TypePing PacketType = 0x10

	// TypeCmd carries a UTF-8 JSON action command to the device.
	TypeCmd PacketType = 0x11

	// TypeAudioOut carries one chunk of reply audio (PCM16LE mono 16 kHz).
	TypeAudioOut PacketType = 0x12

	// TypeAudioOutEnd terminates one reply audio sequence. Empty payload.
	TypeAudioOutEnd PacketType = 0x13

	// TypePong answers a PING. Empty payload.
	TypePong PacketType = 0x1F
)

// String returns the protocol name of the packet type.
func (t PacketType) String() string {
	switch t {
	case TypeStart:
		return "START"
	case TypeAudio:
		return "AUDIO"
	case TypeEnd:
		return "END"
	case TypePing:
		return "PING"
	case TypeCmd:
		return "CMD"
	case TypeAudioOut:
		return "AUDIO_OUT"
	case TypeAudioOutEnd:
		return "AUDIO_OUT_END"
	case TypePong:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(t))
	}
}

const (
	// headerSize is the fixed frame header: type byte plus u16le length.
	headerSize = 3

	// MaxPayload is the largest payload one frame can carry (u16 length).
	MaxPayload = 65535

	// maxChunk caps the payload of every non-audio packet. Large payloads
	// are split into consecutive frames of the same type.
	maxChunk = 60000

	// AudioChunkSize caps one AUDIO_OUT payload. 4096 bytes fills the
	// device's playback ring to its play threshold in a single frame; the
	// smaller historical 1024-byte chunks starve the ring on long replies.
	AudioChunkSize = 4096
)

// Packet is one decoded frame.
type Packet struct {
	Type    PacketType
	Payload []byte
}
