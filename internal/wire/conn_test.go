package wire_test

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jwhan-dev/ccoli/internal/wire"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

// readFrame reads one raw frame from the peer side of the pipe.
func readFrame(t *testing.T, r io.Reader) (wire.PacketType, []byte) {
	t.Helper()
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		t.Fatalf("read header: %v", err)
	}
	n := int(binary.LittleEndian.Uint16(hdr[1:]))
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return wire.PacketType(hdr[0]), payload
}

// writeFrame writes one raw frame to the peer side of the pipe.
func writeFrame(t *testing.T, w io.Writer, typ wire.PacketType, payload []byte) {
	t.Helper()
	frame := make([]byte, 3+len(payload))
	frame[0] = byte(typ)
	binary.LittleEndian.PutUint16(frame[1:], uint16(len(payload)))
	copy(frame[3:], payload)
	if _, err := w.Write(frame); err != nil {
		t.Errorf("write frame: %v", err)
	}
}

func TestReadPacket(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	go writeFrame(t, client, wire.TypeAudio, []byte{1, 2, 3, 4})

	pkt, err := conn.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if pkt.Type != wire.TypeAudio {
		t.Errorf("type: got %v, want AUDIO", pkt.Type)
	}
	if len(pkt.Payload) != 4 || pkt.Payload[3] != 4 {
		t.Errorf("payload: got %v", pkt.Payload)
	}
}

func TestReadPacket_EmptyPayload(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	go writeFrame(t, client, wire.TypeStart, nil)

	pkt, err := conn.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if pkt.Type != wire.TypeStart || len(pkt.Payload) != 0 {
		t.Errorf("got %v payload %v, want empty START", pkt.Type, pkt.Payload)
	}
}

func TestReadPacket_EOF(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := wire.NewConn(server)
	client.Close()

	if _, err := conn.ReadPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestReadPacket_TruncatedHeader(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := wire.NewConn(server)
	go func() {
		client.Write([]byte{byte(wire.TypeAudio)})
		client.Close()
	}()

	if _, err := conn.ReadPacket(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReadPacket_SilentPeer(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server,
		wire.WithReadTimeout(5*time.Millisecond),
		wire.WithMaxTimeouts(3),
	)

	if _, err := conn.ReadPacket(); !errors.Is(err, wire.ErrTooManyTimeouts) {
		t.Errorf("got %v, want ErrTooManyTimeouts", err)
	}
}

func TestSendPong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	go func() {
		if err := conn.SendPong(); err != nil {
			t.Errorf("SendPong: %v", err)
		}
	}()

	typ, payload := readFrame(t, client)
	if typ != wire.TypePong || len(payload) != 0 {
		t.Errorf("got %v payload %d bytes, want empty PONG", typ, len(payload))
	}
}

func TestSendCommand(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	go func() {
		err := conn.SendCommand(types.Command{
			Action:     types.ActionServoSet,
			Angle:      90,
			SID:        1,
			Meaningful: true,
			Recognized: true,
		})
		if err != nil {
			t.Errorf("SendCommand: %v", err)
		}
	}()

	typ, payload := readFrame(t, client)
	if typ != wire.TypeCmd {
		t.Fatalf("type: got %v, want CMD", typ)
	}
	want := `{"action":"SERVO_SET","servo":0,"angle":90,"sid":1,"meaningful":true,"recognized":true}`
	if string(payload) != want {
		t.Errorf("payload:\n got %s\nwant %s", payload, want)
	}
}

func TestSendAudio_Chunking(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	pcm := make([]byte, 10000)
	go func() {
		if err := conn.SendAudio(pcm); err != nil {
			t.Errorf("SendAudio: %v", err)
		}
	}()

	var sizes []int
	for {
		typ, payload := readFrame(t, client)
		if typ == wire.TypeAudioOutEnd {
			if len(payload) != 0 {
				t.Errorf("AUDIO_OUT_END payload: got %d bytes, want 0", len(payload))
			}
			break
		}
		if typ != wire.TypeAudioOut {
			t.Fatalf("unexpected type %v", typ)
		}
		if len(payload)%2 != 0 {
			t.Errorf("chunk of %d bytes is not sample-aligned", len(payload))
		}
		if len(payload) > wire.AudioChunkSize {
			t.Errorf("chunk of %d bytes exceeds %d", len(payload), wire.AudioChunkSize)
		}
		sizes = append(sizes, len(payload))
	}

	total := 0
	for _, n := range sizes {
		total += n
	}
	if total != len(pcm) {
		t.Errorf("streamed %d bytes, want %d", total, len(pcm))
	}
	if want := []int{4096, 4096, 1808}; len(sizes) != len(want) {
		t.Errorf("chunk count: got %v, want %v", sizes, want)
	}
}

func TestSendAudio_DropsOddTrailingByte(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	go conn.SendAudio(make([]byte, 4097))

	typ, payload := readFrame(t, client)
	if typ != wire.TypeAudioOut || len(payload) != 4096 {
		t.Fatalf("got %v with %d bytes, want AUDIO_OUT with 4096", typ, len(payload))
	}
	if typ, _ := readFrame(t, client); typ != wire.TypeAudioOutEnd {
		t.Errorf("got %v, want AUDIO_OUT_END", typ)
	}
}

func TestSendAudio_EmptyStillTerminates(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := wire.NewConn(server)
	go conn.SendAudio(nil)

	if typ, _ := readFrame(t, client); typ != wire.TypeAudioOutEnd {
		t.Errorf("got %v, want AUDIO_OUT_END", typ)
	}
}

func TestPacketTypeString(t *testing.T) {
	if got := wire.TypeAudioOut.String(); got != "AUDIO_OUT" {
		t.Errorf("got %q", got)
	}
	if got := wire.PacketType(0x42).String(); got != "UNKNOWN(0x42)" {
		t.Errorf("got %q", got)
	}
}
