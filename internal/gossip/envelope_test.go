package gossip

import (
	"bytes"
	"io"
	"testing"
)

type chunkReader struct {
	b     []byte
	step  int
	index int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.index >= len(r.b) {
		return 0, io.EOF
	}
	n := r.step
	if n <= 0 {
		n = 1
	}
	if r.index+n > len(r.b) {
		n = len(r.b) - r.index
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p[:n], r.b[r.index:r.index+n])
	r.index += n
	return n, nil
}

func TestWriteReadRoundTripPartialReads(t *testing.T) {
	var buf bytes.Buffer
	magic := uint32(0x46444147) // "FDAG"

	payload := []byte("hello block")
	if err := WriteMessage(&buf, magic, CmdBlockAnnounce, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	r := &chunkReader{b: buf.Bytes(), step: 3}
	msg, rerr := ReadMessage(r, magic)
	if rerr != nil {
		t.Fatalf("ReadMessage: %v", rerr)
	}
	if msg.Command != CmdBlockAnnounce {
		t.Fatalf("expected command %q, got %q", CmdBlockAnnounce, msg.Command)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Fatalf("payload mismatch: got %q", msg.Payload)
	}
}

func TestReadMessageRejectsMagicMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, 1, CmdBlockAnnounce, nil); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	_, rerr := ReadMessage(&buf, 2)
	if rerr == nil || !rerr.Disconnect {
		t.Fatalf("expected disconnect on magic mismatch, got %v", rerr)
	}
}

func TestReadMessageDropsChecksumMismatchWithoutDisconnect(t *testing.T) {
	var buf bytes.Buffer
	magic := uint32(7)
	if err := WriteMessage(&buf, magic, CmdRoundVote, []byte("abc")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF // flip last payload byte after checksum was computed
	_, rerr := ReadMessage(bytes.NewReader(corrupted), magic)
	if rerr == nil {
		t.Fatalf("expected checksum mismatch error")
	}
	if rerr.Disconnect {
		t.Fatalf("checksum mismatch must not disconnect, only drop")
	}
	if rerr.BanScoreDelta != 10 {
		t.Fatalf("expected ban score delta 10, got %d", rerr.BanScoreDelta)
	}
}

func TestEncodeCommandRejectsOversizeCommand(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMessage(&buf, 1, "this-command-name-is-too-long", nil)
	if err == nil {
		t.Fatalf("expected error for oversize command")
	}
}
