// Package gossip implements the wire-level peer interface described in
// spec §6 ("Peer interface (networking collaborator <-> core)"): framed
// messages for BlockAnnounce, RoundProposal, RoundVote and BlockRequest,
// plus the per-peer misbehavior scoring that gates throttling and
// disconnection. It does not own peer discovery, connection lifecycle, or
// encryption (spec §6: those belong to the networking collaborator) —
// only the message shapes and the framing contract a collaborator speaks
// against. Grounded on the teacher's node/p2p package (envelope framing,
// command table, ban-scoring), generalized from a Bitcoin-style block/tx
// relay protocol to FinDAG's DAG-block and round-proposal relay.
package gossip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode"

	"golang.org/x/crypto/sha3"
)

const (
	// HeaderBytes is the fixed framing header length for every gossip
	// message: magic(4) + command(12) + length(4) + checksum(4).
	HeaderBytes  = 24
	CommandBytes = 12

	// MaxMessageBytes bounds a single framed payload, matching spec §4.4's
	// max_block_bytes headroom plus proposal/vote overhead.
	MaxMessageBytes = 8 << 20
)

// Message is one framed gossip message: a command name and its encoded
// payload.
type Message struct {
	Magic   uint32
	Command string
	Payload []byte
}

// ReadError conveys how a caller should treat a malformed gossip message:
// whether to disconnect the peer outright or merely drop the message and
// accumulate ban score (spec §5 "Backpressure": "the oldest unverified
// message is dropped and a metric incremented").
type ReadError struct {
	Err           error
	BanScoreDelta int
	Disconnect    bool
}

func (e *ReadError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func checksum4(payload []byte) [4]byte {
	h := sha3.New256()
	_, _ = h.Write(payload)
	var out [4]byte
	copy(out[:], h.Sum(nil)[:4])
	return out
}

func encodeCommand(cmd string) ([CommandBytes]byte, error) {
	var out [CommandBytes]byte
	if cmd == "" || len(cmd) > CommandBytes {
		return out, fmt.Errorf("gossip: command must be 1..%d bytes", CommandBytes)
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 0x80 || c == 0x00 || !unicode.IsPrint(rune(c)) {
			return out, fmt.Errorf("gossip: command contains non-printable ASCII")
		}
		out[i] = c
	}
	return out, nil
}

func decodeCommand(b [CommandBytes]byte) (string, error) {
	n := CommandBytes
	for i := 0; i < CommandBytes; i++ {
		if b[i] == 0x00 {
			n = i
			break
		}
	}
	for i := n; i < CommandBytes; i++ {
		if b[i] != 0x00 {
			return "", fmt.Errorf("gossip: command not NUL-right-padded")
		}
	}
	if n == 0 {
		return "", fmt.Errorf("gossip: empty command")
	}
	return string(b[:n]), nil
}

// WriteMessage frames and writes one gossip message to w.
func WriteMessage(w io.Writer, magic uint32, command string, payload []byte) error {
	cmd12, err := encodeCommand(command)
	if err != nil {
		return err
	}
	if len(payload) > MaxMessageBytes {
		return fmt.Errorf("gossip: payload exceeds MaxMessageBytes")
	}
	c4 := checksum4(payload)

	var hdr [HeaderBytes]byte
	binary.BigEndian.PutUint32(hdr[0:4], magic)
	copy(hdr[4:16], cmd12[:])
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(payload)))
	copy(hdr[20:24], c4[:])

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = w.Write(payload)
	return err
}

// ReadMessage reads exactly one framed gossip message from r.
//
// Semantics mirror the teacher's P2P read path: magic mismatch or oversize
// length disconnects without scoring (the channel is simply the wrong
// network); a bad command or checksum drops the message and raises ban
// score without disconnecting; truncation mid-payload disconnects (the
// stream itself is broken).
func ReadMessage(r io.Reader, expectedMagic uint32) (*Message, *ReadError) {
	var hdr [HeaderBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &ReadError{Err: err, Disconnect: true}
	}

	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != expectedMagic {
		return nil, &ReadError{Err: fmt.Errorf("gossip: magic mismatch"), Disconnect: true}
	}

	var cmdBytes [CommandBytes]byte
	copy(cmdBytes[:], hdr[4:16])
	cmd, err := decodeCommand(cmdBytes)
	if err != nil {
		return nil, &ReadError{Err: err, BanScoreDelta: 10}
	}

	payloadLen := binary.LittleEndian.Uint32(hdr[16:20])
	if payloadLen > MaxMessageBytes {
		return nil, &ReadError{Err: fmt.Errorf("gossip: payload length exceeds MaxMessageBytes"), Disconnect: true}
	}

	var expectedC4 [4]byte
	copy(expectedC4[:], hdr[20:24])

	payload := make([]byte, int(payloadLen))
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, &ReadError{Err: err, BanScoreDelta: 20, Disconnect: true}
		}
	}

	if computed := checksum4(payload); !bytes.Equal(expectedC4[:], computed[:]) {
		return nil, &ReadError{Err: fmt.Errorf("gossip: checksum mismatch"), BanScoreDelta: 10}
	}

	return &Message{Magic: magic, Command: cmd, Payload: payload}, nil
}
