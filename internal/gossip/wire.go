package gossip

import (
	"encoding/binary"
	"fmt"
)

// cursor is a minimal read cursor for gossip payload decoding, distinct
// from internal/types' cursor (unexported there) since gossip's wire
// messages use uint16 length prefixes for bounded fields like signatures,
// not the uint64 prefixes of the persisted-state format.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) readU64() (uint64, error) {
	if c.off+8 > len(c.buf) {
		return 0, fmt.Errorf("gossip: truncated u64")
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off : c.off+8])
	c.off += 8
	return v, nil
}

func (c *cursor) readU16() (uint16, error) {
	if c.off+2 > len(c.buf) {
		return 0, fmt.Errorf("gossip: truncated u16")
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off : c.off+2])
	c.off += 2
	return v, nil
}

func (c *cursor) readN(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, fmt.Errorf("gossip: truncated field")
	}
	v := c.buf[c.off : c.off+n]
	c.off += n
	return v, nil
}

func (c *cursor) readBytes32() ([32]byte, error) {
	var out [32]byte
	v, err := c.readN(32)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

func (c *cursor) readBytesN16() ([]byte, error) {
	n, err := c.readU16()
	if err != nil {
		return nil, err
	}
	return c.readN(int(n))
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}
