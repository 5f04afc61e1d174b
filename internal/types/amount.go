package types

import (
	"encoding/binary"
	"errors"
	"math/big"
)

// Amount is a 128-bit unsigned integer in the smallest indivisible unit of an
// asset, stored as two big-endian uint64 limbs (Hi, Lo). Arithmetic saturates
// at zero on debit and rejects on overflow, per spec.
type Amount struct {
	Hi uint64
	Lo uint64
}

var ErrAmountOverflow = errors.New("types: amount overflow")

// AmountFromUint64 builds an Amount from a plain uint64 value.
func AmountFromUint64(v uint64) Amount {
	return Amount{Lo: v}
}

// Add returns a+b, erroring on overflow past the 128-bit range.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := new(big.Int).Add(a.big(), b.big())
	if sum.BitLen() > 128 {
		return Amount{}, ErrAmountOverflow
	}
	lo := a.Lo + b.Lo
	carry := uint64(0)
	if lo < a.Lo {
		carry = 1
	}
	hi := a.Hi + b.Hi + carry
	return Amount{Hi: hi, Lo: lo}, nil
}

// Sub returns a-b, saturating at zero if b > a (spec: "saturates at zero on debit").
func (a Amount) Sub(b Amount) Amount {
	if a.Less(b) {
		return Amount{}
	}
	lo := a.Lo - b.Lo
	borrow := uint64(0)
	if a.Lo < b.Lo {
		borrow = 1
	}
	hi := a.Hi - b.Hi - borrow
	return Amount{Hi: hi, Lo: lo}
}

// Less reports whether a < b.
func (a Amount) Less(b Amount) bool {
	if a.Hi != b.Hi {
		return a.Hi < b.Hi
	}
	return a.Lo < b.Lo
}

// LessEqual reports whether a <= b.
func (a Amount) LessEqual(b Amount) bool {
	return a.Less(b) || a == b
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Hi == 0 && a.Lo == 0
}

func (a Amount) big() *big.Int {
	out := new(big.Int).Lsh(new(big.Int).SetUint64(a.Hi), 64)
	return out.Or(out, new(big.Int).SetUint64(a.Lo))
}

// Bytes16 encodes the amount as 16 big-endian bytes, the form used by the
// persisted-state encodings and the state-root leaves. The signable
// transaction encoding uses the little-endian EncodeLE16 form instead.
func (a Amount) Bytes16() [16]byte {
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], a.Hi)
	binary.BigEndian.PutUint64(out[8:16], a.Lo)
	return out
}

// AmountFromBytes16 decodes the 16-byte big-endian representation.
func AmountFromBytes16(b [16]byte) Amount {
	return Amount{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// EncodeLE16 encodes the amount in the little-endian wire form used by the
// canonical signable transaction encoding (`amount_le16`, spec.md §6).
func (a Amount) EncodeLE16() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], a.Lo)
	binary.LittleEndian.PutUint64(out[8:16], a.Hi)
	return out
}

// DecodeAmountLE16 decodes the little-endian wire form.
func DecodeAmountLE16(b [16]byte) Amount {
	return Amount{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}
