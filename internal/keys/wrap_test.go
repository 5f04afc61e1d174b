package keys

import (
	"bytes"
	"testing"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	kek := bytes.Repeat([]byte{0x42}, 32)
	plaintext := bytes.Repeat([]byte{0x07}, 32)
	wrapped, err := WrapKey(kek, plaintext)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	got, err := UnwrapKey(kek, wrapped)
	if err != nil {
		t.Fatalf("UnwrapKey: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round-trip mismatch: got %x want %x", got, plaintext)
	}
}

func TestUnwrapRejectsTamperedCiphertext(t *testing.T) {
	kek := bytes.Repeat([]byte{0x42}, 32)
	plaintext := bytes.Repeat([]byte{0x07}, 32)
	wrapped, err := WrapKey(kek, plaintext)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	wrapped[0] ^= 0xFF
	if _, err := UnwrapKey(kek, wrapped); err != ErrWrapIntegrity {
		t.Fatalf("got err=%v want ErrWrapIntegrity", err)
	}
}

func TestWrapRejectsBadKEKLength(t *testing.T) {
	if _, err := WrapKey([]byte{1, 2, 3}, bytes.Repeat([]byte{0}, 16)); err == nil {
		t.Fatalf("expected error for short kek")
	}
}
