package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/sha3"
)

// KeyStoreV1 is the on-disk format for a wrapped validator/account signing
// key, generalized from the teacher's RBKSv1 keystore to FinDAG's single
// Ed25519 suite.
type KeyStoreV1 struct {
	Version      string `json:"version"` // "FDKSv1"
	PubkeyHex    string `json:"pubkey_hex"`
	KeyIDHex     string `json:"key_id_hex"`
	WrapAlg      string `json:"wrap_alg"` // "AES-256-KW"
	WrappedSKHex string `json:"wrapped_sk_hex"`
}

const keyStoreVersion = "FDKSv1"
const wrapAlgAES256KW = "AES-256-KW"

// Generate creates a fresh Ed25519 validator/account keypair.
func Generate() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}

// KeyID derives the content-addressed key id: SHA3-256(pubkey).
func KeyID(pub ed25519.PublicKey) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(pub)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ExportWrapped wraps priv under kek and writes a KeyStoreV1 JSON document to
// path (spec §6 configuration: validators are long-lived keys that must
// survive node restarts).
func ExportWrapped(path string, pub ed25519.PublicKey, priv ed25519.PrivateKey, kek []byte) error {
	wrapped, err := WrapKey(kek, priv)
	if err != nil {
		return fmt.Errorf("keys: wrap signing key: %w", err)
	}
	keyID := KeyID(pub)
	ks := KeyStoreV1{
		Version:      keyStoreVersion,
		PubkeyHex:    hex.EncodeToString(pub),
		KeyIDHex:     hex.EncodeToString(keyID[:]),
		WrapAlg:      wrapAlgAES256KW,
		WrappedSKHex: hex.EncodeToString(wrapped),
	}
	b, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o600)
}

// ImportWrapped reads a KeyStoreV1 document and unwraps its signing key
// under kek, verifying the embedded key_id matches SHA3-256(pubkey).
func ImportWrapped(path string, kek []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided keystore path
	if err != nil {
		return nil, nil, err
	}
	var ks KeyStoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, nil, fmt.Errorf("keys: decode keystore: %w", err)
	}
	if ks.Version != keyStoreVersion {
		return nil, nil, fmt.Errorf("keys: unsupported keystore version %q", ks.Version)
	}
	if !strings.EqualFold(ks.WrapAlg, wrapAlgAES256KW) {
		return nil, nil, fmt.Errorf("keys: unsupported wrap_alg %q", ks.WrapAlg)
	}
	pub, err := hex.DecodeString(ks.PubkeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("keys: pubkey_hex: %w", err)
	}
	wrapped, err := hex.DecodeString(ks.WrappedSKHex)
	if err != nil {
		return nil, nil, fmt.Errorf("keys: wrapped_sk_hex: %w", err)
	}
	sk, err := UnwrapKey(kek, wrapped)
	if err != nil {
		return nil, nil, err
	}
	keyID := KeyID(pub)
	if !strings.EqualFold(ks.KeyIDHex, hex.EncodeToString(keyID[:])) {
		return nil, nil, fmt.Errorf("keys: keystore key_id mismatch: embedded=%s computed=%x", ks.KeyIDHex, keyID)
	}
	return ed25519.PublicKey(pub), ed25519.PrivateKey(sk), nil
}
