package entry

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
)

// ed25519KeyPrefix is prepended to the base64-encoded raw public key
// bytes in the wire format used for device and delegate keys.
const ed25519KeyPrefix = "ed25519:"

// EncodePublicKey renders pub as "ed25519:base64(raw-32-bytes)".
func EncodePublicKey(pub ed25519.PublicKey) string {
	return ed25519KeyPrefix + base64.StdEncoding.EncodeToString(pub)
}

// DecodePublicKey parses the "ed25519:base64(raw-32-bytes)" wire format.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(s, ed25519KeyPrefix) {
		return nil, fmt.Errorf("entry: public key missing %q prefix", ed25519KeyPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, ed25519KeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("entry: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("entry: public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeSignature renders sig as base64(raw-64-bytes).
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

// DecodeSignature parses a base64(raw-64-bytes) signature.
func DecodeSignature(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("entry: decode signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("entry: signature has %d bytes, want %d", len(raw), ed25519.SignatureSize)
	}
	return raw, nil
}
