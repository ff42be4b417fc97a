package haystack

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// KeySize is the length of an advertisement public key: the X coordinate of
// a P-224 point.
const KeySize = 28

// PublicKey is the advertisement key a tracked device broadcasts. It is
// treated as opaque bytes.
type PublicKey [KeySize]byte

// ParsePublicKey copies b into a PublicKey. Any length other than KeySize is
// rejected with a *KeyLengthError; the key is never truncated or padded.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var key PublicKey
	if len(b) != KeySize {
		return key, &KeyLengthError{Got: len(b)}
	}
	copy(key[:], b)
	return key, nil
}

// DecodePublicKey parses a key in standard base64, the format OpenHaystack
// exports advertisement keys in, or in hex.
func DecodePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return ParsePublicKey(b)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return PublicKey{}, errors.Wrap(ErrKeyUnavailable, "neither hex nor base64")
	}
	return ParsePublicKey(b)
}

// String returns the key in base64.
func (k PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// HashedKey returns the base64 SHA-256 of the key, which is what location
// reports are indexed by.
func (k PublicKey) HashedKey() string {
	sum := sha256.Sum256(k[:])
	return base64.StdEncoding.EncodeToString(sum[:])
}
