// Package keystore wraps a document envelope for storage at rest: a
// 32-byte base key (however the caller obtained it — a passphrase KDF,
// an OS keychain, an HSM-backed secret) is stretched into an AES-256 key
// via HKDF, and the envelope's bytes are sealed with AES-256-GCM. This
// is the symmetric half of the key-store collaborator; the asymmetric
// half (document signing) lives in internal/envelope.
//
// Grounded on the daemon's internal/security package, which derives keys
// with HKDF-SHA-256 under a domain-separation label; this package keeps
// that shape and steps the hash up to SHA-384 to match the envelope
// signer's digest.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// BaseKeySize is the required length of the caller-supplied base key.
const BaseKeySize = 32

// derivedKeyInfo domain-separates the HKDF output from any other use of
// the same base key.
const derivedKeyInfo = "bitquill:at-rest-v1"

const nonceSize = 12

// Errors returned by this package.
var (
	ErrInvalidKeySize   = errors.New("keystore: base key must be 32 bytes")
	ErrInvalidPayload   = errors.New("keystore: malformed sealed payload")
	ErrDecryptionFailed = errors.New("keystore: decryption failed (wrong key or tampered payload)")
)

// Metadata is left plaintext so a sealed save can be browsed (by title
// and timestamp) without the base key.
type Metadata struct {
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
}

// Payload is the encrypted body: the GCM nonce and the sealed bytes.
// Both fields marshal to base64 automatically, since encoding/json
// renders a []byte that way.
type Payload struct {
	IV      []byte `json:"iv"`
	Content []byte `json:"content"`
}

// Sealed is the on-disk wrapper around one encrypted save.
type Sealed struct {
	Metadata Metadata `json:"metadata"`
	Payload  Payload  `json:"payload"`
}

// deriveKey stretches a 32-byte base key into a 32-byte AES-256 key via
// HKDF-SHA-384 under a fixed domain-separation label.
func deriveKey(baseKey []byte) ([]byte, error) {
	if len(baseKey) != BaseKeySize {
		return nil, ErrInvalidKeySize
	}
	reader := hkdf.New(sha512.New384, baseKey, nil, []byte(derivedKeyInfo))
	derived := make([]byte, BaseKeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("keystore: deriving key: %w", err)
	}
	return derived, nil
}

// Seal encrypts plaintext (typically a marshaled envelope) with
// AES-256-GCM under a key derived from baseKey, and returns the
// {metadata: {title, timestamp}, payload: {iv, content}} wrapper. title
// and timestamp are stored in the clear so a sealed save can be browsed
// without the base key.
func Seal(baseKey []byte, title, timestamp string, plaintext []byte) (*Sealed, error) {
	key, err := deriveKey(baseKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: building GCM: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("keystore: generating nonce: %w", err)
	}

	content := gcm.Seal(nil, iv, plaintext, nil)

	return &Sealed{
		Metadata: Metadata{Title: title, Timestamp: timestamp},
		Payload:  Payload{IV: iv, Content: content},
	}, nil
}

// Unseal reverses Seal, returning the original plaintext. Fails closed
// with no partial output: a missing or wrong-size nonce or empty content
// returns ErrInvalidPayload, a base key of the wrong size returns
// ErrInvalidKeySize, and a GCM authentication failure (wrong key or
// tampered payload) returns ErrDecryptionFailed.
func Unseal(baseKey []byte, sealed *Sealed) ([]byte, error) {
	if sealed == nil || len(sealed.Payload.IV) == 0 || len(sealed.Payload.Content) == 0 {
		return nil, ErrInvalidPayload
	}

	key, err := deriveKey(baseKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: building GCM: %w", err)
	}
	if len(sealed.Payload.IV) != gcm.NonceSize() {
		return nil, ErrInvalidPayload
	}

	plaintext, err := gcm.Open(nil, sealed.Payload.IV, sealed.Payload.Content, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// MarshalSealed renders a Sealed value as its JSON wire form.
func MarshalSealed(sealed *Sealed) ([]byte, error) {
	return json.Marshal(sealed)
}

// ParseSealed parses a Sealed value from its JSON wire form.
func ParseSealed(raw []byte) (*Sealed, error) {
	var sealed Sealed
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &sealed, nil
}
