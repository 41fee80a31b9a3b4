// Package envelope assembles the signed document bundle: the editor's
// content, the sealed epoch chain, and the metadata block binding both
// together with a content hash and an ECDSA signature.
//
// Key handling here follows the shape of the daemon's Ed25519 signer
// (load-from-PEM, sign/verify free functions) but over ECDSA P-384 with
// SHA-384, per the keypair the key-store collaborator supplies.
package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
)

// Errors returned by key-handling operations.
var (
	ErrInvalidKeyFormat = errors.New("envelope: invalid key format")
	ErrUnsupportedCurve = errors.New("envelope: unsupported curve (expected P-384)")
)

// GeneratePrivateKey creates a fresh ECDSA P-384 keypair.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
}

// SavePrivateKey writes priv as a PEM-encoded PKCS#8 private key.
func SavePrivateKey(path string, priv *ecdsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("envelope: marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// LoadPrivateKey reads a PEM-encoded ECDSA P-384 private key (PKCS#8 or
// SEC1 "EC PRIVATE KEY") from path.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("envelope: read key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidKeyFormat
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return checkCurve(key)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: parse key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedCurve, parsed)
	}
	return checkCurve(key)
}

func checkCurve(key *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if key.Curve != elliptic.P384() {
		return nil, ErrUnsupportedCurve
	}
	return key, nil
}

// JWK is a minimal JSON Web Key for an EC public key (RFC 7518 §6.2),
// exported in the shape the key-store collaborator hands back to the
// editor for display/export. No JOSE library is pulled in for this: a
// JWK for a single known curve is four base64url fields, not worth a
// dependency.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

const p384CoordSize = 48 // ceil(384/8)

// PublicKeyToJWK exports pub as a JWK.
func PublicKeyToJWK(pub *ecdsa.PublicKey) JWK {
	return JWK{
		Kty: "EC",
		Crv: "P-384",
		X:   base64.RawURLEncoding.EncodeToString(fixedWidth(pub.X, p384CoordSize)),
		Y:   base64.RawURLEncoding.EncodeToString(fixedWidth(pub.Y, p384CoordSize)),
	}
}

// JWKToPublicKey imports an ECDSA P-384 public key from a JWK.
func JWKToPublicKey(jwk JWK) (*ecdsa.PublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-384" {
		return nil, ErrUnsupportedCurve
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("%w: x: %v", ErrInvalidKeyFormat, err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: y: %v", ErrInvalidKeyFormat, err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P384(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func fixedWidth(n *big.Int, width int) []byte {
	raw := n.Bytes()
	if len(raw) >= width {
		return raw[len(raw)-width:]
	}
	buf := make([]byte, width)
	copy(buf[width-len(raw):], raw)
	return buf
}
