// Package bigint provides the modular-arithmetic primitives the VDF engine
// is built on: parsing/serializing big integers to the spec's lowercase-hex
// wire format, and modular exponentiation over a fixed-width RSA modulus.
//
// Side-channel resistance is explicitly out of scope here (the VDF is
// intentionally slow, and constant-time squaring would only make it
// slower for no security benefit); this package is a thin, readable
// wrapper around math/big rather than a constant-time bignum library.
package bigint

import (
	"errors"
	"math/big"
	"strings"
)

// ErrInvalidHex is returned when a string is not valid lowercase hex,
// or uses a disallowed leading-zero encoding.
var ErrInvalidHex = errors.New("bigint: invalid hex encoding")

// ErrZeroModulus is returned when an operation is attempted against a
// zero or nil modulus.
var ErrZeroModulus = errors.New("bigint: modulus must not be zero")

// FromHex parses a lowercase hex string (no "0x" prefix) into a big.Int.
// The canonical encoding has no leading zeros except for the literal value
// zero, which must be encoded as a single "0".
func FromHex(s string) (*big.Int, error) {
	if s == "" {
		return nil, ErrInvalidHex
	}
	if s != "0" && strings.HasPrefix(s, "0") {
		return nil, ErrInvalidHex
	}
	for _, r := range s {
		isHexDigit := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
		if !isHexDigit {
			return nil, ErrInvalidHex
		}
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, ErrInvalidHex
	}
	return n, nil
}

// ToHex serializes a non-negative big.Int to lowercase hex without a
// leading zero, except that zero itself serializes to "0".
func ToHex(n *big.Int) string {
	if n == nil || n.Sign() == 0 {
		return "0"
	}
	return n.Text(16)
}

// ModExp computes base^exp mod modulus. The exponent may be arbitrarily
// large (it is itself a big.Int, not limited to a machine word) so that
// callers can express exponents like 2^T for very large T without
// materializing 2^T.
func ModExp(base, exp, modulus *big.Int) (*big.Int, error) {
	if modulus == nil || modulus.Sign() == 0 {
		return nil, ErrZeroModulus
	}
	return new(big.Int).Exp(base, exp, modulus), nil
}

// ModExpUint64 computes base^(2^bits... ) is NOT what this does; it
// computes base^exp mod modulus for a uint64 exponent, which covers the
// VDF's T parameter (iterations, a 64-bit count).
func ModExpUint64(base *big.Int, exp uint64, modulus *big.Int) (*big.Int, error) {
	return ModExp(base, new(big.Int).SetUint64(exp), modulus)
}

// FixedWidthBytes serializes n as a big-endian buffer of exactly width
// bytes, left-padded with zeros. Used for HashToPrime's fixed-width
// domain-separated encoding of (x, y).
func FixedWidthBytes(n *big.Int, width int) []byte {
	raw := n.Bytes()
	if len(raw) >= width {
		return raw[len(raw)-width:]
	}
	buf := make([]byte, width)
	copy(buf[width-len(raw):], raw)
	return buf
}
