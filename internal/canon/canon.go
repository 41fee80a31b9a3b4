// Package canon implements the deterministic serialization used as input
// to every hash and signature in the system: epoch hashes, the document
// hash, and the signature over it. Any two implementations that disagree
// on this encoding will disagree on every hash downstream of it, so the
// rules here are fixed once and never varied by caller preference.
//
// Encoding rules:
//   - Objects serialize their keys in the order the caller supplies them
//     (via Object/Pair), never alphabetized — callers are expected to
//     supply the key order the record layout specifies.
//   - Generic Go maps (map[string]any), used for delta "attributes" blobs
//     whose shape is not fixed by the record layout, fall back to
//     alphabetical key order for determinism.
//   - Strings use standard JSON escaping.
//   - Numbers: integers render in plain decimal, never exponent form;
//     floats render via the shortest round-tripping decimal with no
//     trailing fractional zeros (strconv's shortest-float algorithm).
//   - No whitespace anywhere in the output.
package canon

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Pair is one key/value entry of an Object, in caller-specified order.
type Pair struct {
	Key   string
	Value any
}

// P constructs a Pair; a small convenience for building Object literals.
func P(key string, value any) Pair {
	return Pair{Key: key, Value: value}
}

// Object is an ordered key/value map. Unlike a Go map, iteration order is
// exactly insertion order, which is what canonical hashing requires.
type Object []Pair

// Marshal renders v as a canonical string per this package's encoding
// rules. Supported value kinds: nil, bool, string, int, int64, uint64,
// float64, Object, []any, and map[string]any (sorted by key).
func Marshal(v any) (string, error) {
	var sb strings.Builder
	if err := encode(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Hash returns SHA-256 of the canonical UTF-8 encoding of v.
func Hash(v any) ([32]byte, error) {
	s, err := Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256([]byte(s)), nil
}

// HashHex is Hash, hex-encoded.
func HashHex(v any) (string, error) {
	sum, err := Hash(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sum[:]), nil
}

func encode(sb *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case string:
		encodeString(sb, t)
	case int:
		sb.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(t, 10))
	case float64:
		if err := encodeFloat(sb, t); err != nil {
			return err
		}
	case Object:
		return encodeObject(sb, t)
	case []any:
		return encodeArray(sb, t)
	case map[string]any:
		return encodeSortedMap(sb, t)
	default:
		return fmt.Errorf("canon: unsupported value type %T", v)
	}
	return nil
}

func encodeObject(sb *strings.Builder, obj Object) error {
	sb.WriteByte('{')
	for i, pair := range obj {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeString(sb, pair.Key)
		sb.WriteByte(':')
		if err := encode(sb, pair.Value); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func encodeSortedMap(sb *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeString(sb, k)
		sb.WriteByte(':')
		if err := encode(sb, m[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func encodeArray(sb *strings.Builder, arr []any) error {
	sb.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encode(sb, elem); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func encodeFloat(sb *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canon: cannot encode non-finite float %v", f)
	}
	sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}
