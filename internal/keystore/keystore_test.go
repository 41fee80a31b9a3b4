package keystore

import (
	"bytes"
	"testing"
)

func testKey(fill byte) []byte {
	key := make([]byte, BaseKeySize)
	for i := range key {
		key[i] = fill
	}
	return key
}

func TestSealAndUnsealRoundTrip(t *testing.T) {
	key := testKey(0x42)
	plaintext := []byte(`{"title":"Doc"}`)

	sealed, err := Seal(key, "Doc", "2026-01-15T09:00:00Z", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Unseal(key, sealed)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestSealLeavesMetadataPlaintext(t *testing.T) {
	key := testKey(0x07)
	sealed, err := Seal(key, "My Document", "2026-01-15T09:00:00Z", []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed.Metadata.Title != "My Document" {
		t.Fatalf("expected plaintext title, got %q", sealed.Metadata.Title)
	}
	if sealed.Metadata.Timestamp != "2026-01-15T09:00:00Z" {
		t.Fatalf("expected plaintext timestamp, got %q", sealed.Metadata.Timestamp)
	}

	raw, err := MarshalSealed(sealed)
	if err != nil {
		t.Fatalf("MarshalSealed: %v", err)
	}
	if !bytes.Contains(raw, []byte("My Document")) {
		t.Fatalf("expected title to appear in plaintext in the wire form, got %s", raw)
	}
}

func TestSealRejectsWrongKeySize(t *testing.T) {
	if _, err := Seal([]byte("too short"), "t", "ts", []byte("data")); err != ErrInvalidKeySize {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestUnsealFailsWithWrongKey(t *testing.T) {
	sealed, err := Seal(testKey(0x01), "t", "ts", []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Unseal(testKey(0x02), sealed); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestUnsealFailsWithTamperedPayload(t *testing.T) {
	key := testKey(0x03)
	sealed, err := Seal(key, "t", "ts", []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed.Payload.Content[0] ^= 0xFF

	if _, err := Unseal(key, sealed); err == nil {
		t.Fatal("expected tampered payload to fail to unseal")
	}
}

func TestMarshalAndParseSealedRoundTrip(t *testing.T) {
	key := testKey(0x04)
	sealed, err := Seal(key, "Doc", "2026-01-15T09:00:00Z", []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	raw, err := MarshalSealed(sealed)
	if err != nil {
		t.Fatalf("MarshalSealed: %v", err)
	}
	parsed, err := ParseSealed(raw)
	if err != nil {
		t.Fatalf("ParseSealed: %v", err)
	}

	plaintext, err := Unseal(key, parsed)
	if err != nil {
		t.Fatalf("Unseal after round trip: %v", err)
	}
	if string(plaintext) != "payload" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
	if parsed.Metadata.Title != "Doc" {
		t.Fatalf("expected title to survive the round trip, got %q", parsed.Metadata.Title)
	}
}

func TestSealProducesDistinctNoncesEachCall(t *testing.T) {
	key := testKey(0x05)
	first, err := Seal(key, "t", "ts", []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	second, err := Seal(key, "t", "ts", []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(first.Payload.IV, second.Payload.IV) {
		t.Fatal("expected distinct nonces across Seal calls")
	}
	if bytes.Equal(first.Payload.Content, second.Payload.Content) {
		t.Fatal("expected distinct ciphertexts across Seal calls")
	}
}

func TestParseSealedRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseSealed([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
