package schemavalidation

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestEnvelopeFixtureValidatesAgainstSchema(t *testing.T) {
	root := repoRoot(t)
	schemaPath := filepath.Join(root, "docs", "schema", "envelope-v1.schema.json")
	fixturePath := filepath.Join(root, "docs", "spec", "fixtures", "envelope-v1.json")

	v, err := Compile(schemaPath)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	if err := v.ValidateBytes(raw); err != nil {
		t.Fatalf("expected fixture to validate, got: %v", err)
	}
}

func TestValidateBytesRejectsMissingRequiredField(t *testing.T) {
	root := repoRoot(t)
	schemaPath := filepath.Join(root, "docs", "schema", "envelope-v1.schema.json")

	v, err := Compile(schemaPath)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	missingTitle := []byte(`{
		"version": "1.0",
		"timestamp": "2026-01-15T09:00:00Z",
		"content": {"richTextRepresentation": "", "deltaSnapshot": []},
		"proofChain": [{"epochNumber": 0, "deltas": [], "iterations": 0, "epochDuration": 0, "timestamp": "2026-01-15T09:00:00Z", "hash": "0000000000000000000000000000000000000000000000000000000000000000"}],
		"metadata": {"epochCount": 1, "genesisHash": "0000000000000000000000000000000000000000000000000000000000000000", "latestHash": "0000000000000000000000000000000000000000000000000000000000000000", "totalDuration": 0, "documentHash": "0000000000000000000000000000000000000000000000000000000000000000"}
	}`)

	if err := v.ValidateBytes(missingTitle); err == nil {
		t.Fatal("expected validation error for missing title")
	}
}

func TestValidateBytesRejectsInvalidJSON(t *testing.T) {
	root := repoRoot(t)
	schemaPath := filepath.Join(root, "docs", "schema", "envelope-v1.schema.json")

	v, err := Compile(schemaPath)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if err := v.ValidateBytes([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to resolve caller path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
