package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ciphernom/bitquill/internal/delta"
	"github.com/ciphernom/bitquill/internal/envelope"
	"github.com/ciphernom/bitquill/internal/epoch"
	"github.com/ciphernom/bitquill/internal/vdf"
)

const testModulusHex = "f3d8c1f7a5e29b6d4c7a1e8f9b3d6c5a7e9f1b3d5c7a9e1f3b5d7c9a1e3f5b7d9"

func buildTestEnvelope(t *testing.T, title string) *envelope.Envelope {
	t.Helper()
	computer, err := vdf.New(testModulusHex)
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	chain := epoch.Genesis()
	proof, err := computer.ComputeProof(chain.Epochs[0].Hash, 10, nil)
	if err != nil {
		t.Fatalf("ComputeProof: %v", err)
	}
	text := "hello"
	if _, err := chain.Append([]delta.Group{{Ops: []delta.Op{{Insert: &text}}}}, proof, 10, 10*time.Millisecond); err != nil {
		t.Fatalf("Append: %v", err)
	}

	content := envelope.Content{RichTextRepresentation: "hello", DeltaSnapshot: json.RawMessage(`[]`)}
	env, err := envelope.Build(title, content, time.Now().UTC().Format(time.RFC3339), chain)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return env
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "documents.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	env := buildTestEnvelope(t, "My Document")

	id, err := s.Save(env)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected loaded envelope, got nil")
	}
	if loaded.Title != env.Title || loaded.Metadata.DocumentHash != env.Metadata.DocumentHash {
		t.Fatalf("loaded envelope does not match saved: %+v vs %+v", loaded.Metadata, env.Metadata)
	}
}

func TestLoadByDocumentHash(t *testing.T) {
	s := openTestStore(t)
	env := buildTestEnvelope(t, "Doc")
	if _, err := s.Save(env); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.LoadByDocumentHash(env.Metadata.DocumentHash)
	if err != nil {
		t.Fatalf("LoadByDocumentHash: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected envelope, got nil")
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	env, err := s.Load(999)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env != nil {
		t.Fatal("expected nil for missing document")
	}
}

func TestHistoryOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	for _, title := range []string{"First", "Second", "Third"} {
		env := buildTestEnvelope(t, title)
		if _, err := s.Save(env); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	records, err := s.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Title != "Third" || records[2].Title != "First" {
		t.Fatalf("expected newest first (Third ... First), got %q ... %q", records[0].Title, records[2].Title)
	}
}

func TestSaveReplacesOnSameDocumentHash(t *testing.T) {
	s := openTestStore(t)
	env := buildTestEnvelope(t, "Original Title")

	id1, err := s.Save(env)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	env.Title = "Renamed Title"
	id2, err := s.Save(env)
	if err != nil {
		t.Fatalf("Save (replace): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same row ID on replace, got %d and %d", id1, id2)
	}

	loaded, err := s.Load(id1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title != "Renamed Title" {
		t.Fatalf("expected updated title, got %q", loaded.Title)
	}
}
