// Package store is the CLI-side convenience archive for signed document
// envelopes. It is not part of the cryptographic core: the verifier and
// analyzer operate on an in-memory envelope value regardless of where it
// came from, and a missing or corrupt store file never invalidates a
// chain — it just means the CLI has nothing to list.
//
// Grounded on the daemon's own SQLite event store: a schema constant
// applied with CREATE TABLE IF NOT EXISTS, a Store wrapping *sql.DB, and
// typed accessors that translate sql.ErrNoRows into a nil result.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ciphernom/bitquill/internal/envelope"
)

// Schema for the document archive.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    title           TEXT NOT NULL,
    document_hash   TEXT NOT NULL UNIQUE,
    genesis_hash    TEXT NOT NULL,
    latest_hash     TEXT NOT NULL,
    epoch_count     INTEGER NOT NULL,
    total_duration  REAL NOT NULL,
    saved_at        INTEGER NOT NULL,
    envelope_json   BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_saved_at ON documents(saved_at);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(document_hash);
`

// Store wraps the SQLite document archive.
type Store struct {
	db *sql.DB
}

// Record is a lightweight summary row, for listing history without
// deserializing every envelope.
type Record struct {
	ID            int64
	Title         string
	DocumentHash  string
	GenesisHash   string
	LatestHash    string
	EpochCount    int
	TotalDuration float64
	SavedAt       time.Time
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists a signed envelope and returns its row ID. Saving the same
// document hash twice replaces the previous row (for example after the
// envelope was re-signed, since the signature and public key are not part
// of the document hash). An envelope extended with later epochs has a new
// document hash and is saved as a new row.
func (s *Store) Save(env *envelope.Envelope) (int64, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("store: marshal envelope: %w", err)
	}

	savedAt := time.Now().UTC().Unix()
	result, err := s.db.Exec(`
		INSERT INTO documents (title, document_hash, genesis_hash, latest_hash, epoch_count, total_duration, saved_at, envelope_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_hash) DO UPDATE SET
			title = excluded.title,
			genesis_hash = excluded.genesis_hash,
			latest_hash = excluded.latest_hash,
			epoch_count = excluded.epoch_count,
			total_duration = excluded.total_duration,
			saved_at = excluded.saved_at,
			envelope_json = excluded.envelope_json`,
		env.Title, env.Metadata.DocumentHash, env.Metadata.GenesisHash, env.Metadata.LatestHash,
		env.Metadata.EpochCount, env.Metadata.TotalDuration, savedAt, raw,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: get last insert id: %w", err)
	}
	if id == 0 {
		row, err := s.findByHash(env.Metadata.DocumentHash)
		if err != nil {
			return 0, err
		}
		if row != nil {
			return row.ID, nil
		}
	}
	return id, nil
}

// Load retrieves a full envelope by row ID.
func (s *Store) Load(id int64) (*envelope.Envelope, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT envelope_json FROM documents WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load document: %w", err)
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("store: unmarshal envelope: %w", err)
	}
	return &env, nil
}

// LoadByDocumentHash retrieves a full envelope by its document hash.
func (s *Store) LoadByDocumentHash(hash string) (*envelope.Envelope, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT envelope_json FROM documents WHERE document_hash = ?`, hash).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load document by hash: %w", err)
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("store: unmarshal envelope: %w", err)
	}
	return &env, nil
}

// History lists the most recently saved documents, newest first.
func (s *Store) History(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, title, document_hash, genesis_hash, latest_hash, epoch_count, total_duration, saved_at
		FROM documents
		ORDER BY saved_at DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var savedAt int64
		if err := rows.Scan(&r.ID, &r.Title, &r.DocumentHash, &r.GenesisHash, &r.LatestHash, &r.EpochCount, &r.TotalDuration, &savedAt); err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		r.SavedAt = time.Unix(savedAt, 0).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate history: %w", err)
	}

	return records, nil
}

func (s *Store) findByHash(hash string) (*Record, error) {
	var r Record
	var savedAt int64
	err := s.db.QueryRow(`
		SELECT id, title, document_hash, genesis_hash, latest_hash, epoch_count, total_duration, saved_at
		FROM documents WHERE document_hash = ?`, hash,
	).Scan(&r.ID, &r.Title, &r.DocumentHash, &r.GenesisHash, &r.LatestHash, &r.EpochCount, &r.TotalDuration, &savedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find by hash: %w", err)
	}
	r.SavedAt = time.Unix(savedAt, 0).UTC()
	return &r, nil
}
