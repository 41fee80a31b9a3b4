package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ciphernom/bitquill/internal/canon"
	"github.com/ciphernom/bitquill/internal/epoch"
)

// Errors returned by this package.
var (
	ErrEmptyChain        = errors.New("envelope: chain has no epochs")
	ErrMissingSignature  = errors.New("envelope: missing signature, public key, or document hash")
	ErrDocumentHashEmpty = errors.New("envelope: cannot sign an envelope with no document hash")
)

// Content holds the editor's current state: the rendered text and the
// opaque snapshot of deltas the editor would need to reconstruct it.
type Content struct {
	RichTextRepresentation string          `json:"richTextRepresentation"`
	DeltaSnapshot          json.RawMessage `json:"deltaSnapshot"`
}

// Metadata binds the chain, the content hash, and the signature together.
type Metadata struct {
	EpochCount    int     `json:"epochCount"`
	GenesisHash   string  `json:"genesisHash"`
	LatestHash    string  `json:"latestHash"`
	TotalDuration float64 `json:"totalDuration"`
	DocumentHash  string  `json:"documentHash"`
	PublicKey     *JWK    `json:"publicKey"`
	Signature     []byte  `json:"signature"`
}

// Envelope is the full portable document bundle.
type Envelope struct {
	Title      string         `json:"title"`
	Version    string         `json:"version"`
	Timestamp  string         `json:"timestamp"`
	Content    Content        `json:"content"`
	ProofChain []*epoch.Epoch `json:"proofChain"`
	Metadata   Metadata       `json:"metadata"`
}

// FormatVersion is the document format version this package writes.
const FormatVersion = "1.0"

// Build assembles an envelope from the editor's current title/content and
// the sealed chain, and computes its document hash. The returned
// envelope has no signature or public key yet; call Sign to add one.
func Build(title string, content Content, timestamp string, chain *epoch.Chain) (*Envelope, error) {
	if chain == nil || len(chain.Epochs) == 0 {
		return nil, ErrEmptyChain
	}

	env := &Envelope{
		Title:      title,
		Version:    FormatVersion,
		Timestamp:  timestamp,
		Content:    content,
		ProofChain: chain.Epochs,
		Metadata: Metadata{
			EpochCount:    len(chain.Epochs),
			GenesisHash:   chain.Epochs[0].Hash,
			LatestHash:    chain.Epochs[len(chain.Epochs)-1].Hash,
			TotalDuration: chain.TotalDuration(),
		},
	}

	hash, err := env.documentHash()
	if err != nil {
		return nil, fmt.Errorf("envelope: computing document hash: %w", err)
	}
	env.Metadata.DocumentHash = hash
	return env, nil
}

// canonical renders the envelope for hashing, with documentHash,
// signature, and publicKey forced to null: those three fields are what
// the hash binds everything else to, so they cannot be inputs to
// themselves.
func (e *Envelope) canonical() canon.Object {
	proofChain := make([]any, len(e.ProofChain))
	for i, ep := range e.ProofChain {
		proofChain[i] = ep.Canonical()
	}

	metadata := canon.Object{
		canon.P("epochCount", int64(e.Metadata.EpochCount)),
		canon.P("genesisHash", e.Metadata.GenesisHash),
		canon.P("latestHash", e.Metadata.LatestHash),
		canon.P("totalDuration", e.Metadata.TotalDuration),
		canon.P("documentHash", nil),
		canon.P("publicKey", nil),
		canon.P("signature", nil),
	}

	return canon.Object{
		canon.P("title", e.Title),
		canon.P("version", e.Version),
		canon.P("timestamp", e.Timestamp),
		canon.P("content", canon.Object{
			canon.P("richTextRepresentation", e.Content.RichTextRepresentation),
			canon.P("deltaSnapshot", rawMessageToAny(e.Content.DeltaSnapshot)),
		}),
		canon.P("proofChain", proofChain),
		canon.P("metadata", metadata),
	}
}

func (e *Envelope) documentHash() (string, error) {
	return canon.HashHex(e.canonical())
}

// rawMessageToAny decodes a json.RawMessage into a generic value suitable
// for canon.Marshal (map[string]any / []any / primitives), so that the
// delta snapshot participates in the document hash like everything else.
func rawMessageToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// signatureSize is the raw r||s encoding width for a P-384 signature:
// two 48-byte, fixed-width, big-endian coordinates.
const signatureSize = 2 * p384CoordSize

// Sign signs the envelope's document hash (its hex string, as UTF-8
// bytes) with ECDSA P-384/SHA-384, and writes the signature — the raw
// r||s encoding, not ASN.1 DER, so that a verifier outside this module
// can parse it as two fixed-width big-endian integers — and the
// exported public key into the metadata block.
func Sign(env *Envelope, priv *ecdsa.PrivateKey) error {
	if env.Metadata.DocumentHash == "" {
		return ErrDocumentHashEmpty
	}
	if priv.Curve != elliptic.P384() {
		return ErrUnsupportedCurve
	}

	digest := sha512.Sum384([]byte(env.Metadata.DocumentHash))
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return fmt.Errorf("envelope: sign: %w", err)
	}

	sig := make([]byte, 0, signatureSize)
	sig = append(sig, fixedWidth(r, p384CoordSize)...)
	sig = append(sig, fixedWidth(s, p384CoordSize)...)

	jwk := PublicKeyToJWK(&priv.PublicKey)
	env.Metadata.Signature = sig
	env.Metadata.PublicKey = &jwk
	return nil
}

// VerifySignature recomputes the document hash from the envelope's
// current content and checks both that it matches the stored
// documentHash (catching any tamper that wasn't accompanied by a
// matching re-hash) and that the stored raw r||s signature verifies
// over it under the stored public key.
func VerifySignature(env *Envelope) bool {
	if env.Metadata.PublicKey == nil || len(env.Metadata.Signature) != signatureSize || env.Metadata.DocumentHash == "" {
		return false
	}

	expected, err := env.documentHash()
	if err != nil || expected != env.Metadata.DocumentHash {
		return false
	}

	pub, err := JWKToPublicKey(*env.Metadata.PublicKey)
	if err != nil {
		return false
	}

	r := new(big.Int).SetBytes(env.Metadata.Signature[:p384CoordSize])
	s := new(big.Int).SetBytes(env.Metadata.Signature[p384CoordSize:])

	digest := sha512.Sum384([]byte(env.Metadata.DocumentHash))
	return ecdsa.Verify(pub, digest[:], r, s)
}
