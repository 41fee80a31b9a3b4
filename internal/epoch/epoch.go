// Package epoch implements the linear hash-chain of sealed editing
// intervals. Each link's VDF is computed over the previous link's hash,
// and the chain is append-only: once an epoch is hashed, none of its
// fields may change.
//
// This is the epoch-chain analogue of the daemon's earlier checkpoint
// chain — genesis, append, verify, linkage by previousHash — but sealed
// by a Wesolowski VDF proof over the epoch's own hash chain rather than a
// generic commit hash, and timed by calibration rather than by
// wall-clock commit intervals.
package epoch

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ciphernom/bitquill/internal/bigint"
	"github.com/ciphernom/bitquill/internal/canon"
	"github.com/ciphernom/bitquill/internal/delta"
	"github.com/ciphernom/bitquill/internal/vdf"
)

// ZeroHash is the 64-hex-zero genesis hash.
var ZeroHash = strings.Repeat("0", 64)

// Errors returned by this package.
var (
	ErrEmptyDeltas = errors.New("epoch: cannot append an epoch with no deltas")
	ErrNotGenesis  = errors.New("epoch: chain does not start with a proper genesis")
	ErrChainEmpty  = errors.New("epoch: chain has no epochs")
)

// Epoch is one sealed interval of the editing chain.
type Epoch struct {
	EpochNumber   uint64        `json:"epochNumber"`
	PreviousHash  string        `json:"previousHash,omitempty"`
	Deltas        []delta.Group `json:"deltas"`
	VDFProof      *vdf.Proof    `json:"vdfProof,omitempty"`
	Iterations    uint64        `json:"iterations"`
	EpochDuration float64       `json:"epochDuration"`
	Timestamp     string        `json:"timestamp"`
	Hash          string        `json:"hash"`
}

// Chain is the in-memory linear hash-chain of epochs for a single
// document's editing session.
type Chain struct {
	Epochs []*Epoch
}

// Genesis resets the chain to a single genesis epoch: number 0, the
// all-zero hash, no deltas, no VDF proof.
func Genesis() *Chain {
	return &Chain{
		Epochs: []*Epoch{
			{
				EpochNumber: 0,
				Deltas:      []delta.Group{},
				Hash:        ZeroHash,
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

// CurrentTip returns the most recently sealed epoch.
func (c *Chain) CurrentTip() (*Epoch, error) {
	if len(c.Epochs) == 0 {
		return nil, ErrChainEmpty
	}
	return c.Epochs[len(c.Epochs)-1], nil
}

// hashInput builds the canonical value hashed to produce an epoch's hash:
// epochNumber, previousHash, deltas, vdfY, iterations — in that order.
// pi, l, r, epochDuration, and timestamp are deliberately excluded; they
// are auxiliary to verification or purely cosmetic.
func hashInput(epochNumber uint64, previousHash string, deltas []delta.Group, vdfY string, iterations uint64) canon.Object {
	return canon.Object{
		canon.P("epochNumber", int64(epochNumber)),
		canon.P("previousHash", previousHash),
		canon.P("deltas", delta.CanonicalGroups(deltas)),
		canon.P("vdfY", vdfY),
		canon.P("iterations", int64(iterations)),
	}
}

// ComputeHash derives the hash this epoch's fields are expected to produce.
func (e *Epoch) ComputeHash() (string, error) {
	yHex := ""
	if e.VDFProof != nil {
		yHex = bigint.ToHex(e.VDFProof.Y)
	}
	h, err := canon.HashHex(hashInput(e.EpochNumber, e.PreviousHash, e.Deltas, yHex, e.Iterations))
	if err != nil {
		return "", err
	}
	return h, nil
}

// Canonical renders the full epoch (including auxiliary fields excluded
// from its own hash) as an ordered object, for embedding in the document
// envelope's canonical hash input.
func (e *Epoch) Canonical() canon.Object {
	var vdfProof any
	if e.VDFProof != nil {
		vdfProof = e.VDFProof.Canonical()
	}
	return canon.Object{
		canon.P("epochNumber", int64(e.EpochNumber)),
		canon.P("previousHash", e.PreviousHash),
		canon.P("deltas", delta.CanonicalGroups(e.Deltas)),
		canon.P("vdfProof", vdfProof),
		canon.P("iterations", int64(e.Iterations)),
		canon.P("epochDuration", e.EpochDuration),
		canon.P("timestamp", e.Timestamp),
		canon.P("hash", e.Hash),
	}
}

// Append constructs the next epoch from a snapshot of buffered deltas and
// a completed VDF proof computed over the current tip's hash, seals it
// with its hash, and appends it to the chain. Rejects empty delta
// snapshots: no-op epochs are never sealed.
func (c *Chain) Append(deltas []delta.Group, proof *vdf.Proof, iterations uint64, duration time.Duration) (*Epoch, error) {
	if len(deltas) == 0 {
		return nil, ErrEmptyDeltas
	}
	tip, err := c.CurrentTip()
	if err != nil {
		return nil, err
	}

	e := &Epoch{
		EpochNumber:   tip.EpochNumber + 1,
		PreviousHash:  tip.Hash,
		Deltas:        deltas,
		VDFProof:      proof,
		Iterations:    iterations,
		EpochDuration: duration.Seconds(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	hash, err := e.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("epoch: computing hash: %w", err)
	}
	e.Hash = hash

	c.Epochs = append(c.Epochs, e)
	return e, nil
}

// AdjustIterations implements the calibration-convergence rule: if the
// last epoch's wall-clock duration deviated from the target by more than
// 20%, scale the iteration count toward the target and smooth it by
// averaging with the previous count. Otherwise the count is left
// unchanged.
func AdjustIterations(lastDuration time.Duration, target time.Duration, currentIters uint64) uint64 {
	lastSec := lastDuration.Seconds()
	targetSec := target.Seconds()
	if lastSec <= 0 || targetSec <= 0 {
		return currentIters
	}

	deviation := math.Abs(lastSec - targetSec)
	if deviation <= 0.2*targetSec {
		return currentIters
	}

	scaled := uint64(math.Floor(float64(currentIters) * targetSec / lastSec))
	return (currentIters + scaled) / 2
}

// TotalDuration sums epochDuration across every epoch in the chain.
func (c *Chain) TotalDuration() float64 {
	var total float64
	for _, e := range c.Epochs {
		total += e.EpochDuration
	}
	return total
}

// IsZeroHash reports whether s is the all-zero genesis hash.
func IsZeroHash(s string) bool {
	return s == ZeroHash
}
