// Package verifier provides end-to-end validation of a document
// envelope: the genesis anchor, every epoch's chain linkage and hash,
// every epoch's VDF proof, and the envelope's signature. It is the
// read-side counterpart to the epoch chain and envelope packages,
// structured the way the daemon's own verifier reports results — a
// Result value with an error list and a running progress callback —
// but walking a linear epoch chain instead of an MMR.
package verifier

import (
	"fmt"

	"github.com/ciphernom/bitquill/internal/envelope"
	"github.com/ciphernom/bitquill/internal/epoch"
	"github.com/ciphernom/bitquill/internal/vdf"
)

// ProgressFunc reports verification progress in [0,100] with a
// human-readable message.
type ProgressFunc func(percent int, message string)

// Result is the outcome of verifying one envelope.
type Result struct {
	Valid          bool     `json:"valid"`
	Errors         []string `json:"errors"`
	VerifiedEpochs int      `json:"verifiedEpochs"`
	TotalEpochs    int      `json:"totalEpochs"`
	SignatureValid bool     `json:"signatureValid"`
}

// Verify runs the full end-to-end check described by the design: genesis
// shape, per-epoch chain linkage and hash, per-epoch VDF proof, and the
// envelope signature. Every epoch is checked even after a failure, so
// that every error is surfaced in ascending epoch order.
func Verify(env *envelope.Envelope, computer *vdf.Computer, onProgress ProgressFunc) Result {
	// TotalEpochs counts sealed (non-genesis) epochs only, matching
	// VerifiedEpochs below; the genesis anchor is checked separately and
	// never counted toward either.
	totalEpochs := len(env.ProofChain) - 1
	if totalEpochs < 0 {
		totalEpochs = 0
	}
	result := Result{TotalEpochs: totalEpochs}

	if len(env.ProofChain) == 0 {
		result.Errors = append(result.Errors, "Missing genesis epoch.")
		return finish(result, env, onProgress)
	}

	genesis := env.ProofChain[0]
	if genesis.EpochNumber != 0 || genesis.Hash != epoch.ZeroHash {
		result.Errors = append(result.Errors, "Genesis epoch is malformed.")
		return finish(result, env, onProgress)
	}

	lastIndex := len(env.ProofChain) - 1
	for i := 1; i <= lastIndex; i++ {
		cur := env.ProofChain[i]
		prev := env.ProofChain[i-1]
		ok := true

		if cur.PreviousHash != prev.Hash {
			result.Errors = append(result.Errors, fmt.Sprintf("Epoch %d: Broken chain.", i))
			ok = false
		}

		expectedHash, err := cur.ComputeHash()
		if err != nil || expectedHash != cur.Hash {
			result.Errors = append(result.Errors, fmt.Sprintf("Epoch %d: Hash mismatch.", i))
			ok = false
		}

		if cur.VDFProof == nil || !computer.VerifyProof(prev.Hash, cur.VDFProof) {
			result.Errors = append(result.Errors, fmt.Sprintf("Epoch %d: Invalid VDF proof.", i))
			ok = false
		}

		if ok {
			result.VerifiedEpochs++
		}

		if onProgress != nil && lastIndex > 0 {
			onProgress(i*90/lastIndex, fmt.Sprintf("Verifying epoch %d…", i))
		}
	}

	return finish(result, env, onProgress)
}

func finish(result Result, env *envelope.Envelope, onProgress ProgressFunc) Result {
	if onProgress != nil {
		onProgress(95, "Verifying signature…")
	}

	if len(env.Metadata.Signature) == 0 || env.Metadata.PublicKey == nil {
		result.Errors = append(result.Errors, "Missing signature.")
	} else if !envelope.VerifySignature(env) {
		result.Errors = append(result.Errors, "Signature invalid.")
	} else {
		result.SignatureValid = true
	}

	if onProgress != nil {
		onProgress(100, "Done.")
	}

	result.Valid = len(result.Errors) == 0
	return result
}
