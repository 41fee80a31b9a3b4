package epoch

import (
	"testing"
	"time"

	"github.com/ciphernom/bitquill/internal/delta"
	"github.com/ciphernom/bitquill/internal/vdf"
)

func insertGroup(text string) []delta.Group {
	return []delta.Group{{Ops: []delta.Op{{Insert: &text}}}}
}

func TestGenesis(t *testing.T) {
	c := Genesis()
	if len(c.Epochs) != 1 {
		t.Fatalf("expected 1 genesis epoch, got %d", len(c.Epochs))
	}
	g := c.Epochs[0]
	if g.EpochNumber != 0 || g.Hash != ZeroHash || len(g.Deltas) != 0 {
		t.Fatalf("unexpected genesis shape: %+v", g)
	}
}

func TestAppendRejectsEmptyDeltas(t *testing.T) {
	c := Genesis()
	if _, err := c.Append(nil, nil, 100, time.Second); err != ErrEmptyDeltas {
		t.Fatalf("expected ErrEmptyDeltas, got %v", err)
	}
}

func TestAppendLinksPreviousHash(t *testing.T) {
	c := Genesis()
	computer, err := vdf.New(smallModulusHexForTests())
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	proof, err := computer.ComputeProof(c.Epochs[0].Hash, 50, nil)
	if err != nil {
		t.Fatalf("ComputeProof: %v", err)
	}

	e, err := c.Append(insertGroup("hello"), proof, 50, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.EpochNumber != 1 {
		t.Fatalf("expected epoch number 1, got %d", e.EpochNumber)
	}
	if e.PreviousHash != ZeroHash {
		t.Fatalf("expected previousHash to be genesis hash, got %s", e.PreviousHash)
	}

	recomputed, err := e.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if recomputed != e.Hash {
		t.Fatalf("expected stored hash to match recomputed hash: %s vs %s", e.Hash, recomputed)
	}
}

func TestHashExcludesAuxiliaryFields(t *testing.T) {
	c := Genesis()
	computer, err := vdf.New(smallModulusHexForTests())
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	proof, err := computer.ComputeProof(c.Epochs[0].Hash, 20, nil)
	if err != nil {
		t.Fatalf("ComputeProof: %v", err)
	}
	e, err := c.Append(insertGroup("hi"), proof, 20, 5*time.Second)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	originalHash := e.Hash

	// Changing epochDuration or timestamp must not change the hash.
	e.EpochDuration = 999
	e.Timestamp = "2000-01-01T00:00:00Z"
	recomputed, err := e.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if recomputed != originalHash {
		t.Fatal("expected epochDuration/timestamp changes to not affect the hash")
	}
}

func TestHashChangesWithDeltaTamper(t *testing.T) {
	c := Genesis()
	computer, err := vdf.New(smallModulusHexForTests())
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	proof, err := computer.ComputeProof(c.Epochs[0].Hash, 20, nil)
	if err != nil {
		t.Fatalf("ComputeProof: %v", err)
	}
	e, err := c.Append(insertGroup("original"), proof, 20, time.Second)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	originalHash := e.Hash

	tampered := "tampered"
	e.Deltas = []delta.Group{{Ops: []delta.Op{{Insert: &tampered}}}}
	recomputed, err := e.ComputeHash()
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if recomputed == originalHash {
		t.Fatal("expected delta tampering to change the hash")
	}
}

func TestAdjustIterationsWithinTolerance(t *testing.T) {
	got := AdjustIterations(10*time.Second, 10*time.Second, 5000)
	if got != 5000 {
		t.Fatalf("expected unchanged iterations within tolerance, got %d", got)
	}
	got = AdjustIterations(9*time.Second, 10*time.Second, 5000)
	if got != 5000 {
		t.Fatalf("expected unchanged at 10%% deviation, got %d", got)
	}
}

func TestAdjustIterationsOutsideTolerance(t *testing.T) {
	// lastDuration is half the target: scaled = currentIters*2, then
	// smoothed by averaging with the original.
	got := AdjustIterations(5*time.Second, 10*time.Second, 1000)
	want := uint64((1000 + 2000) / 2)
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestTotalDuration(t *testing.T) {
	c := Genesis()
	c.Epochs = append(c.Epochs, &Epoch{EpochDuration: 3.5}, &Epoch{EpochDuration: 6.5})
	if got := c.TotalDuration(); got != 10.0 {
		t.Fatalf("expected total duration 10, got %v", got)
	}
}

// smallModulusHexForTests mirrors the small test modulus used by the vdf
// package's own tests, kept small so these chain tests run fast.
func smallModulusHexForTests() string {
	return "f3d8c1f7a5e29b6d4c7a1e8f9b3d6c5a7e9f1b3d5c7a9e1f3b5d7c9a1e3f5b7d9"
}
