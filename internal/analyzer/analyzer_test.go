package analyzer

import (
	"errors"
	"testing"
	"time"

	"github.com/ciphernom/bitquill/internal/delta"
	"github.com/ciphernom/bitquill/internal/epoch"
	"github.com/ciphernom/bitquill/internal/vdf"
)

const testModulusHex = "f3d8c1f7a5e29b6d4c7a1e8f9b3d6c5a7e9f1b3d5c7a9e1f3b5d7c9a1e3f5b7d9"

func insertOp(text string) delta.Op {
	t := text
	return delta.Op{Insert: &t}
}

func deleteOp(n int) delta.Op {
	return delta.Op{Delete: &n}
}

func appendEpoch(t *testing.T, chain *epoch.Chain, computer *vdf.Computer, ops []delta.Op, duration time.Duration) {
	t.Helper()
	tip, err := chain.CurrentTip()
	if err != nil {
		t.Fatalf("CurrentTip: %v", err)
	}
	proof, err := computer.ComputeProof(tip.Hash, 10, nil)
	if err != nil {
		t.Fatalf("ComputeProof: %v", err)
	}
	if _, err := chain.Append([]delta.Group{{Ops: ops}}, proof, 10, duration); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestParseOpsAcceptsWellFormedOps(t *testing.T) {
	ops, err := ParseOps([]byte(`[{"insert":"hi"},{"delete":3},{"retain":5,"attributes":{"bold":true}}]`))
	if err != nil {
		t.Fatalf("ParseOps: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	if text, ok := ops[0].IsInsert(); !ok || text != "hi" {
		t.Fatalf("expected first op to be insert %q, got %q (ok=%v)", "hi", text, ok)
	}
}

func TestParseOpsRejectsAmbiguousOp(t *testing.T) {
	if _, err := ParseOps([]byte(`[{"insert":"hi","delete":3}]`)); !errors.Is(err, ErrAmbiguousOp) {
		t.Fatalf("expected ErrAmbiguousOp, got %v", err)
	}
	if _, err := ParseOps([]byte(`[{}]`)); !errors.Is(err, ErrAmbiguousOp) {
		t.Fatalf("expected ErrAmbiguousOp for empty op, got %v", err)
	}
}

func TestParseOpsRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseOps([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestAnalyzeGenesisOnlyReturnsNeutralScore(t *testing.T) {
	chain := epoch.Genesis()
	score := Analyze(chain.Epochs)
	if score.HumanScore != 0.5 {
		t.Fatalf("expected neutral score for genesis-only chain, got %f", score.HumanScore)
	}
}

func TestAnalyzeScoreIsBounded(t *testing.T) {
	computer, err := vdf.New(testModulusHex)
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	chain := epoch.Genesis()
	appendEpoch(t, chain, computer, []delta.Op{insertOp("The quick brown fox jumps over the lazy dog.")}, 4*time.Second)
	appendEpoch(t, chain, computer, []delta.Op{deleteOp(3), insertOp("fox")}, 3*time.Second)
	appendEpoch(t, chain, computer, []delta.Op{insertOp("It runs quickly, gracefully, and silently!")}, 5*time.Second)

	score := Analyze(chain.Epochs)
	if score.HumanScore < 0 || score.HumanScore > 1 {
		t.Fatalf("expected score in [0,1], got %f", score.HumanScore)
	}
	for name, v := range score.Details {
		if v < 0 || v > 1 {
			t.Errorf("component %s out of [0,1]: %f", name, v)
		}
	}
}

func TestAnalyzeDetectsEditStorm(t *testing.T) {
	computer, err := vdf.New(testModulusHex)
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	chain := epoch.Genesis()
	var ops []delta.Op
	for i := 0; i < 201; i++ {
		ops = append(ops, insertOp("x"))
	}
	appendEpoch(t, chain, computer, ops, time.Second)

	score := Analyze(chain.Epochs)
	if score.HumanScore != 0.05 {
		t.Fatalf("expected edit-storm short-circuit score 0.05, got %f", score.HumanScore)
	}
	if score.Reason != "Edit storm detected." {
		t.Fatalf("expected reason 'Edit storm detected.', got %q", score.Reason)
	}
}

func TestAnalyzeDetectsLargePaste(t *testing.T) {
	computer, err := vdf.New(testModulusHex)
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	chain := epoch.Genesis()
	paste := make([]byte, 150)
	for i := range paste {
		paste[i] = 'a'
	}
	appendEpoch(t, chain, computer, []delta.Op{insertOp(string(paste))}, time.Second)

	score := Analyze(chain.Epochs)
	if score.HumanScore != 0.10 {
		t.Fatalf("expected large-paste short-circuit score 0.10, got %f", score.HumanScore)
	}
	if score.Reason != "Large paste detected." {
		t.Fatalf("expected reason 'Large paste detected.', got %q", score.Reason)
	}
}

func TestAnalyzeReportsEpochCountMetric(t *testing.T) {
	computer, err := vdf.New(testModulusHex)
	if err != nil {
		t.Fatalf("vdf.New: %v", err)
	}
	chain := epoch.Genesis()
	appendEpoch(t, chain, computer, []delta.Op{insertOp("hello")}, time.Second)
	appendEpoch(t, chain, computer, []delta.Op{insertOp(" world")}, time.Second)

	score := Analyze(chain.Epochs)
	if score.Metrics["epochCount"] != 2 {
		t.Fatalf("expected epochCount metric 2, got %f", score.Metrics["epochCount"])
	}
}

func TestPeakedPeaksAtTarget(t *testing.T) {
	atTarget := peaked(0.6, 0.6, 2)
	farFromTarget := peaked(0.0, 0.6, 2)
	if atTarget <= farFromTarget {
		t.Fatalf("expected peaked score at target (%f) to exceed far-from-target (%f)", atTarget, farFromTarget)
	}
}

func TestCoefficientOfVariationZeroMean(t *testing.T) {
	if cv := coefficientOfVariation([]float64{0, 0, 0}); cv != 0 {
		t.Fatalf("expected 0 for all-zero input, got %f", cv)
	}
}
