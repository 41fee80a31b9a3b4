// Package vdf implements a Wesolowski-style Verifiable Delay Function over
// an RSA group of unknown order: repeated squaring modulo a fixed 2048-bit
// modulus, with a succinct proof that can be checked in O(log T) big-integer
// operations instead of replaying all T squarings.
//
// This mirrors the structure the wider daemon uses for its pluggable VDF
// interface (a Params-driven evaluator, a proof type, Compute/Verify) but
// implements Wesolowski's protocol specifically, over math/big, rather than
// an iterated-hash chain.
package vdf

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ciphernom/bitquill/internal/bigint"
	"github.com/ciphernom/bitquill/internal/canon"
)

// Errors returned by this package.
var (
	ErrInvalidInput  = errors.New("vdf: invalid input encoding")
	ErrZeroModulus   = errors.New("vdf: modulus must not be zero")
	ErrInvalidProof  = errors.New("vdf: invalid proof")
	ErrNotCalibrated = errors.New("vdf: no calibration data available")
)

const millerRabinRounds = 40

// rsa2048Decimal is the RSA-2048 factoring challenge number (2048 bits,
// 617 decimal digits), as published by RSA Laboratories. Its factorization
// is not known to anyone; that unknown-order property is what the VDF's
// security rests on, rather than on any secret this code holds.
const rsa2048Decimal = "251959084756578934940271832400483985714292821262040320277771378360436620207075955562640185258807844069182906412495150821892985591491761845028084891200728449926873928072877767359714183472702618963750149718246911650776133798590957000973304597488084284017974291006424586918171951187461215151726546322822168699875491824224336372590851418654620435767984233871847744479207399342365848238242811981638150106748104516603773060562016196762561338441436038339044149526344321901146575444541784240209246165157233507787077498171257724679629263863563732899121548314381678998850404453640235273819513786365643912120103971228221207357"

var (
	defaultModulusOnce sync.Once
	defaultModulus     *big.Int
)

func defaultModulusN() *big.Int {
	defaultModulusOnce.Do(func() {
		n, ok := new(big.Int).SetString(rsa2048Decimal, 10)
		if !ok {
			panic("vdf: failed to parse built-in RSA-2048 modulus")
		}
		defaultModulus = n
	})
	return defaultModulus
}

// DefaultRSAModulusHex returns the hex encoding of the default modulus used
// by NewDefault.
func DefaultRSAModulusHex() string {
	return bigint.ToHex(defaultModulusN())
}

// Proof is the sealed Wesolowski VDF proof: y=x^(2^T) mod N, the proof
// element pi, the Fiat-Shamir challenge prime l, and the remainder r.
type Proof struct {
	Y          *big.Int
	Pi         *big.Int
	L          *big.Int
	R          *big.Int
	Iterations uint64
}

type proofJSON struct {
	Y          string `json:"y"`
	Pi         string `json:"pi"`
	L          string `json:"l"`
	R          string `json:"r"`
	Iterations uint64 `json:"iterations"`
}

// MarshalJSON serializes the proof using the spec's lowercase-hex wire
// format for every big integer field.
func (p *Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(proofJSON{
		Y:          bigint.ToHex(p.Y),
		Pi:         bigint.ToHex(p.Pi),
		L:          bigint.ToHex(p.L),
		R:          bigint.ToHex(p.R),
		Iterations: p.Iterations,
	})
}

// UnmarshalJSON parses a proof from its wire format.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var pj proofJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	y, err := bigint.FromHex(pj.Y)
	if err != nil {
		return fmt.Errorf("%w: y: %v", ErrInvalidInput, err)
	}
	pi, err := bigint.FromHex(pj.Pi)
	if err != nil {
		return fmt.Errorf("%w: pi: %v", ErrInvalidInput, err)
	}
	l, err := bigint.FromHex(pj.L)
	if err != nil {
		return fmt.Errorf("%w: l: %v", ErrInvalidInput, err)
	}
	r, err := bigint.FromHex(pj.R)
	if err != nil {
		return fmt.Errorf("%w: r: %v", ErrInvalidInput, err)
	}
	p.Y, p.Pi, p.L, p.R, p.Iterations = y, pi, l, r, pj.Iterations
	return nil
}

// Canonical renders the proof as an ordered object (y, pi, l, r,
// iterations) for embedding in a document's canonical hash input.
func (p *Proof) Canonical() canon.Object {
	return canon.Object{
		canon.P("y", bigint.ToHex(p.Y)),
		canon.P("pi", bigint.ToHex(p.Pi)),
		canon.P("l", bigint.ToHex(p.L)),
		canon.P("r", bigint.ToHex(p.R)),
		canon.P("iterations", int64(p.Iterations)),
	}
}

// Computer evaluates and verifies VDF proofs against a fixed modulus.
type Computer struct {
	modulus *big.Int

	mu         sync.Mutex
	iterPerSec uint64
	calibrated bool
}

// New builds a Computer over a caller-supplied modulus, given as hex.
func New(modulusHex string) (*Computer, error) {
	n, err := bigint.FromHex(modulusHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if n.Sign() == 0 {
		return nil, ErrZeroModulus
	}
	return &Computer{modulus: n}, nil
}

// NewDefault builds a Computer using the default RSA-2048 challenge modulus.
func NewDefault() *Computer {
	return &Computer{modulus: new(big.Int).Set(defaultModulusN())}
}

// Modulus returns a copy of the modulus this Computer operates over.
func (c *Computer) Modulus() *big.Int {
	return new(big.Int).Set(c.modulus)
}

// mapInput deterministically maps an arbitrary input string (typically a
// 64-char SHA-256 hex digest) to an element of Z/NZ: hash the UTF-8 bytes
// of the string, interpret the digest as a big-endian unsigned integer,
// reduce mod N, and bump trivial fixed points (0, 1) to 2.
func (c *Computer) mapInput(inputHex string) *big.Int {
	digest := sha256.Sum256([]byte(inputHex))
	x := new(big.Int).SetBytes(digest[:])
	x.Mod(x, c.modulus)
	if x.Sign() == 0 || x.Cmp(big.NewInt(1)) == 0 {
		x.SetInt64(2)
	}
	return x
}

// ComputeProof runs T sequential squarings of the mapped input and produces
// a Wesolowski proof of the result. onProgress, if non-nil, is called with
// values in [0,100] roughly every max(1, T/100) squarings; panics from
// onProgress are swallowed since progress reporting is advisory only.
func (c *Computer) ComputeProof(inputHex string, iterations uint64, onProgress func(percent int)) (*Proof, error) {
	x := c.mapInput(inputHex)

	if iterations == 0 {
		return &Proof{Y: x, Pi: big.NewInt(1), L: big.NewInt(3), R: big.NewInt(1), Iterations: 0}, nil
	}

	y := new(big.Int).Set(x)
	reportEvery := iterations / 100
	if reportEvery == 0 {
		reportEvery = 1
	}
	for i := uint64(0); i < iterations; i++ {
		y.Mul(y, y)
		y.Mod(y, c.modulus)
		if onProgress != nil && i%reportEvery == 0 {
			safeProgress(onProgress, int(i*100/iterations))
		}
	}
	if onProgress != nil {
		safeProgress(onProgress, 100)
	}

	l := hashToPrime(x, y)
	q, r := quotientRemainder(iterations, l)
	pi, err := bigint.ModExp(x, q, c.modulus)
	if err != nil {
		return nil, err
	}

	return &Proof{Y: y, Pi: pi, L: l, R: r, Iterations: iterations}, nil
}

// VerifyProof checks a Wesolowski proof: it re-derives x and l, validates
// 0<=r<l and r==2^T mod l, and checks pi^l * x^r == y (mod N).
func (c *Computer) VerifyProof(inputHex string, proof *Proof) bool {
	if proof == nil || proof.Y == nil || proof.Pi == nil || proof.L == nil || proof.R == nil {
		return false
	}

	x := c.mapInput(inputHex)

	if proof.Iterations == 0 {
		return proof.Y.Cmp(x) == 0 && proof.Pi.Cmp(big.NewInt(1)) == 0 &&
			proof.L.Cmp(big.NewInt(3)) == 0 && proof.R.Cmp(big.NewInt(1)) == 0
	}

	expectedL := hashToPrime(x, proof.Y)
	if expectedL.Cmp(proof.L) != 0 {
		return false
	}

	if proof.R.Sign() < 0 || proof.R.Cmp(proof.L) >= 0 {
		return false
	}

	tBig := new(big.Int).SetUint64(proof.Iterations)
	r := new(big.Int).Exp(big.NewInt(2), tBig, proof.L)
	if r.Cmp(proof.R) != 0 {
		return false
	}

	piL, err := bigint.ModExp(proof.Pi, proof.L, c.modulus)
	if err != nil {
		return false
	}
	xR, err := bigint.ModExp(x, proof.R, c.modulus)
	if err != nil {
		return false
	}
	lhs := new(big.Int).Mul(piL, xR)
	lhs.Mod(lhs, c.modulus)

	return lhs.Cmp(proof.Y) == 0
}

// hashToPrime derives a ~256-bit prime challenge l from x and y: serialize
// each as a fixed-width 256-byte big-endian buffer, concatenate with a
// 1-byte domain separator, SHA-256, set the top bit, force odd, then walk
// forward by 2 until Miller-Rabin confirms primality.
func hashToPrime(x, y *big.Int) *big.Int {
	h := sha256.New()
	h.Write(bigint.FixedWidthBytes(x, 256))
	h.Write(bigint.FixedWidthBytes(y, 256))
	h.Write([]byte{0x01})
	digest := h.Sum(nil)

	candidate := new(big.Int).SetBytes(digest)
	candidate.SetBit(candidate, 255, 1) // set top bit of the 256-bit digest
	candidate.SetBit(candidate, 0, 1)    // force odd

	two := big.NewInt(2)
	for !candidate.ProbablyPrime(millerRabinRounds) {
		candidate.Add(candidate, two)
	}
	return candidate
}

// quotientRemainder computes q = floor(2^T / l) and r = 2^T mod l without
// materializing 2^T, by repeatedly doubling an accumulator: this costs
// O(T) small-integer doublings, cheap relative to the T VDF squarings that
// dominate runtime.
func quotientRemainder(T uint64, l *big.Int) (q, r *big.Int) {
	q = big.NewInt(0)
	r = big.NewInt(1)
	two := big.NewInt(2)

	rPrime := new(big.Int)
	for i := uint64(0); i < T; i++ {
		rPrime.Mul(r, two)
		q.Mul(q, two)
		if rPrime.Cmp(l) >= 0 {
			r.Sub(rPrime, l)
			q.Add(q, big.NewInt(1))
		} else {
			r.Set(rPrime)
		}
	}
	return q, r
}

func safeProgress(onProgress func(percent int), percent int) {
	defer func() { recover() }()
	onProgress(percent)
}

// Benchmark measures squarings/second over approximately the given duration
// and caches the rate for EstimateIterationsForSeconds.
func (c *Computer) Benchmark(duration time.Duration) (uint64, error) {
	if duration <= 0 {
		return 0, errors.New("vdf: benchmark duration must be positive")
	}

	x := c.mapInput("vdf-benchmark-seed")
	y := new(big.Int).Set(x)

	start := time.Now()
	deadline := start.Add(duration)
	var n uint64
	for time.Now().Before(deadline) {
		for i := 0; i < 1000; i++ {
			y.Mul(y, y)
			y.Mod(y, c.modulus)
			n++
		}
	}
	elapsed := time.Since(start)
	rate := uint64(float64(n) / elapsed.Seconds())

	c.mu.Lock()
	c.iterPerSec = rate
	c.calibrated = true
	c.mu.Unlock()

	return rate, nil
}

// Calibrate bootstraps the iterations/second rate with a short fixed-size
// VDF run, falling back to a conservative default if the run fails to
// produce a usable measurement.
func (c *Computer) Calibrate() uint64 {
	const bootstrapIterations = 10_000
	const fallbackRate = 100_000

	start := time.Now()
	_, err := c.ComputeProof("vdf-calibration-seed", bootstrapIterations, nil)
	elapsed := time.Since(start)

	var rate uint64
	if err != nil || elapsed <= 0 {
		rate = fallbackRate
	} else {
		rate = uint64(float64(bootstrapIterations) / elapsed.Seconds())
		if rate == 0 {
			rate = fallbackRate
		}
	}

	c.mu.Lock()
	c.iterPerSec = rate
	c.calibrated = true
	c.mu.Unlock()
	return rate
}

// EstimateIterationsForSeconds converts a target duration into an
// iteration count using the cached calibration rate, bootstrapping via
// Calibrate if no benchmark has run yet.
func (c *Computer) EstimateIterationsForSeconds(seconds float64) uint64 {
	c.mu.Lock()
	rate := c.iterPerSec
	calibrated := c.calibrated
	c.mu.Unlock()

	if !calibrated {
		rate = c.Calibrate()
	}

	iters := uint64(float64(rate) * seconds)
	if iters == 0 {
		iters = 1
	}
	return iters
}

// IterationsPerSecond returns the last calibrated/benchmarked rate, or
// false if no calibration has happened yet.
func (c *Computer) IterationsPerSecond() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iterPerSec, c.calibrated
}
