// Package session wires the editor's incoming edit deltas to the epoch
// chain: it buffers deltas into the current epoch, drives a single
// background VDF worker, and seals a new epoch every time that worker
// completes over a non-empty buffer.
//
// Concurrency model: the editor callback (AddDelta) and the VDF
// completion handler both touch the delta buffer and the chain, but a
// single mutex protects both, and no call holds it across a VDF
// computation. Cancellation (Reset) is by generation counter: every
// worker captures the generation it was spawned under, and a completion
// whose generation no longer matches current is silently discarded —
// this is what "forcibly terminate and ignore stale completions" reduces
// to without needing true goroutine preemption.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ciphernom/bitquill/internal/delta"
	"github.com/ciphernom/bitquill/internal/epoch"
	"github.com/ciphernom/bitquill/internal/logging"
	"github.com/ciphernom/bitquill/internal/vdf"
)

// ProgressFunc receives VDF progress updates in [0,100] for the epoch
// currently being sealed.
type ProgressFunc func(percent int)

// EpochSealedFunc is called on the worker goroutine immediately after a
// new epoch is appended to the chain.
type EpochSealedFunc func(*epoch.Epoch)

// Session drives one document's editing chain.
type Session struct {
	computer *vdf.Computer
	target   time.Duration
	logger   *logging.Logger

	mu         sync.Mutex
	chain      *epoch.Chain
	buffer     []delta.Group
	iterations uint64
	generation uint64
	running    bool

	onSealed   EpochSealedFunc
	onProgress ProgressFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Session over a fresh genesis chain.
func New(computer *vdf.Computer, target time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		computer: computer,
		target:   target,
		logger:   logging.Default(),
		chain:    epoch.Genesis(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnEpochSealed registers a callback invoked whenever a new epoch is
// appended.
func (s *Session) OnEpochSealed(fn EpochSealedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSealed = fn
}

// OnProgress registers a callback for VDF progress updates.
func (s *Session) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProgress = fn
}

// Chain returns a snapshot pointer to the current chain. Callers must not
// mutate it directly; use the session's methods instead.
func (s *Session) Chain() *epoch.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

// AddDelta buffers one incoming edit delta group in arrival order. This
// is the non-suspending, atomic operation the concurrency contract
// requires of the editor callback.
func (s *Session) AddDelta(g delta.Group) {
	s.mu.Lock()
	s.buffer = append(s.buffer, g)
	s.mu.Unlock()
}

// Start calibrates the initial iteration count (if not already
// calibrated) and launches the background VDF worker loop.
func (s *Session) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	if s.iterations == 0 {
		s.iterations = s.computer.EstimateIterationsForSeconds(s.target.Seconds())
	}
	gen := s.generation
	tip, err := s.chain.CurrentTip()
	iters := s.iterations
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("session: cannot start worker, chain has no tip", "error", err)
		return
	}

	s.done = make(chan struct{})
	go s.workerLoop(gen, tip.Hash, iters)
}

// Reset terminates the in-flight worker (its eventual completion is
// ignored), clears the delta buffer, and restarts the chain from the
// supplied one — used for new-document, load-document, and
// import-document transitions.
func (s *Session) Reset(chain *epoch.Chain) error {
	s.mu.Lock()
	s.generation++
	s.running = false
	s.buffer = nil
	if chain == nil {
		chain = epoch.Genesis()
	}
	s.chain = chain
	s.mu.Unlock()

	s.Start()
	return nil
}

// Stop permanently terminates the session's worker.
func (s *Session) Stop() {
	s.mu.Lock()
	s.generation++
	s.running = false
	s.mu.Unlock()
	s.cancel()
}

// workerLoop runs one VDF computation over inputHash, then either restarts
// over the same tip (empty buffer) or seals a new epoch and continues
// over the new tip. It exits as soon as its generation is stale.
func (s *Session) workerLoop(gen uint64, inputHash string, iterations uint64) {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		start := time.Now()
		proof, err := s.computer.ComputeProof(inputHash, iterations, s.reportProgress(gen))
		elapsed := time.Since(start)
		if err != nil {
			s.logger.Error("session: VDF computation failed", "error", err)
			return
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return // stale completion: silently discarded per the cancellation contract
		}

		if len(s.buffer) == 0 {
			// Idle epoch: discard the proof, restart over the same tip so
			// the clock keeps ticking without polluting the chain.
			s.mu.Unlock()
			continue
		}

		snapshot := s.buffer
		s.buffer = nil
		newIters := epoch.AdjustIterations(elapsed, s.target, iterations)
		s.iterations = newIters
		sealed, err := s.chain.Append(snapshot, proof, iterations, elapsed)
		onSealed := s.onSealed
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("session: failed to seal epoch", "error", err)
			return
		}
		if onSealed != nil {
			onSealed(sealed)
		}

		inputHash = sealed.Hash
		iterations = newIters
	}
}

func (s *Session) reportProgress(gen uint64) func(int) {
	return func(percent int) {
		s.mu.Lock()
		cb := s.onProgress
		current := s.generation
		s.mu.Unlock()
		if cb != nil && current == gen {
			cb(percent)
		}
	}
}
