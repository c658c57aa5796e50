// Package rng provides explicit-state pseudo-random streams.
//
// A Stream is an independent generator instance: seeded streams are fully
// deterministic (same seed, same sequence), entropy-seeded streams are
// fresh per construction. Randomness is never reached through package
// globals; callers hold a Stream and thread it into whatever needs draws.
package rng

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrInvalidRange is returned when a bounded draw is requested with min > max.
var ErrInvalidRange = errors.New("rng: min must not exceed max")

// Stream produces uniform pseudo-random values from private generator state.
// It is safe for concurrent use; draws are serialized internally so a single
// process-lifetime stream can back concurrent HTTP handlers.
type Stream struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a deterministic Stream. Two streams created with the same
// seed produce identical sequences.
func New(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewPCG(uint64(seed), 0))}
}

// NewFromEntropy returns a Stream seeded from the operating system's
// entropy source. Sequences from independently created streams are
// unrelated.
func NewFromEntropy() (*Stream, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// Float64 returns the next value in [0, 1), advancing the stream.
func (s *Stream) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// IntBetween returns an integer uniformly distributed over the closed
// range [min, max]. It fails with ErrInvalidRange when min > max.
func (s *Stream) IntBetween(min, max int) (int, error) {
	if min > max {
		return 0, ErrInvalidRange
	}
	// The width of [min, max] can exceed math.MaxInt, so it is computed
	// in uint64; a zero span means the range covers every int value.
	span := uint64(max) - uint64(min) + 1
	if span == 0 {
		return int(s.uint64()), nil
	}
	offset := uint64(s.Float64() * float64(span))
	if offset >= span {
		// float64 cannot represent every uint64 exactly; rounding at
		// the top edge of very wide spans is clamped back into range.
		offset = span - 1
	}
	return min + int(offset), nil
}

func (s *Stream) uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Uint64()
}
