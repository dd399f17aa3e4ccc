package port

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/oshokin/packwiz-deploy/internal/logger"
)

const (
	// MinAutoPort is the lowest port picked automatically.
	MinAutoPort = 8000
	// MaxAutoPort is the exclusive upper bound for automatic picks.
	MaxAutoPort = 9999
	// DefaultMaxAttempts bounds automatic probing.
	DefaultMaxAttempts = 100
)

var (
	// ErrNoPortAvailable is returned when every probed candidate was taken.
	ErrNoPortAvailable = errors.New("no port available")
	// ErrPortBusy is returned when a port stays bound after a reclaim attempt.
	ErrPortBusy = errors.New("port is in use")
)

// Selector picks the packwiz serve port.
type Selector struct {
	// prober checks candidates.
	prober Prober
	// maxAttempts bounds random probing.
	maxAttempts int
	// intN returns a pseudo-random integer in [0, n).
	intN func(n int) int
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(attempts int) SelectorOption {
	return func(s *Selector) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithRandom replaces the random source, mostly for tests.
func WithRandom(intN func(n int) int) SelectorOption {
	return func(s *Selector) {
		if intN != nil {
			s.intN = intN
		}
	}
}

// NewSelector creates a Selector probing with prober.
func NewSelector(prober Prober, opts ...SelectorOption) *Selector {
	s := &Selector{
		prober:      prober,
		maxAttempts: DefaultMaxAttempts,
		intN:        rand.IntN,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Select returns requested unchanged when it is non-zero. Otherwise it probes
// random ports in [MinAutoPort, MaxAutoPort) and returns the first free one.
func (s *Selector) Select(ctx context.Context, requested uint16) (uint16, error) {
	if requested != 0 {
		return requested, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate := uint16(MinAutoPort + s.intN(MaxAutoPort-MinAutoPort)) //nolint:gosec // Range fits uint16.

		if !s.prober.InUse(ctx, candidate) {
			return candidate, nil
		}

		logger.DebugKV(ctx, "Port candidate taken", "port", candidate, "attempt", attempt)
	}

	return 0, fmt.Errorf("%d candidates probed: %w", s.maxAttempts, ErrNoPortAvailable)
}
