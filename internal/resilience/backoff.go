// ABOUTME: Exponential backoff with jitter for catalog refresh retries
// ABOUTME: Delays grow multiplicatively up to a cap, with a bounded attempt count

package resilience

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff configuration values.
const (
	DefaultMaxRetries     = 5
	DefaultInitialDelay   = 30 * time.Second
	DefaultMaxDelay       = 30 * time.Minute
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.2
)

// BackoffConfig configures retry delays for a failed refresh.
type BackoffConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Zero uses DefaultMaxRetries.
	MaxRetries int

	// InitialDelay is the delay after the first failure.
	// Zero uses DefaultInitialDelay.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Zero uses DefaultMaxDelay.
	MaxDelay time.Duration

	// Multiplier grows the delay on each retry. Zero uses
	// DefaultMultiplier.
	Multiplier float64

	// JitterFraction randomizes delays; 0.2 means plus or minus 20%.
	// Zero disables jitter, which is the deterministic choice for tests.
	JitterFraction float64
}

// DefaultBackoffConfig returns a BackoffConfig with all defaults
// applied, jitter included.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:     DefaultMaxRetries,
		InitialDelay:   DefaultInitialDelay,
		MaxDelay:       DefaultMaxDelay,
		Multiplier:     DefaultMultiplier,
		JitterFraction: DefaultJitterFraction,
	}
}

// Backoff tracks retry state for one refresh attempt sequence.
// Safe for concurrent use, though refresh loops own one each.
type Backoff struct {
	mu           sync.Mutex
	config       BackoffConfig
	attempts     int
	currentDelay time.Duration
}

// NewBackoff creates a Backoff. Zero config values use defaults;
// a zero JitterFraction stays zero.
func NewBackoff(config BackoffConfig) *Backoff {
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = DefaultInitialDelay
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	if config.Multiplier == 0 {
		config.Multiplier = DefaultMultiplier
	}

	return &Backoff{
		config:       config,
		currentDelay: config.InitialDelay,
	}
}

// NextDelay returns the next delay and whether another retry is
// allowed. Returns (0, false) once MaxRetries attempts have been
// handed out.
func (b *Backoff) NextDelay() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempts >= b.config.MaxRetries {
		return 0, false
	}

	delay := b.currentDelay
	if b.config.JitterFraction > 0 {
		jitterRange := float64(delay) * b.config.JitterFraction
		jitter := (rand.Float64()*2 - 1) * jitterRange
		delay = time.Duration(float64(delay) + jitter)
	}

	b.attempts++
	next := time.Duration(float64(b.currentDelay) * b.config.Multiplier)
	if next > b.config.MaxDelay {
		next = b.config.MaxDelay
	}
	b.currentDelay = next

	return delay, true
}

// Reset restores the initial state after a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts = 0
	b.currentDelay = b.config.InitialDelay
}

// Attempts returns the number of delays handed out so far.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
