package stream

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Strategy decides whether a feed dials again after it failed or closed, and how long it
// waits first. attempt counts consecutive failures since the last successful connection.
type Strategy interface {
	Next(attempt int) (time.Duration, bool)
}

// NoReconnect leaves a failed feed in its degraded state until a new scope is opened.
type NoReconnect struct{}

func (NoReconnect) Next(int) (time.Duration, bool) {
	return 0, false
}

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Backoff is exponential backoff with up to 25% jitter, never waiting longer than Max.
type Backoff struct {
	MaxRetries int // 0 means unlimited
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool
}

func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if b.MaxRetries > 0 && attempt >= b.MaxRetries {
		return 0, false
	}

	initial := b.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := b.Max
	if max < initial {
		max = initial
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(initial) * math.Pow(mult, float64(attempt))
	delay := max
	if d < float64(max) {
		delay = time.Duration(d)
	}

	if b.Jitter && delay >= 4 {
		randMu.Lock()
		delay += time.Duration(randSource.Int63n(int64(delay / 4)))
		randMu.Unlock()
	}
	if delay > max {
		delay = max
	}
	return delay, true
}
