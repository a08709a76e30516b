package operator

import (
	"sync"
	"time"
)

// tokenBucket rate-limits operator commands: capacity tokens, fully
// refilled every refillPeriod. It exists so a flood of checkpoint or
// verify commands from a compromised or buggy operator client can't
// monopolise the Sentinel.
type tokenBucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

func newTokenBucket(capacity int, refillPeriod time.Duration) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillPeriod <= 0 {
		refillPeriod = time.Minute
	}
	b := &tokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *tokenBucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to take cost tokens, returning false if the bucket
// doesn't have enough.
func (b *tokenBucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Close stops the refill goroutine.
func (b *tokenBucket) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
}
