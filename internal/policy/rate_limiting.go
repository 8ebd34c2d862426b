package policy

import (
	"sync"
	"time"
)

// rateLimitingPolicy keeps one token bucket per key.
type rateLimitingPolicy struct {
	enabled   bool
	perSecond int
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimitingPolicy allows perSecond requests per key with a burst of
// the same size. perSecond <= 0 disables it.
func NewRateLimitingPolicy(perSecond int) RateLimitingPolicy {
	return &rateLimitingPolicy{
		enabled:   perSecond > 0,
		perSecond: perSecond,
		buckets:   make(map[string]*tokenBucket),
	}
}

func (p *rateLimitingPolicy) Enabled() bool {
	return p.enabled
}

func (p *rateLimitingPolicy) Name() string {
	return "rate_limiting"
}

func (p *rateLimitingPolicy) Allow(key string, at time.Time) bool {
	if !p.enabled {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.refill(key, at)
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

func (p *rateLimitingPolicy) Remaining(key string, at time.Time) int {
	if !p.enabled {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refill(key, at).tokens
}

// refill must be called with p.mu held.
func (p *rateLimitingPolicy) refill(key string, at time.Time) *tokenBucket {
	b, ok := p.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: p.perSecond, lastRefill: at}
		p.buckets[key] = b
		return b
	}
	add := int(at.Sub(b.lastRefill).Seconds() * float64(p.perSecond))
	if add > 0 {
		b.tokens = min(b.tokens+add, p.perSecond)
		b.lastRefill = at
	}
	return b
}
