// Package ratelimit applies per-category token buckets to tool calls.
// Buckets are process-local: replicas do not share state, so a deployment
// running N proxies enforces N times the configured rate.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter holds one token bucket per configured category.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]policy.RateLimit
	buckets map[string]*bucket

	// now is replaceable in tests. time.Time carries a monotonic reading,
	// so wall-clock changes never refill buckets.
	now func() time.Time
}

// New builds a limiter from the policy's rate-limit rules.
func New(rules []policy.RateLimit) *Limiter {
	m := make(map[string]policy.RateLimit, len(rules))
	for _, r := range rules {
		m[r.Category] = r
	}
	return &Limiter{
		rules:   m,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Check takes one token from the category's bucket. Categories without a
// configured rule always allow.
func (l *Limiter) Check(category string) model.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[category]
	if !ok {
		return model.Allow(fmt.Sprintf("no rate limit configured for %q", category), model.RuleRateDefault)
	}

	now := l.now()
	b, ok := l.buckets[category]
	if !ok {
		b = &bucket{tokens: float64(rule.Capacity), last: now}
		l.buckets[category] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * rule.RefillPerSec
		if b.tokens > float64(rule.Capacity) {
			b.tokens = float64(rule.Capacity)
		}
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return model.Allow(fmt.Sprintf("rate ok for %q", category), model.RuleRateAllow)
	}
	return model.Block(fmt.Sprintf("rate limit exceeded for %q", category), model.RuleRateLimitBlock)
}
