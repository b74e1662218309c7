package ratelimit

import (
	"testing"
	"time"

	"github.com/ppiankov/agentsafe/internal/model"
	"github.com/ppiankov/agentsafe/internal/policy"
)

func fixedClock(start time.Time) (*time.Time, func() time.Time) {
	t := start
	return &t, func() time.Time { return t }
}

func TestCheckUnconfiguredCategory(t *testing.T) {
	l := New(nil)
	d := l.Check("run")
	if !d.Allowed || d.RuleID != model.RuleRateDefault {
		t.Errorf("unconfigured category: %+v", d)
	}
}

func TestCheckExhaustsCapacity(t *testing.T) {
	l := New([]policy.RateLimit{{Category: "run", Capacity: 3, RefillPerSec: 1}})
	start := time.Now()
	l.now = func() time.Time { return start }

	// With no time advance, exactly capacity checks succeed.
	for i := 0; i < 3; i++ {
		if d := l.Check("run"); !d.Allowed || d.RuleID != model.RuleRateAllow {
			t.Fatalf("check %d: %+v", i, d)
		}
	}
	if d := l.Check("run"); d.Allowed || d.RuleID != model.RuleRateLimitBlock {
		t.Fatalf("check past capacity: %+v", d)
	}
}

func TestCheckRefills(t *testing.T) {
	l := New([]policy.RateLimit{{Category: "fetch", Capacity: 2, RefillPerSec: 0.5}})
	now, clock := fixedClock(time.Now())
	l.now = clock

	l.Check("fetch")
	l.Check("fetch")
	if d := l.Check("fetch"); d.Allowed {
		t.Fatalf("bucket should be empty: %+v", d)
	}

	// 0.5 tokens/s: after 1s still short of a whole token.
	*now = now.Add(1 * time.Second)
	if d := l.Check("fetch"); d.Allowed {
		t.Fatalf("partial refill should still block: %+v", d)
	}

	*now = now.Add(2 * time.Second)
	if d := l.Check("fetch"); !d.Allowed {
		t.Fatalf("refilled bucket should allow: %+v", d)
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	l := New([]policy.RateLimit{{Category: "run", Capacity: 2, RefillPerSec: 10}})
	now, clock := fixedClock(time.Now())
	l.now = clock

	l.Check("run") // creates the bucket
	*now = now.Add(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Check("run").Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("expected capacity-bounded 2 allows after long idle, got %d", allowed)
	}
}
