// Package ratelimit implements a windowed attempt counter with lockout,
// keyed by (identity, action). It guards verification-code issuance and
// verification and other user-triggered compute-heavy operations.
package ratelimit

import (
	"sync"
	"time"

	"github.com/shelfmark/authd/internal/common"
)

// Policy describes the attempt budget for one action.
type Policy struct {
	// Threshold is the number of attempts allowed inside one window.
	Threshold int
	// Window is the rolling window length.
	Window time.Duration
	// Lockout is how long the identity stays locked once the threshold
	// is exceeded.
	Lockout time.Duration
}

type key struct {
	identity string
	action   string
}

type window struct {
	attempts    int
	windowStart time.Time
	lastAttempt time.Time
	lockedUntil time.Time
}

// Limiter tracks attempt windows in memory under a single mutex. State is
// per-process; the trigger surface is user-initiated, low-rate traffic.
type Limiter struct {
	mu       sync.Mutex
	windows  map[key]*window
	policies map[string]Policy
	fallback Policy

	// now is an injection point for tests.
	now func() time.Time
}

// DefaultPolicy applies to actions without an explicit policy.
var DefaultPolicy = Policy{Threshold: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute}

// NewLimiter builds a Limiter with per-action policies. Unknown actions use
// DefaultPolicy.
func NewLimiter(policies map[string]Policy) *Limiter {
	l := &Limiter{
		windows:  make(map[key]*window),
		policies: make(map[string]Policy, len(policies)),
		fallback: DefaultPolicy,
		now:      time.Now,
	}
	for action, p := range policies {
		l.policies[action] = p
	}
	return l
}

func (l *Limiter) policy(action string) Policy {
	if p, ok := l.policies[action]; ok {
		return p
	}
	return l.fallback
}

// Check records an attempt for (identity, action) and returns nil while the
// attempt budget holds, or a *common.RateLimitedError carrying the remaining
// lock duration once it is exceeded. After the lock elapses the next check
// starts a fresh window.
func (l *Limiter) Check(identity, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	p := l.policy(action)
	k := key{identity: identity, action: action}

	w, ok := l.windows[k]
	if !ok {
		w = &window{}
		l.windows[k] = w
	}

	if !w.lockedUntil.IsZero() {
		if now.Before(w.lockedUntil) {
			return &common.RateLimitedError{Action: action, RetryAfter: w.lockedUntil.Sub(now)}
		}
		// Lock elapsed: forget the old window entirely.
		*w = window{}
	}

	if w.windowStart.IsZero() || now.Sub(w.windowStart) > p.Window {
		w.attempts = 1
		w.windowStart = now
	} else {
		w.attempts++
	}
	w.lastAttempt = now

	if w.attempts > p.Threshold {
		w.lockedUntil = now.Add(p.Lockout)
		return &common.RateLimitedError{Action: action, RetryAfter: p.Lockout}
	}
	return nil
}

// Reset clears state for (identity, action). Used after a successful
// verification so earlier failed attempts stop counting.
func (l *Limiter) Reset(identity, action string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key{identity: identity, action: action})
}
