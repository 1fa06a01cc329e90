package handlers

import (
	"strings"
	"sync"
	"time"
)

// attemptLimiter caps how many times a customer may try an action within a
// window. Attempt reports whether the try may proceed and, when it may not,
// how long until the customer's window reopens.
type attemptLimiter interface {
	Attempt(customerID string) (wait time.Duration, ok bool)
}

// attemptWindow is one customer's fixed window, opened by their first try.
type attemptWindow struct {
	used   int
	closes time.Time
}

type paymentAttempts struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]attemptWindow
	sweepAt time.Time
}

// newPaymentAttempts returns nil when limit or window is not positive, which
// leaves payment submissions unlimited.
func newPaymentAttempts(limit int, window time.Duration, now func() time.Time) attemptLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &paymentAttempts{
		max:     limit,
		window:  window,
		now:     now,
		windows: make(map[string]attemptWindow),
	}
}

// Attempt counts a try for customerID. A blank customer is never allowed:
// the payment routes only run behind authentication.
func (p *paymentAttempts) Attempt(customerID string) (time.Duration, bool) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return p.window, false
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now)

	w, ok := p.windows[customerID]
	if !ok || !now.Before(w.closes) {
		p.windows[customerID] = attemptWindow{used: 1, closes: now.Add(p.window)}
		return 0, true
	}
	if w.used >= p.max {
		return w.closes.Sub(now), false
	}
	w.used++
	p.windows[customerID] = w
	return 0, true
}

// sweepLocked drops closed windows at most once per window length.
func (p *paymentAttempts) sweepLocked(now time.Time) {
	if now.Before(p.sweepAt) {
		return
	}
	for id, w := range p.windows {
		if !now.Before(w.closes) {
			delete(p.windows, id)
		}
	}
	p.sweepAt = now.Add(p.window)
}
