// Package deadline turns heterogeneous upstream expiry signals into one
// canonical absolute deadline and enforces the monotonic non-increase rule
// for hold countdowns.
package deadline

import "time"

// DefaultHoldWindow caps how much time a single hold may grant when the
// caller supplies no policy window of its own.
const DefaultHoldWindow = 15 * time.Minute

// msThreshold is one day expressed in seconds. A "seconds left" value above
// it is implausible as seconds and is reinterpreted as milliseconds. The
// heuristic is kept as-is because the true unit of the upstream signal is
// ambiguous.
const msThreshold = 86400

// Signals carries whatever expiry hints an upstream source provided. Any
// combination may be present; absent fields are nil.
type Signals struct {
	// ExpiresAt is an absolute expiry timestamp and wins over the other
	// signals when present.
	ExpiresAt *time.Time
	// TTLSeconds is a relative time-to-live from now.
	TTLSeconds *int64
	// SecondsLeft is a remaining-time signal that some sources emit in
	// milliseconds; see msThreshold.
	SecondsLeft *int64
}

// Options controls clamping and the monotonicity guard.
type Options struct {
	Now time.Time
	// HoldWindow bounds the derived deadline to Now+HoldWindow. Zero or
	// negative falls back to DefaultHoldWindow.
	HoldWindow time.Duration
	// AllowExtend flips the monotonicity guard from min(prev, new) to
	// max(prev, new). Only the resume path sets it.
	AllowExtend bool
}

// Compute derives the canonical deadline from sig, clamps it to the policy
// window, and applies the monotonicity guard against prev. It returns nil
// when no usable signal exists, meaning there is no live hold. The returned
// value is the caller's new "previous deadline" for subsequent calls on the
// same reservation.
func Compute(sig Signals, prev *time.Time, opts Options) *time.Time {
	derived := derive(sig, opts.Now)
	if derived == nil {
		return nil
	}

	window := opts.HoldWindow
	if window <= 0 {
		window = DefaultHoldWindow
	}
	limit := opts.Now.Add(window)
	clamped := *derived
	if clamped.After(limit) {
		clamped = limit
	}

	if prev == nil {
		return &clamped
	}
	if opts.AllowExtend {
		if prev.After(clamped) {
			c := *prev
			return &c
		}
		return &clamped
	}
	if prev.Before(clamped) {
		c := *prev
		return &c
	}
	return &clamped
}

func derive(sig Signals, now time.Time) *time.Time {
	if sig.ExpiresAt != nil {
		t := *sig.ExpiresAt
		return &t
	}
	if sig.TTLSeconds != nil {
		t := now.Add(time.Duration(*sig.TTLSeconds) * time.Second)
		return &t
	}
	if sig.SecondsLeft != nil {
		secs := *sig.SecondsLeft
		if secs > msThreshold {
			secs = secs / 1000
		}
		t := now.Add(time.Duration(secs) * time.Second)
		return &t
	}
	return nil
}

// SecondsRemaining reports the whole seconds left until deadline, never
// negative.
func SecondsRemaining(now time.Time, deadline *time.Time) int64 {
	if deadline == nil {
		return 0
	}
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}
