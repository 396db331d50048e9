package errtax

import "time"

// Throttle thresholds (§4.F "Throttling").
const (
	MaxSevereErrors       = 10
	ExcessiveSevereErrors = 15

	// MaxXmitBackoff caps min-xmit-rate/min-xmit-delay doubling.
	MaxXmitBackoff = 12 * time.Hour

	// ExcessiveConnectionsPenalty is added (not doubled) to both
	// min-xmit-rate and min-xmit-delay on EXCESSIVE_CONNECTIONS.
	ExcessiveConnectionsPenalty = 300 * time.Second
)

// SevereTracker accumulates severe-error closes across sessions and
// derives the adaptive backoff they trigger (§4.F "Throttling").
type SevereTracker struct {
	count int
}

// RecordSevereClose increments the cross-session severe-error count, as
// happens on every session close that ended in a severe error.
func (t *SevereTracker) RecordSevereClose() {
	t.count++
}

// RecordCleanClose decrements the counter by one floor zero, the slow
// recovery path for a session that closed without error.
func (t *SevereTracker) RecordCleanClose() {
	if t.count > 0 {
		t.count--
	}
}

// Count returns the current cross-session severe-error count.
func (t *SevereTracker) Count() int {
	return t.count
}

// ShouldDoubleXmitBackoff reports whether the count has crossed
// MaxSevereErrors, calling for min-xmit-rate/min-xmit-delay to be
// doubled (capped at MaxXmitBackoff).
func (t *SevereTracker) ShouldDoubleXmitBackoff() bool {
	return t.count >= MaxSevereErrors
}

// ShouldSuppressPeriodicMessaging reports whether the count has crossed
// ExcessiveSevereErrors, calling for the client's periodic messaging
// properties (motion-start, in-motion interval, dormant interval) to be
// zeroed out.
func (t *SevereTracker) ShouldSuppressPeriodicMessaging() bool {
	return t.count >= ExcessiveSevereErrors
}

// DoubleBackoff doubles d, capped at MaxXmitBackoff.
func DoubleBackoff(d time.Duration) time.Duration {
	doubled := d * 2
	if doubled <= 0 || doubled > MaxXmitBackoff {
		return MaxXmitBackoff
	}
	return doubled
}

// AddExcessiveConnectionsPenalty adds the fixed EXCESSIVE_CONNECTIONS
// penalty to d, capped at MaxXmitBackoff.
func AddExcessiveConnectionsPenalty(d time.Duration) time.Duration {
	sum := d + ExcessiveConnectionsPenalty
	if sum > MaxXmitBackoff {
		return MaxXmitBackoff
	}
	return sum
}

// ChecksumCounter tracks per-session checksum-error occurrences;
// reaching the third escalates to a severe, session-fatal error
// (§4.H "CHECKSUM (either kind)").
type ChecksumCounter struct {
	count int
}

// EscalationThreshold is the occurrence count at which a checksum
// error escalates to severe.
const EscalationThreshold = 3

// Record increments the per-session checksum-error count and reports
// whether it has now reached the escalation threshold.
func (c *ChecksumCounter) Record() (escalate bool) {
	c.count++
	return c.count >= EscalationThreshold
}

// Count returns the current per-session checksum-error count.
func (c *ChecksumCounter) Count() int {
	return c.count
}
