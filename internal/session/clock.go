package session

import "fmt"

// Clock counts down the seconds left in a session. It is driven by Tick and
// is not safe for concurrent use; Session guards it.
type Clock struct {
	remaining int
	fired     bool
}

// NewClock starts a countdown of durationMinutes.
func NewClock(durationMinutes int) *Clock {
	if durationMinutes < 0 {
		durationMinutes = 0
	}
	return &Clock{remaining: durationMinutes * 60}
}

// Remaining returns the seconds left.
func (c *Clock) Remaining() int {
	return c.remaining
}

// Expired reports whether the countdown reached zero.
func (c *Clock) Expired() bool {
	return c.remaining <= 0
}

// Tick consumes one second. expired is true on exactly one call: the one that
// observes zero for the first time.
func (c *Clock) Tick() (remaining int, expired bool) {
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 && !c.fired {
		c.fired = true
		return 0, true
	}
	return c.remaining, false
}

// FormatRemaining renders seconds as M:SS.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
