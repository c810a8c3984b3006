// Package gate throttles how often emotion samples are persisted.
package gate

import "time"

// Interval is the minimum spacing between two accepted samples.
const Interval = 2 * time.Second

// Gate is a fixed-interval throttle shared by every face in the run.
// It is not safe for concurrent use; the capture loop owns it.
type Gate struct {
	start    time.Time
	interval time.Duration
	accepted int
	rejected int
}

// New opens a window at start. A zero interval falls back to Interval.
func New(start time.Time, interval time.Duration) *Gate {
	if interval <= 0 {
		interval = Interval
	}
	return &Gate{start: start, interval: interval}
}

// Admit accepts the sample when at least one interval has passed since the
// window start, and restarts the window at now.
func (g *Gate) Admit(now time.Time) bool {
	if now.Sub(g.start) >= g.interval {
		g.start = now
		g.accepted++
		return true
	}
	g.rejected++
	return false
}

// WindowStart returns the start of the current window.
func (g *Gate) WindowStart() time.Time { return g.start }

func (g *Gate) Accepted() int { return g.accepted }

func (g *Gate) Rejected() int { return g.rejected }
