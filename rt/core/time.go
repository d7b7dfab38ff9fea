package core

import (
	"time"
)

// Clock tracks per-frame timing. Tick is called once at the start of every
// frame by the orchestrator.
type Clock struct {
	Start   time.Time
	Time    time.Time
	Dt      time.Duration
	Elapsed time.Duration
	Frame   uint64

	now func() time.Time
}

func NewClock() *Clock {
	return NewClockWithSource(time.Now)
}

// NewClockWithSource lets tests drive time deterministically.
func NewClockWithSource(now func() time.Time) *Clock {
	t := now()
	return &Clock{Start: t, Time: t, now: now}
}

func (c *Clock) Tick() {
	now := c.now()
	c.Dt = now.Sub(c.Time)
	c.Time = now
	c.Elapsed = now.Sub(c.Start)
	c.Frame++
}

// DtSeconds falls back to 1/60 before the first measured frame.
func (c *Clock) DtSeconds() float32 {
	if c.Dt <= 0 {
		return 1.0 / 60.0
	}
	return float32(c.Dt.Seconds())
}
