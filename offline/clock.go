package offline

import "time"

// ReplayClock relates recorded time to wall time
type ReplayClock struct {
	FirstRecord  time.Time
	LatestRecord time.Time
	BaseWall     time.Time
	CurrentWall  time.Time
}

// observe records the timestamp of a record read from the capture.
// LatestRecord never moves backwards.
func (c *ReplayClock) observe(ts time.Time) {
	if c.FirstRecord.IsZero() {
		c.FirstRecord = ts
		c.LatestRecord = ts
		return
	}
	if ts.After(c.LatestRecord) {
		c.LatestRecord = ts
	}
}

// RecordedElapsed is the capture time covered so far, scaled by speed
func (c *ReplayClock) RecordedElapsed(speed float64) time.Duration {
	return time.Duration(float64(c.LatestRecord.Sub(c.FirstRecord)) / speed)
}

func (c *ReplayClock) WallElapsed() time.Duration {
	return c.CurrentWall.Sub(c.BaseWall)
}

// Leads reports whether forwarding the latest record would run ahead of the
// original cadence
func (c *ReplayClock) Leads(speed float64) bool {
	return c.RecordedElapsed(speed) > c.WallElapsed()
}
