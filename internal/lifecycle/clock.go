package lifecycle

import (
	"sync"
	"time"
)

// tick is the resolution of alert creation timestamps.
const tick = time.Microsecond

// patientClock hands out creation timestamps that strictly increase per
// patient within the process.
type patientClock struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newPatientClock() *patientClock {
	return &patientClock{last: make(map[string]time.Time)}
}

// Next returns now, or one tick past the previous timestamp for the
// patient if now does not move forward.
func (c *patientClock) Next(patientID string, now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := now.UTC().Truncate(tick)
	if prev, ok := c.last[patientID]; ok && !t.After(prev) {
		t = prev.Add(tick)
	}
	c.last[patientID] = t
	return t
}

// Bump returns a timestamp past both t and anything handed out for the
// patient so far. Used after a key conflict with another writer.
func (c *patientClock) Bump(patientID string, t time.Time) time.Time {
	return c.Next(patientID, t.Add(tick))
}
