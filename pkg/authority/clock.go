package authority

import "time"

// Clock provides authority time for the registry. Inject a fixed or
// stepped clock in tests; production code uses WallClock.
type Clock interface {
	Now() time.Time
}

// WallClock is the default Clock backed by time.Now.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time { return time.Now() }
