package engine

import "time"

// Clock supplies the current wall time to the cache TTL gate and to
// persisted fetch/detection timestamps. Injecting it keeps TTL boundary
// behavior testable without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
