package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now returns the current UTC time truncated to milliseconds so that values
// survive a JSON or database round trip unchanged.
func Now() time.Time { return NowFunc().UTC().Truncate(time.Millisecond) }

// Since returns the time elapsed since t according to NowFunc.
func Since(t time.Time) time.Duration { return NowFunc().Sub(t) }
