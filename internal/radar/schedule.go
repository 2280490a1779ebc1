package radar

import "time"

// Defaults for the geomet publication grid and the loop hold effect.
// Both are plumbed through config so tests and deployments can vary them.
const (
	DefaultCadence   = 10 * time.Minute
	DefaultPadFrames = 3
)

// FrameTimes returns the frame timestamps from start to end at the given
// cadence, inclusive of start and never exceeding end. The result always
// contains at least start: when end precedes start the published range is
// degenerate and the single start frame is used rather than failing.
func FrameTimes(start, end time.Time, cadence time.Duration) []time.Time {
	times := []time.Time{start}
	if cadence <= 0 || end.Before(start) {
		return times
	}
	for {
		next := times[len(times)-1].Add(cadence)
		if next.After(end) {
			return times
		}
		times = append(times, next)
	}
}
