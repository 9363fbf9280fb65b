package series

import "time"

// Window derives the query range for a preset from the newest stored
// timestamp rather than the wall clock, so the axis depends only on the data.
//
// Hourly: end is latest truncated to its hour and start is lookback earlier.
// Daily: the same range widened to whole days, 00:00:00 through 23:59:59.
func Window(latest time.Time, lookback time.Duration, g Granularity) (start, end time.Time) {
	end = latest.Truncate(time.Hour)
	start = end.Add(-lookback)
	if g == Daily {
		start = Daily.Truncate(start)
		end = Daily.Truncate(end).Add(24*time.Hour - time.Second)
	}
	return start, end
}
