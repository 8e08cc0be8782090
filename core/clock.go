package core

import "time"

type timer interface {
	Stop() bool
}

// clock is the time seam used by debouncing and request bookkeeping.
type clock struct {
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) timer
}

func realClock() clock {
	return clock{
		now: time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}
