package game

import "time"

// Clock abstracts wall-clock time so cadence logic is testable.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
