package assessment

import "time"

// Clock abstracts wall-clock time so sessions can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the default clock implementation.
var SystemClock Clock = realClock{}
