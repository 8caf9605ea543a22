package util

import "time"

// Clock abstracts time so order creation ordering and trade timestamps are
// controllable in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
