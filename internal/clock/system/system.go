// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements radar.Clock with UTC wall time.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to the second, matching stored timestamp precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
