package postgresadapter

import (
	"time"

	"commitreveal/contexts/governance/commit-reveal-voting/ports"
)

// SystemClock reads wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.Clock = SystemClock{}
