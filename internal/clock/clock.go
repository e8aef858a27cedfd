package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time. Services take it as a dependency so tests can pin time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
