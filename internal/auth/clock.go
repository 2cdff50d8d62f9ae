package auth

import "time"

// Clock supplies the current time to lockout and token-expiry decisions.
// Production code uses SystemClock; tests substitute a fixed or advancing
// fake so expiry windows can be crossed without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall-clock Clock used outside tests.
var SystemClock Clock = systemClock{}
