package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Configuration errors returned by policy constructors.
var (
	ErrInvalidCount   = errors.New("ratelimit: count must be positive")
	ErrNegativePeriod = errors.New("ratelimit: period must not be negative")
	ErrInvalidUnit    = errors.New("ratelimit: time unit must be positive")
	ErrPeriodOverflow = errors.New("ratelimit: period overflows")
	ErrInvalidRate    = errors.New("ratelimit: rate parameters must be positive")
)

// Every emits the first of every n statements at a log site.
// The zero value is inactive.
type Every struct {
	n int64
}

// NewEvery returns an Every policy. every(1) is valid and inactive.
func NewEvery(n int) (Every, error) {
	if n <= 0 {
		return Every{}, fmt.Errorf("%w: every(%d)", ErrInvalidCount, n)
	}
	if n == 1 {
		return Every{}, nil
	}
	return Every{n: int64(n)}, nil
}

// Active reports whether the policy limits anything.
func (p Every) Active() bool { return p.n > 1 }

// N returns the configured count, 0 when inactive.
func (p Every) N() int { return int(p.n) }

func (p Every) String() string { return "every(" + strconv.FormatInt(p.n, 10) + ")" }

// AtMostEvery emits at most one statement per period at a log site.
// The zero value is inactive.
type AtMostEvery struct {
	period time.Duration
}

// NewAtMostEvery returns a policy with a period of n units.
// atMostEvery(0, unit) is valid and inactive.
func NewAtMostEvery(n int64, unit time.Duration) (AtMostEvery, error) {
	if n < 0 {
		return AtMostEvery{}, fmt.Errorf("%w: atMostEvery(%d)", ErrNegativePeriod, n)
	}
	if unit <= 0 {
		return AtMostEvery{}, fmt.Errorf("%w: %v", ErrInvalidUnit, unit)
	}
	if n > math.MaxInt64/int64(unit) {
		return AtMostEvery{}, fmt.Errorf("%w: %d x %v", ErrPeriodOverflow, n, unit)
	}
	return AtMostEvery{period: time.Duration(n) * unit}, nil
}

// Active reports whether the policy limits anything.
func (p AtMostEvery) Active() bool { return p.period > 0 }

// Period returns the minimum interval between emissions.
func (p AtMostEvery) Period() time.Duration { return p.period }

func (p AtMostEvery) String() string { return "atMostEvery(" + p.period.String() + ")" }

// OnAverageEvery emits a random one in n statements on average.
// The zero value is inactive.
type OnAverageEvery struct {
	n int
}

// NewOnAverageEvery returns a sampling policy. onAverageEvery(1) is valid
// and inactive.
func NewOnAverageEvery(n int) (OnAverageEvery, error) {
	if n <= 0 {
		return OnAverageEvery{}, fmt.Errorf("%w: onAverageEvery(%d)", ErrInvalidCount, n)
	}
	if n == 1 {
		return OnAverageEvery{}, nil
	}
	return OnAverageEvery{n: n}, nil
}

// Active reports whether the policy limits anything.
func (p OnAverageEvery) Active() bool { return p.n > 1 }

// N returns the configured sampling rate, 0 when inactive.
func (p OnAverageEvery) N() int { return p.n }

func (p OnAverageEvery) String() string { return "onAverageEvery(" + strconv.Itoa(p.n) + ")" }

// WithinRate emits statements at a steady rate of events per period,
// allowing bursts of up to burst statements. The zero value is inactive.
type WithinRate struct {
	limit rate.Limit
	burst int
}

// NewWithinRate returns a token bucket policy.
func NewWithinRate(events int, per time.Duration, burst int) (WithinRate, error) {
	if events <= 0 || per <= 0 || burst <= 0 {
		return WithinRate{}, fmt.Errorf("%w: withinRate(%d/%v, burst %d)", ErrInvalidRate, events, per, burst)
	}
	return WithinRate{limit: rate.Limit(float64(events) / per.Seconds()), burst: burst}, nil
}

// Active reports whether the policy limits anything.
func (p WithinRate) Active() bool { return p.burst > 0 }

// Limit returns the steady rate in events per second.
func (p WithinRate) Limit() rate.Limit { return p.limit }

// Burst returns the bucket size.
func (p WithinRate) Burst() int { return p.burst }

func (p WithinRate) String() string {
	return "withinRate(" + strconv.FormatFloat(float64(p.limit), 'g', -1, 64) + "/s, burst " + strconv.Itoa(p.burst) + ")"
}
