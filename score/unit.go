package score

import (
	"math"
	"strings"
)

// Tick is an integer pulse count, scaled by the score's ticks per quarter.
type Tick int32

// Quarter is musical time measured in quarter notes.
type Quarter float64

// Second is wall-clock time derived from the tempo map.
type Second float64

// Unit is the set of time representations a score can be expressed in.
type Unit interface {
	Tick | Quarter | Second
}

// TimeUnit tags a Unit at API boundaries (CLI flags, HTTP, config).
type TimeUnit int

const (
	UnitTick TimeUnit = iota
	UnitQuarter
	UnitSecond
)

func (u TimeUnit) String() string {
	switch u {
	case UnitTick:
		return "tick"
	case UnitQuarter:
		return "quarter"
	case UnitSecond:
		return "second"
	default:
		return "unknown"
	}
}

// ParseTimeUnit resolves a unit name. Accepts the short forms "tick",
// "quarter", "second" and their common abbreviations.
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tick", "ticks":
		return UnitTick, nil
	case "quarter", "quarters", "q":
		return UnitQuarter, nil
	case "second", "seconds", "sec", "s":
		return UnitSecond, nil
	}
	return 0, newValueError("time unit", "unknown time unit %q", s)
}

// KindOf reports the tag for a Unit type parameter.
func KindOf[T Unit]() TimeUnit {
	var zero T
	switch any(zero).(type) {
	case Tick:
		return UnitTick
	case Quarter:
		return UnitQuarter
	default:
		return UnitSecond
	}
}

// FromFloat converts a float64 into T, rounding half away from zero for Tick.
func FromFloat[T Unit](v float64) T {
	var zero T
	if _, ok := any(zero).(Tick); ok {
		return T(math.Round(v))
	}
	return T(v)
}
