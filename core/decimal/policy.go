// Package decimal keeps arbitrary-precision values on the host side of the
// sandbox and hands contracts opaque handles to them. The arithmetic follows
// the bignumber.js conventions contracts are written against: sums, products
// and non-negative integer powers are exact, quotients, square roots and
// negative powers are rounded to a fixed number of decimal places.
package decimal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/tos-network/ssc/params"
)

// Mode is a rounding mode. The numeric values are part of the sandbox API.
type Mode int

const (
	RoundUp        Mode = iota // away from zero
	RoundDown                  // towards zero
	RoundCeil                  // towards +Infinity
	RoundFloor                 // towards -Infinity
	RoundHalfUp                // nearest, ties away from zero
	RoundHalfDown              // nearest, ties towards zero
	RoundHalfEven              // nearest, ties to even
	RoundHalfCeil              // nearest, ties towards +Infinity
	RoundHalfFloor             // nearest, ties towards -Infinity
)

var modeNames = [...]string{
	"ROUND_UP", "ROUND_DOWN", "ROUND_CEIL", "ROUND_FLOOR", "ROUND_HALF_UP",
	"ROUND_HALF_DOWN", "ROUND_HALF_EVEN", "ROUND_HALF_CEIL", "ROUND_HALF_FLOOR",
}

// Valid reports whether m is one of the nine known modes.
func (m Mode) Valid() bool {
	return m >= RoundUp && m <= RoundHalfFloor
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// rounder maps m onto an apd rounder for a value of the given sign.
func (m Mode) rounder(neg bool) apd.Rounder {
	switch m {
	case RoundUp:
		return apd.RoundUp
	case RoundDown:
		return apd.RoundDown
	case RoundCeil:
		return apd.RoundCeiling
	case RoundFloor:
		return apd.RoundFloor
	case RoundHalfDown:
		return apd.RoundHalfDown
	case RoundHalfEven:
		return apd.RoundHalfEven
	case RoundHalfCeil:
		if neg {
			return apd.RoundHalfDown
		}
		return apd.RoundHalfUp
	case RoundHalfFloor:
		if neg {
			return apd.RoundHalfUp
		}
		return apd.RoundHalfDown
	default:
		return apd.RoundHalfUp
	}
}

// Policy fixes the precision of one execution. It is derived from the chain
// rules once per transaction and never changes while the execution runs.
type Policy struct {
	DecimalPlaces int32 // places kept by rounded operations
	Rounding      Mode  // default rounding mode
	MinExponent   int32 // smaller magnitudes underflow to zero
	MaxExponent   int32 // larger magnitudes overflow to Infinity
}

// NewPolicy returns the decimal policy in force under rules.
func NewPolicy(rules params.Rules) Policy {
	return Policy{
		DecimalPlaces: rules.DecimalPlaces,
		Rounding:      RoundHalfUp,
		MinExponent:   params.MinExponent,
		MaxExponent:   params.MaxExponent,
	}
}
