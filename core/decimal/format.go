package decimal

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Exponents at or beyond these bounds switch String to exponential notation.
const (
	expPosLimit = 21
	expNegLimit = -7
)

// Clamp collapses a value outside the policy's exponent range to Infinity or
// zero.
func (p Policy) Clamp(d *apd.Decimal) *apd.Decimal {
	if !IsFinite(d) || d.IsZero() {
		return new(apd.Decimal).Set(d)
	}
	return p.finite(coeff(d), int64(d.Exponent), d.Negative)
}

// digits returns the significant digits of |d| without trailing zeros and
// the exponent of the last digit.
func digits(d *apd.Decimal) (string, int64) {
	r, _ := new(apd.Decimal).Reduce(d)
	return r.Coeff.String(), int64(r.Exponent)
}

func special(d *apd.Decimal) (string, bool) {
	switch {
	case IsNaN(d):
		return "NaN", true
	case d.Form == apd.Infinite && d.Negative:
		return "-Infinity", true
	case d.Form == apd.Infinite:
		return "Infinity", true
	}
	return "", false
}

// String formats d the way bignumber.js toString does: exponential notation
// for very large or very small magnitudes, plain notation otherwise. Negative
// zero prints as "0".
func String(d *apd.Decimal) string {
	if s, ok := special(d); ok {
		return s
	}
	if d.IsZero() {
		return "0"
	}
	s, exp := digits(d)
	adj := exp + int64(len(s)) - 1

	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	if adj >= expPosLimit || adj <= expNegLimit {
		b.WriteByte(s[0])
		if len(s) > 1 {
			b.WriteByte('.')
			b.WriteString(s[1:])
		}
		b.WriteByte('e')
		if adj >= 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.FormatInt(adj, 10))
		return b.String()
	}
	b.WriteString(plain(s, exp))
	return b.String()
}

// ValueOf is String except that negative zero keeps its sign. It is the
// form written by JSON serialization.
func ValueOf(d *apd.Decimal) string {
	if IsFinite(d) && d.IsZero() && d.Negative {
		return "-0"
	}
	return String(d)
}

// plain renders digits s scaled by 10^exp without an exponent.
func plain(s string, exp int64) string {
	if exp >= 0 {
		return s + strings.Repeat("0", int(exp))
	}
	point := int64(len(s)) + exp
	if point > 0 {
		return s[:point] + "." + s[point:]
	}
	return "0." + strings.Repeat("0", int(-point)) + s
}

// Fixed formats d in plain notation. When dp is non-negative the value is
// rounded to dp places with mode and padded with zeros to exactly dp places.
func (p Policy) Fixed(d *apd.Decimal, dp int32, mode Mode) string {
	if s, ok := special(d); ok {
		return s
	}
	v := d
	if dp >= 0 {
		v = p.Round(d, dp, mode)
		if s, ok := special(v); ok {
			return s
		}
	}
	var out string
	if v.IsZero() {
		out = "0"
	} else {
		s, exp := digits(v)
		out = plain(s, exp)
	}
	if dp > 0 {
		frac := 0
		if i := strings.IndexByte(out, '.'); i >= 0 {
			frac = len(out) - i - 1
		} else {
			out += "."
		}
		out += strings.Repeat("0", int(dp)-frac)
	}
	if v.Negative && !v.IsZero() {
		return "-" + out
	}
	return out
}

// Places returns the number of significant decimal places of d. ok is false
// for NaN and infinities.
func Places(d *apd.Decimal) (n int64, ok bool) {
	if !IsFinite(d) {
		return 0, false
	}
	if d.IsZero() {
		return 0, true
	}
	_, exp := digits(d)
	if exp >= 0 {
		return 0, true
	}
	return -exp, true
}

// Float64 converts d to the nearest JavaScript number. Magnitudes beyond
// the float64 range become ±Inf or ±0.
func Float64(d *apd.Decimal) float64 {
	f, _ := strconv.ParseFloat(ValueOf(d), 64)
	return f
}

// Radix formats d in base, between 2 and 36, the way bignumber.js
// toString(base) does: plain notation with the fraction rounded to the
// policy's decimal places counted in base digits.
func (p Policy) Radix(d *apd.Decimal, base int) string {
	if s, ok := special(d); ok {
		return s
	}
	num, den := coeff(d), big.NewInt(1)
	if d.Exponent >= 0 {
		num.Mul(num, pow10(int64(d.Exponent)))
	} else {
		den = pow10(-int64(d.Exponent))
	}
	places := int(p.DecimalPlaces)
	num.Mul(num, new(big.Int).Exp(big.NewInt(int64(base)), big.NewInt(int64(places)), nil))
	q := quoRound(num, den, d.Negative, p.Rounding)
	if q.Sign() == 0 {
		return "0"
	}
	s := q.Text(base)
	if places > 0 {
		if len(s) <= places {
			s = strings.Repeat("0", places-len(s)+1) + s
		}
		s = s[:len(s)-places] + "." + s[len(s)-places:]
		s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	}
	if d.Negative {
		return "-" + s
	}
	return s
}
