package decimal

import (
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

const (
	maxPower       = 1_000_000 // largest accepted |n| in Pow
	maxPowerDigits = 200_000   // largest coefficient Pow will build
)

var (
	errPowerTooLarge = errors.New("exponent out of range")
	errNotInteger    = errors.New("exponent not an integer")

	numeric  = regexp.MustCompile(`^-?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?$`)
	prefixed = regexp.MustCompile(`^(-?)0([xXoObB])([0-9A-Za-z]+(?:\.[0-9A-Za-z]*)?)$`)

	bigOne = big.NewInt(1)
	bigTen = big.NewInt(10)
)

// NaN returns a fresh quiet NaN.
func NaN() *apd.Decimal { return &apd.Decimal{Form: apd.NaN} }

// Inf returns a fresh infinity of the given sign.
func Inf(neg bool) *apd.Decimal { return &apd.Decimal{Form: apd.Infinite, Negative: neg} }

func zero(neg bool) *apd.Decimal { return &apd.Decimal{Negative: neg} }

// IsNaN reports whether d is either NaN form.
func IsNaN(d *apd.Decimal) bool {
	return d.Form == apd.NaN || d.Form == apd.NaNSignaling
}

// IsFinite reports whether d is neither NaN nor infinite.
func IsFinite(d *apd.Decimal) bool {
	return d.Form == apd.Finite
}

// IsInteger reports whether d is a finite whole number.
func IsInteger(d *apd.Decimal) bool {
	if !IsFinite(d) {
		return false
	}
	if d.IsZero() || d.Exponent >= 0 {
		return true
	}
	r, _ := new(apd.Decimal).Reduce(d)
	return r.Exponent >= 0
}

// Parse converts a numeric string. Strings that are not numeric yield NaN.
func Parse(s string) *apd.Decimal {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[0] == '+' {
		s = s[1:]
	}
	switch s {
	case "NaN":
		return NaN()
	case "Infinity":
		return Inf(false)
	case "-Infinity":
		return Inf(true)
	}
	if m := prefixed.FindStringSubmatch(s); m != nil {
		return parseRadix(m[3], m[2], m[1] == "-")
	}
	if !numeric.MatchString(s) {
		return NaN()
	}
	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(s, "-")
	if strings.HasPrefix(body, ".") {
		body = "0" + body
	}
	if i := strings.IndexAny(body, "eE"); i > 0 && body[i-1] == '.' {
		body = body[:i-1] + body[i:]
	}
	body = strings.TrimSuffix(body, ".")

	d, _, err := apd.NewFromString(body)
	if err != nil {
		// Only exponent overflow reaches here; the shape was checked above.
		if strings.Contains(body, "e-") || strings.Contains(body, "E-") {
			return zero(neg)
		}
		return Inf(neg)
	}
	d.Negative = neg
	return d
}

// parseRadix converts the digits of a 0x, 0o or 0b literal. Every such
// fraction has a finite decimal expansion, so the result is exact.
func parseRadix(body, prefix string, neg bool) *apd.Decimal {
	bits := map[string]uint{"x": 4, "o": 3, "b": 1}[strings.ToLower(prefix)]
	frac := 0
	if i := strings.IndexByte(body, '.'); i >= 0 {
		frac = len(body) - i - 1
		body = body[:i] + body[i+1:]
	}
	n, ok := new(big.Int).SetString(body, 1<<bits)
	if !ok {
		return NaN()
	}
	if n.Sign() == 0 {
		return zero(neg)
	}
	// n / 2^(bits*frac) == n * 5^(bits*frac) / 10^(bits*frac)
	shift := int64(bits) * int64(frac)
	n.Mul(n, new(big.Int).Exp(big.NewInt(5), big.NewInt(shift), nil))
	d := apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(n), int32(-shift))
	d.Negative = neg
	r, _ := new(apd.Decimal).Reduce(d)
	return r
}

// FromFloat converts a JavaScript number using its shortest round-trip
// representation.
func FromFloat(f float64) *apd.Decimal {
	switch {
	case math.IsNaN(f):
		return NaN()
	case math.IsInf(f, 0):
		return Inf(f < 0)
	}
	return Parse(strconv.FormatFloat(f, 'g', -1, 64))
}

// FromInt converts an integer.
func FromInt(n int64) *apd.Decimal {
	return apd.New(n, 0)
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(n), nil)
}

func coeff(d *apd.Decimal) *big.Int {
	return d.Coeff.MathBigInt()
}

func signed(d *apd.Decimal) *big.Int {
	c := coeff(d)
	if d.Negative {
		c.Neg(c)
	}
	return c
}

// finite builds c×10^exp, collapsing values outside the policy's exponent
// range to Infinity or zero.
func (p Policy) finite(c *big.Int, exp int64, neg bool) *apd.Decimal {
	if c.Sign() == 0 {
		return zero(neg)
	}
	bi := new(apd.BigInt).SetMathBigInt(c)
	adj := exp + apd.NumDigits(bi) - 1
	switch {
	case adj > int64(p.MaxExponent):
		return Inf(neg)
	case adj < int64(p.MinExponent):
		return zero(neg)
	}
	d := apd.NewWithBigInt(bi, int32(exp))
	d.Negative = neg
	return d
}

// shouldRoundUp decides whether the truncated magnitude q must be bumped by
// one. half compares the discarded fraction with one half.
func shouldRoundUp(mode Mode, q *big.Int, neg bool, half int) bool {
	return mode.rounder(neg).ShouldAddOne(new(apd.BigInt).SetMathBigInt(q), neg, half)
}

// quoRound returns num/den rounded to an integer with mode. num and den are
// non-negative.
func quoRound(num, den *big.Int, neg bool, mode Mode) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		half := new(big.Int).Lsh(r, 1).Cmp(den)
		if shouldRoundUp(mode, q, neg, half) {
			q.Add(q, bigOne)
		}
	}
	return q
}

// Add returns x+y exactly.
func (p Policy) Add(x, y *apd.Decimal) *apd.Decimal {
	switch {
	case IsNaN(x) || IsNaN(y):
		return NaN()
	case x.Form == apd.Infinite && y.Form == apd.Infinite:
		if x.Negative != y.Negative {
			return NaN()
		}
		return Inf(x.Negative)
	case x.Form == apd.Infinite:
		return Inf(x.Negative)
	case y.Form == apd.Infinite:
		return Inf(y.Negative)
	}
	if x.IsZero() && y.IsZero() {
		return zero(x.Negative && y.Negative)
	}
	exp := x.Exponent
	if y.Exponent < exp {
		exp = y.Exponent
	}
	a, b := signed(x), signed(y)
	if d := int64(x.Exponent) - int64(exp); d > 0 {
		a.Mul(a, pow10(d))
	}
	if d := int64(y.Exponent) - int64(exp); d > 0 {
		b.Mul(b, pow10(d))
	}
	sum := a.Add(a, b)
	neg := sum.Sign() < 0
	return p.finite(sum.Abs(sum), int64(exp), neg)
}

// Sub returns x-y exactly.
func (p Policy) Sub(x, y *apd.Decimal) *apd.Decimal {
	return p.Add(x, Neg(y))
}

// Mul returns x×y exactly.
func (p Policy) Mul(x, y *apd.Decimal) *apd.Decimal {
	if IsNaN(x) || IsNaN(y) {
		return NaN()
	}
	neg := x.Negative != y.Negative
	if x.Form == apd.Infinite || y.Form == apd.Infinite {
		if x.IsZero() || y.IsZero() {
			return NaN()
		}
		return Inf(neg)
	}
	c := new(big.Int).Mul(coeff(x), coeff(y))
	return p.finite(c, int64(x.Exponent)+int64(y.Exponent), neg)
}

// Quo returns x/y rounded to the policy's decimal places and rounding mode.
func (p Policy) Quo(x, y *apd.Decimal) *apd.Decimal {
	return p.QuoRound(x, y, p.DecimalPlaces, p.Rounding)
}

// QuoRound returns x/y rounded to dp places with mode.
func (p Policy) QuoRound(x, y *apd.Decimal, dp int32, mode Mode) *apd.Decimal {
	neg := x.Negative != y.Negative
	switch {
	case IsNaN(x) || IsNaN(y):
		return NaN()
	case x.Form == apd.Infinite && y.Form == apd.Infinite:
		return NaN()
	case x.Form == apd.Infinite:
		return Inf(neg)
	case y.Form == apd.Infinite:
		return zero(neg)
	case y.IsZero():
		if x.IsZero() {
			return NaN()
		}
		return Inf(neg)
	}
	num, den := coeff(x), coeff(y)
	k := int64(x.Exponent) - int64(y.Exponent) + int64(dp)
	if k >= 0 {
		num.Mul(num, pow10(k))
	} else {
		den.Mul(den, pow10(-k))
	}
	return p.finite(quoRound(num, den, neg, mode), -int64(dp), neg)
}

// Sqrt returns the square root of x rounded to the policy's decimal places.
// Negative inputs yield NaN.
func (p Policy) Sqrt(x *apd.Decimal) *apd.Decimal {
	switch {
	case IsNaN(x):
		return NaN()
	case x.IsZero():
		return zero(x.Negative)
	case x.Negative:
		return NaN()
	case x.Form == apd.Infinite:
		return Inf(false)
	}
	dp := int64(p.DecimalPlaces)
	num, den := coeff(x), big.NewInt(1)
	if e := int64(x.Exponent) + 2*dp; e >= 0 {
		num.Mul(num, pow10(e))
	} else {
		den = pow10(-e)
	}
	// root = floor(sqrt(num/den)) = floor(isqrt(num*den)/den)
	root := new(big.Int).Mul(num, den)
	root.Sqrt(root)
	root.Quo(root, den)

	sq := new(big.Int).Mul(root, root)
	if sq.Mul(sq, den).Cmp(num) != 0 {
		// Compare num/den with (root+1/2)^2.
		mid := new(big.Int).Lsh(root, 1)
		mid.Add(mid, bigOne)
		mid.Mul(mid, mid)
		mid.Mul(mid, den)
		half := new(big.Int).Lsh(num, 2).Cmp(mid)
		if shouldRoundUp(p.Rounding, root, false, half) {
			root.Add(root, bigOne)
		}
	}
	return p.finite(root, -dp, false)
}

// Pow raises x to the integer power n. Non-negative powers are exact,
// negative powers are the rounded reciprocal.
func (p Policy) Pow(x *apd.Decimal, n int64) (*apd.Decimal, error) {
	if n > maxPower || n < -maxPower {
		return nil, errPowerTooLarge
	}
	if n == 0 {
		return FromInt(1), nil
	}
	if IsNaN(x) {
		return NaN(), nil
	}
	neg := x.Negative && n%2 != 0
	abs := n
	if abs < 0 {
		abs = -abs
	}
	var result *apd.Decimal
	switch {
	case x.Form == apd.Infinite:
		result = Inf(neg)
	case x.IsZero():
		result = zero(neg)
	default:
		if x.NumDigits()*abs > maxPowerDigits && !isPowerOfTen(x) {
			return nil, errPowerTooLarge
		}
		result = FromInt(1)
		base := Abs(x)
		for e := abs; ; {
			if e&1 == 1 {
				result = p.Mul(result, base)
			}
			e >>= 1
			if e == 0 || !IsFinite(result) {
				break
			}
			base = p.Mul(base, base)
			if !IsFinite(base) || base.IsZero() {
				// Every remaining factor is at least as far out of range.
				result = p.Mul(result, base)
				break
			}
		}
		if IsFinite(result) && result.IsZero() {
			result = zero(neg)
		} else {
			result = setSign(result, neg)
		}
	}
	if n < 0 {
		return p.Quo(FromInt(1), result), nil
	}
	return result, nil
}

func isPowerOfTen(x *apd.Decimal) bool {
	r, _ := new(apd.Decimal).Reduce(x)
	return r.Coeff.IsInt64() && r.Coeff.Int64() == 1
}

func setSign(d *apd.Decimal, neg bool) *apd.Decimal {
	r := new(apd.Decimal).Set(d)
	r.Negative = neg
	return r
}

// Round returns x rounded to dp decimal places with mode. Values that
// already fit are returned unchanged.
func (p Policy) Round(x *apd.Decimal, dp int32, mode Mode) *apd.Decimal {
	if !IsFinite(x) || x.Exponent >= -dp {
		return new(apd.Decimal).Set(x)
	}
	den := pow10(int64(-dp) - int64(x.Exponent))
	q := quoRound(coeff(x), den, x.Negative, mode)
	return p.finite(q, -int64(dp), x.Negative)
}

// Neg returns -x.
func Neg(x *apd.Decimal) *apd.Decimal {
	r := new(apd.Decimal).Set(x)
	if !IsNaN(r) {
		r.Negative = !r.Negative
	}
	return r
}

// Abs returns |x|.
func Abs(x *apd.Decimal) *apd.Decimal {
	r := new(apd.Decimal).Set(x)
	r.Negative = false
	return r
}

// Cmp compares x and y. ok is false when either operand is NaN.
func Cmp(x, y *apd.Decimal) (c int, ok bool) {
	if IsNaN(x) || IsNaN(y) {
		return 0, false
	}
	return x.Cmp(y), true
}

// Min returns the smallest of values, NaN if any of them is NaN.
func Min(values ...*apd.Decimal) *apd.Decimal {
	return extreme(values, -1)
}

// Max returns the largest of values, NaN if any of them is NaN.
func Max(values ...*apd.Decimal) *apd.Decimal {
	return extreme(values, 1)
}

func extreme(values []*apd.Decimal, want int) *apd.Decimal {
	if len(values) == 0 {
		return NaN()
	}
	best := values[0]
	for _, v := range values {
		c, ok := Cmp(v, best)
		if !ok {
			return NaN()
		}
		if c == want {
			best = v
		}
	}
	return new(apd.Decimal).Set(best)
}
