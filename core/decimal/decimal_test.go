package decimal

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/dop251/goja"
	"github.com/tos-network/ssc/params"
)

var (
	legacyPolicy = NewPolicy(params.LegacyChainConfig.Rules(0))
	modernPolicy = NewPolicy(params.TestChainConfig.Rules(0))
)

func dec(s string) *apd.Decimal {
	return Parse(s)
}

func TestParseAndString(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1", "1"},
		{"+1.50", "1.5"},
		{"-0.000001", "-0.000001"},
		{"0.0000001", "1e-7"},
		{"123456789012345678901", "123456789012345678901"},
		{"1234567890123456789012", "1.234567890123456789012e+21"},
		{"1e21", "1e+21"},
		{"100000000000000000000", "100000000000000000000"},
		{".5", "0.5"},
		{"5.", "5"},
		{"-0", "0"},
		{"NaN", "NaN"},
		{"-Infinity", "-Infinity"},
		{"abc", "NaN"},
		{"1,000", "NaN"},
		{"", "NaN"},
	}
	for _, tc := range tests {
		if have := String(dec(tc.in)); have != tc.want {
			t.Errorf("String(Parse(%q)): have %q want %q", tc.in, have, tc.want)
		}
	}
	if have := ValueOf(dec("-0")); have != "-0" {
		t.Errorf("ValueOf(-0): have %q", have)
	}
}

func TestParseRadixPrefix(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0xff", "255"},
		{"0XFF", "255"},
		{"-0x1f", "-31"},
		{"+0x10", "16"},
		{"0o17", "15"},
		{"0b101.1", "5.5"},
		{"0xff.8", "255.5"},
		{"0x0", "0"},
		{"0x", "NaN"},
		{"0x.8", "NaN"},
		{"0xfg", "NaN"},
		{"0b102", "NaN"},
		{"0o8", "NaN"},
	}
	for _, tc := range tests {
		if have := String(dec(tc.in)); have != tc.want {
			t.Errorf("String(Parse(%q)): have %q want %q", tc.in, have, tc.want)
		}
	}
}

func TestRadix(t *testing.T) {
	tests := []struct {
		policy Policy
		in     string
		base   int
		want   string
	}{
		{modernPolicy, "255", 16, "ff"},
		{modernPolicy, "35", 36, "z"},
		{modernPolicy, "-5.5", 2, "-101.1"},
		{modernPolicy, "0.1", 2, "0.0001100110011001101"},
		{modernPolicy, "1e21", 10, "1000000000000000000000"},
		{modernPolicy, "0", 8, "0"},
		{modernPolicy, "NaN", 16, "NaN"},
		{modernPolicy, "-Infinity", 2, "-Infinity"},
		{Policy{DecimalPlaces: 3, Rounding: RoundHalfUp}, "0.5", 3, "0.112"},
		{Policy{DecimalPlaces: 3, Rounding: RoundDown}, "0.5", 3, "0.111"},
		{Policy{DecimalPlaces: 0, Rounding: RoundHalfUp}, "2.5", 2, "11"},
	}
	for _, tc := range tests {
		if have := tc.policy.Radix(dec(tc.in), tc.base); have != tc.want {
			t.Errorf("Radix(%s, %d): have %q want %q", tc.in, tc.base, have, tc.want)
		}
	}
}

func TestFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{123.456, "123.456"},
		{-2.5e-8, "-2.5e-8"},
	}
	for _, tc := range tests {
		if have := String(FromFloat(tc.in)); have != tc.want {
			t.Errorf("FromFloat(%v): have %q want %q", tc.in, have, tc.want)
		}
	}
}

func TestExactArithmetic(t *testing.T) {
	p := modernPolicy
	if have := String(p.Add(dec("0.1"), dec("0.2"))); have != "0.3" {
		t.Fatalf("0.1+0.2: have %s", have)
	}
	if have := String(p.Sub(dec("1"), dec("0.000000000000000000000001"))); have != "0.999999999999999999999999" {
		t.Fatalf("sub: have %s", have)
	}
	if have := String(p.Mul(dec("1.5"), dec("-3"))); have != "-4.5" {
		t.Fatalf("mul: have %s", have)
	}
	if have := String(p.Add(Inf(false), Inf(true))); have != "NaN" {
		t.Fatalf("inf-inf: have %s", have)
	}
	if have := String(p.Mul(Inf(false), dec("0"))); have != "NaN" {
		t.Fatalf("inf*0: have %s", have)
	}
}

func TestDivisionRounding(t *testing.T) {
	tests := []struct {
		policy Policy
		x, y   string
		want   string
	}{
		{legacyPolicy, "1", "3", "0.333"},
		{legacyPolicy, "2", "3", "0.667"},
		{legacyPolicy, "-2", "3", "-0.667"},
		{modernPolicy, "1", "3", "0.33333333333333333333"},
		{modernPolicy, "10", "4", "2.5"},
		{modernPolicy, "1", "0", "Infinity"},
		{modernPolicy, "-1", "0", "-Infinity"},
		{modernPolicy, "0", "0", "NaN"},
		{modernPolicy, "5", "Infinity", "0"},
	}
	for _, tc := range tests {
		if have := String(tc.policy.Quo(dec(tc.x), dec(tc.y))); have != tc.want {
			t.Errorf("%s/%s at %d places: have %s want %s", tc.x, tc.y, tc.policy.DecimalPlaces, have, tc.want)
		}
	}
}

func TestRoundingModes(t *testing.T) {
	p := modernPolicy
	tests := []struct {
		in   string
		mode Mode
		want string
	}{
		{"2.5", RoundUp, "3"},
		{"-2.5", RoundUp, "-3"},
		{"2.5", RoundDown, "2"},
		{"-2.1", RoundCeil, "-2"},
		{"-2.1", RoundFloor, "-3"},
		{"2.5", RoundHalfUp, "3"},
		{"-2.5", RoundHalfUp, "-3"},
		{"2.5", RoundHalfDown, "2"},
		{"2.5", RoundHalfEven, "2"},
		{"3.5", RoundHalfEven, "4"},
		{"-2.5", RoundHalfCeil, "-2"},
		{"2.5", RoundHalfCeil, "3"},
		{"-2.5", RoundHalfFloor, "-3"},
		{"2.5", RoundHalfFloor, "2"},
		{"0.0001", RoundUp, "1"},
	}
	for _, tc := range tests {
		if have := String(p.Round(dec(tc.in), 0, tc.mode)); have != tc.want {
			t.Errorf("round(%s, %v): have %s want %s", tc.in, tc.mode, have, tc.want)
		}
	}
}

func TestSqrt(t *testing.T) {
	if have := String(legacyPolicy.Sqrt(dec("2"))); have != "1.414" {
		t.Fatalf("sqrt(2) legacy: have %s", have)
	}
	if have := String(modernPolicy.Sqrt(dec("2"))); have != "1.4142135623730950488" {
		t.Fatalf("sqrt(2): have %s", have)
	}
	if have := String(modernPolicy.Sqrt(dec("0.0004"))); have != "0.02" {
		t.Fatalf("sqrt(0.0004): have %s", have)
	}
	if have := String(modernPolicy.Sqrt(dec("-1"))); have != "NaN" {
		t.Fatalf("sqrt(-1): have %s", have)
	}
}

func TestPow(t *testing.T) {
	p := modernPolicy
	r, err := p.Pow(dec("1.1"), 2)
	if err != nil || String(r) != "1.21" {
		t.Fatalf("1.1^2: have %v, %v", r, err)
	}
	r, err = p.Pow(dec("-2"), 3)
	if err != nil || String(r) != "-8" {
		t.Fatalf("-2^3: have %v, %v", r, err)
	}
	r, err = legacyPolicy.Pow(dec("3"), -1)
	if err != nil || String(r) != "0.333" {
		t.Fatalf("3^-1: have %v, %v", r, err)
	}
	r, err = p.Pow(dec("10"), 200000)
	if err != nil || String(r) != "Infinity" {
		t.Fatalf("overflow: have %v, %v", r, err)
	}
	if _, err = p.Pow(dec("1.0000001"), 999999); err == nil {
		t.Fatalf("expected oversized power to fail")
	}
}

func TestFixedAndPlaces(t *testing.T) {
	p := modernPolicy
	if have := p.Fixed(dec("1.005"), 2, RoundHalfUp); have != "1.01" {
		t.Fatalf("toFixed(2): have %s", have)
	}
	if have := p.Fixed(dec("1"), 3, RoundHalfUp); have != "1.000" {
		t.Fatalf("toFixed pad: have %s", have)
	}
	if have := p.Fixed(dec("-0.001"), 2, RoundHalfUp); have != "0.00" {
		t.Fatalf("toFixed negative zero: have %s", have)
	}
	if have := p.Fixed(dec("1e21"), -1, RoundHalfUp); have != "1000000000000000000000" {
		t.Fatalf("toFixed plain: have %s", have)
	}
	if n, ok := Places(dec("1.2300")); !ok || n != 2 {
		t.Fatalf("places: have %d, %v", n, ok)
	}
	if _, ok := Places(NaN()); ok {
		t.Fatalf("places of NaN should be undefined")
	}
}

func TestExponentRange(t *testing.T) {
	p := Policy{DecimalPlaces: 3, Rounding: RoundHalfUp, MinExponent: -10, MaxExponent: 10}
	if have := String(p.Mul(dec("1e6"), dec("1e6"))); have != "Infinity" {
		t.Fatalf("overflow: have %s", have)
	}
	if have := String(p.Clamp(dec("1e-11"))); have != "0" {
		t.Fatalf("underflow: have %s", have)
	}
}

func newBridge(t *testing.T, policy Policy, limit int) (*goja.Runtime, *Bridge) {
	t.Helper()
	vm := goja.New()
	b, err := NewBridge(vm, policy, limit)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	vm.Set(ConstructorName, b.Constructor())
	return vm, b
}

func TestBridgeScript(t *testing.T) {
	vm, b := newBridge(t, modernPolicy, 0)
	tests := []struct{ src, want string }{
		{`BigNumber('0.1').plus('0.2').toString()`, "0.3"},
		{`new BigNumber(10).dividedBy(3).toFixed(4)`, "3.3333"},
		{`BigNumber(2).pow(10).toString()`, "1024"},
		{`BigNumber('1.23456').dp(2, BigNumber.ROUND_DOWN).toString()`, "1.23"},
		{`BigNumber('1.5').integerValue(BigNumber.ROUND_HALF_EVEN).toString()`, "2"},
		{`String(BigNumber('3').gt(2) && BigNumber('3').lte('3'))`, "true"},
		{`String(BigNumber('NaN').comparedTo(1))`, "null"},
		{`BigNumber.max(1, '5', BigNumber(3)).toString()`, "5"},
		{`String(BigNumber.isBigNumber(BigNumber(1)) && !BigNumber.isBigNumber(1))`, "true"},
		{`JSON.stringify({v: BigNumber('-0')})`, `{"v":"-0"}`},
		{`'' + BigNumber('12.50')`, "12.5"},
		{`String(BigNumber(1) instanceof BigNumber)`, "true"},
		{`String(BigNumber.ROUND_HALF_FLOOR)`, "8"},
		{`Object.keys(BigNumber(1)).length + ''`, "0"},
		{`String(BigNumber('0.1').toNumber())`, "0.1"},
		{`BigNumber(255).toString(16)`, "ff"},
		{`BigNumber('0xff').plus(1).toString()`, "256"},
		{`BigNumber('-0b11').toString(2)`, "-11"},
	}
	for _, tc := range tests {
		v, err := vm.RunString(tc.src)
		if err != nil {
			t.Fatalf("%s: %v", tc.src, err)
		}
		if have := v.String(); have != tc.want {
			t.Errorf("%s: have %q want %q", tc.src, have, tc.want)
		}
	}
	v, _ := vm.RunString(`BigNumber('7.25')`)
	d, ok := b.Lookup(v)
	if !ok || String(d) != "7.25" {
		t.Fatalf("lookup: have %v, %v", d, ok)
	}
}

func TestBridgeErrors(t *testing.T) {
	vm, _ := newBridge(t, modernPolicy, 0)
	for _, src := range []string{
		`BigNumber(2).pow('1.5')`,
		`BigNumber(2).toFixed(-1)`,
		`BigNumber(2).dp(1, 9)`,
		`BigNumber.prototype.plus.call({}, 1)`,
		`BigNumber(2).toString(37)`,
		`BigNumber(2).toString(1)`,
	} {
		if _, err := vm.RunString(src); err == nil {
			t.Errorf("%s: expected an error", src)
		}
	}
	v, err := vm.RunString(`try { BigNumber(2).dp(1, 9); 'none' } catch (e) { e.name }`)
	if err != nil || v.String() != "RangeError" {
		t.Fatalf("caught error: have %v, %v", v, err)
	}
}

func TestBridgeHandleLimit(t *testing.T) {
	vm, b := newBridge(t, modernPolicy, 3)
	if _, err := vm.RunString(`var a = BigNumber(1); var c = a.plus(1); a.plus(c)`); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	if _, err := vm.RunString(`BigNumber(4)`); err == nil {
		t.Fatalf("expected handle limit error")
	}
	if b.Len() != 3 {
		t.Fatalf("handle count: have %d want 3", b.Len())
	}
	b.Release()
	if _, ok := b.Lookup(vm.Get("a")); ok {
		t.Fatalf("handles should be gone after release")
	}
}
