package decimal

import (
	"errors"
	"math"

	"github.com/cockroachdb/apd/v3"
	"github.com/dop251/goja"
)

// ConstructorName is the global under which the sandbox finds the bridge.
const ConstructorName = "BigNumber"

// ErrTooManyHandles is raised into the sandbox when an execution allocates
// more handles than the bridge allows.
var ErrTooManyHandles = errors.New("too many decimal values")

const maxPlaces = 100_000

// constructorShim makes the constructor callable both with and without new.
const constructorShim = `(function (create) {
	return function BigNumber(v) { return create(v); };
})`

// Bridge is the per-execution handle table. A handle is a plain sandbox
// object whose prototype carries the arithmetic methods; its value lives in
// the table under a numeric id and is never visible to the sandbox.
type Bridge struct {
	vm     *goja.Runtime
	policy Policy
	limit  int

	proto      *goja.Object
	ctor       *goja.Object
	rangeError goja.Value

	ids    map[*goja.Object]int
	values []*apd.Decimal
}

// NewBridge prepares a bridge for vm. It must run before any untrusted code
// so that the captured RangeError constructor is the genuine one.
func NewBridge(vm *goja.Runtime, policy Policy, limit int) (*Bridge, error) {
	b := &Bridge{
		vm:         vm,
		policy:     policy,
		limit:      limit,
		proto:      vm.NewObject(),
		rangeError: vm.Get("RangeError"),
		ids:        make(map[*goja.Object]int),
	}
	shim, err := vm.RunString(constructorShim)
	if err != nil {
		return nil, err
	}
	wrap, ok := goja.AssertFunction(shim)
	if !ok {
		return nil, errors.New("decimal constructor shim is not a function")
	}
	ctor, err := wrap(goja.Undefined(), vm.ToValue(b.construct))
	if err != nil {
		return nil, err
	}
	b.ctor = ctor.ToObject(vm)
	if err := b.install(); err != nil {
		return nil, err
	}
	return b, nil
}

// Constructor returns the sandbox BigNumber function.
func (b *Bridge) Constructor() *goja.Object {
	return b.ctor
}

// Policy returns the precision policy of this execution.
func (b *Bridge) Policy() Policy {
	return b.policy
}

// Len returns the number of live handles.
func (b *Bridge) Len() int {
	return len(b.values)
}

// Release drops every handle. The bridge must not be used afterwards.
func (b *Bridge) Release() {
	b.ids = nil
	b.values = nil
}

// Wrap returns a new handle for d.
func (b *Bridge) Wrap(d *apd.Decimal) *goja.Object {
	if b.limit > 0 && len(b.values) >= b.limit {
		panic(b.newRangeError(ErrTooManyHandles.Error()))
	}
	obj := b.vm.NewObject()
	obj.SetPrototype(b.proto)
	b.ids[obj] = len(b.values)
	b.values = append(b.values, b.policy.Clamp(d))
	return obj
}

// Lookup resolves v to the value behind it if v is a handle.
func (b *Bridge) Lookup(v goja.Value) (*apd.Decimal, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || b.ids == nil {
		return nil, false
	}
	id, ok := b.ids[obj]
	if !ok {
		return nil, false
	}
	return b.values[id], true
}

// Value converts any sandbox value to a decimal. Handles resolve to their
// value, numbers and numeric strings are parsed, everything else is NaN.
func (b *Bridge) Value(v goja.Value) *apd.Decimal {
	if d, ok := b.Lookup(v); ok {
		return d
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return NaN()
	}
	switch x := v.Export().(type) {
	case int64:
		return FromInt(x)
	case float64:
		return FromFloat(x)
	case string:
		return Parse(x)
	}
	return NaN()
}

func (b *Bridge) newRangeError(msg string) *goja.Object {
	if obj, err := b.vm.New(b.rangeError, b.vm.ToValue(msg)); err == nil {
		return obj
	}
	return b.vm.NewTypeError(msg)
}

func (b *Bridge) construct(call goja.FunctionCall) goja.Value {
	return b.Wrap(b.Value(call.Argument(0)))
}

func (b *Bridge) this(call goja.FunctionCall) *apd.Decimal {
	d, ok := b.Lookup(call.This)
	if !ok {
		panic(b.vm.NewTypeError("BigNumber method called on incompatible receiver"))
	}
	return d
}

// mode reads an optional rounding-mode argument.
func (b *Bridge) mode(v goja.Value) Mode {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return b.policy.Rounding
	}
	m := Mode(b.integer(v, 0, int64(RoundHalfFloor)))
	return m
}

// places reads an optional decimal-places argument; -1 means absent.
func (b *Bridge) places(v goja.Value) int32 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return -1
	}
	return int32(b.integer(v, 0, maxPlaces))
}

func (b *Bridge) integer(v goja.Value, min, max int64) int64 {
	f := v.ToFloat()
	if math.IsNaN(f) || f != math.Trunc(f) || f < float64(min) || f > float64(max) {
		panic(b.newRangeError("Argument out of range: " + v.String()))
	}
	return int64(f)
}

func (b *Bridge) boolean(ok bool) goja.Value {
	return b.vm.ToValue(ok)
}

// compare applies pred to the ordering of this and the first argument.
// NaN on either side compares false.
func (b *Bridge) compare(pred func(int) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		c, ok := Cmp(b.this(call), b.Value(call.Argument(0)))
		return b.boolean(ok && pred(c))
	}
}

func (b *Bridge) binary(op func(x, y *apd.Decimal) *apd.Decimal) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return b.Wrap(op(b.this(call), b.Value(call.Argument(0))))
	}
}

func (b *Bridge) unary(op func(x *apd.Decimal) *apd.Decimal) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return b.Wrap(op(b.this(call)))
	}
}

func (b *Bridge) predicate(pred func(x *apd.Decimal) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return b.boolean(pred(b.this(call)))
	}
}

type method struct {
	names []string
	fn    func(goja.FunctionCall) goja.Value
}

func (b *Bridge) methods() []method {
	p := b.policy
	return []method{
		{[]string{"plus"}, b.binary(p.Add)},
		{[]string{"minus"}, b.binary(p.Sub)},
		{[]string{"times", "multipliedBy"}, b.binary(p.Mul)},
		{[]string{"div", "dividedBy"}, b.binary(p.Quo)},
		{[]string{"pow", "exponentiatedBy"}, b.pow},
		{[]string{"sqrt", "squareRoot"}, b.unary(p.Sqrt)},
		{[]string{"abs", "absoluteValue"}, b.unary(Abs)},
		{[]string{"negated"}, b.unary(Neg)},
		{[]string{"comparedTo"}, b.comparedTo},
		{[]string{"eq", "isEqualTo"}, b.compare(func(c int) bool { return c == 0 })},
		{[]string{"gt", "isGreaterThan"}, b.compare(func(c int) bool { return c > 0 })},
		{[]string{"gte", "isGreaterThanOrEqualTo"}, b.compare(func(c int) bool { return c >= 0 })},
		{[]string{"lt", "isLessThan"}, b.compare(func(c int) bool { return c < 0 })},
		{[]string{"lte", "isLessThanOrEqualTo"}, b.compare(func(c int) bool { return c <= 0 })},
		{[]string{"isNaN"}, b.predicate(IsNaN)},
		{[]string{"isFinite"}, b.predicate(IsFinite)},
		{[]string{"isInteger"}, b.predicate(IsInteger)},
		{[]string{"isZero"}, b.predicate(func(x *apd.Decimal) bool { return IsFinite(x) && x.IsZero() })},
		{[]string{"isPositive"}, b.predicate(func(x *apd.Decimal) bool { return !IsNaN(x) && !x.Negative })},
		{[]string{"isNegative"}, b.predicate(func(x *apd.Decimal) bool { return !IsNaN(x) && x.Negative })},
		{[]string{"toFixed"}, b.toFixed},
		{[]string{"dp", "decimalPlaces"}, b.decimalPlaces},
		{[]string{"integerValue"}, b.integerValue},
		{[]string{"toNumber"}, b.toNumber},
		{[]string{"toString"}, b.toString},
		{[]string{"valueOf", "toJSON"}, b.valueOf},
	}
}

func (b *Bridge) install() error {
	for _, m := range b.methods() {
		fn := b.vm.ToValue(m.fn)
		for _, name := range m.names {
			if err := b.proto.DefineDataProperty(name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
				return err
			}
		}
	}
	if err := b.proto.DefineDataProperty("constructor", b.ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}
	if err := b.ctor.Set("prototype", b.proto); err != nil {
		return err
	}
	statics := []struct {
		name string
		fn   func(goja.FunctionCall) goja.Value
	}{
		{"min", b.min},
		{"max", b.max},
		{"isBigNumber", b.isBigNumber},
	}
	for _, s := range statics {
		if err := b.ctor.Set(s.name, s.fn); err != nil {
			return err
		}
	}
	for m := RoundUp; m <= RoundHalfFloor; m++ {
		if err := b.ctor.DefineDataProperty(m.String(), b.vm.ToValue(int(m)), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) pow(call goja.FunctionCall) goja.Value {
	x := b.this(call)
	n := b.Value(call.Argument(0))
	if !IsInteger(n) {
		panic(b.vm.NewTypeError(errNotInteger.Error()))
	}
	exp, err := n.Int64()
	if err != nil {
		panic(b.newRangeError(errPowerTooLarge.Error()))
	}
	r, err := b.policy.Pow(x, exp)
	if err != nil {
		panic(b.newRangeError(err.Error()))
	}
	return b.Wrap(r)
}

func (b *Bridge) comparedTo(call goja.FunctionCall) goja.Value {
	c, ok := Cmp(b.this(call), b.Value(call.Argument(0)))
	if !ok {
		return goja.Null()
	}
	return b.vm.ToValue(c)
}

func (b *Bridge) toFixed(call goja.FunctionCall) goja.Value {
	x := b.this(call)
	dp := b.places(call.Argument(0))
	return b.vm.ToValue(b.policy.Fixed(x, dp, b.mode(call.Argument(1))))
}

func (b *Bridge) decimalPlaces(call goja.FunctionCall) goja.Value {
	x := b.this(call)
	if dp := b.places(call.Argument(0)); dp >= 0 {
		return b.Wrap(b.policy.Round(x, dp, b.mode(call.Argument(1))))
	}
	n, ok := Places(x)
	if !ok {
		return goja.Null()
	}
	return b.vm.ToValue(n)
}

func (b *Bridge) integerValue(call goja.FunctionCall) goja.Value {
	return b.Wrap(b.policy.Round(b.this(call), 0, b.mode(call.Argument(0))))
}

func (b *Bridge) toNumber(call goja.FunctionCall) goja.Value {
	return b.vm.ToValue(Float64(b.this(call)))
}

func (b *Bridge) toString(call goja.FunctionCall) goja.Value {
	x := b.this(call)
	if base := call.Argument(0); !goja.IsUndefined(base) {
		return b.vm.ToValue(b.policy.Radix(x, int(b.integer(base, 2, 36))))
	}
	return b.vm.ToValue(String(x))
}

func (b *Bridge) valueOf(call goja.FunctionCall) goja.Value {
	return b.vm.ToValue(ValueOf(b.this(call)))
}

func (b *Bridge) arguments(call goja.FunctionCall) []*apd.Decimal {
	values := make([]*apd.Decimal, len(call.Arguments))
	for i, v := range call.Arguments {
		values[i] = b.Value(v)
	}
	return values
}

func (b *Bridge) min(call goja.FunctionCall) goja.Value {
	return b.Wrap(Min(b.arguments(call)...))
}

func (b *Bridge) max(call goja.FunctionCall) goja.Value {
	return b.Wrap(Max(b.arguments(call)...))
}

func (b *Bridge) isBigNumber(call goja.FunctionCall) goja.Value {
	_, ok := b.Lookup(call.Argument(0))
	return b.boolean(ok)
}
