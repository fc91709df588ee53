package isolate

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dop251/goja"
)

// Bounds on what a single builtin call may build. Native builtins run to
// completion without observing interrupts, so their output is limited up
// front instead of by the watchdogs.
const (
	MaxStringLength = 1 << 27 // code units produced by repeat, padStart and padEnd
	MaxArrayLength  = 1 << 24 // elements a builtin may walk or a value may carry out
	maxNesting      = 1024    // levels JSON.stringify may descend
)

// hiddenGlobals are removed from every runtime. Their constructors allocate
// the requested length eagerly.
var hiddenGlobals = []string{
	"ArrayBuffer", "SharedArrayBuffer", "DataView",
	"Int8Array", "Uint8Array", "Uint8ClampedArray",
	"Int16Array", "Uint16Array", "Int32Array", "Uint32Array",
	"Float32Array", "Float64Array",
}

// arrayMethods walk every index up to the receiver's length.
var arrayMethods = []string{
	"join", "toLocaleString", "fill", "copyWithin", "reverse", "sort",
	"indexOf", "lastIndexOf", "includes", "slice", "splice", "concat",
	"forEach", "map", "filter", "some", "every", "reduce", "reduceRight",
	"find", "findIndex", "findLast", "findLastIndex", "flat", "flatMap",
}

// maxStringLength is the string bound in force, tightened to half the heap
// budget when one is set.
func (iso *Isolate) maxStringLength() float64 {
	limit := uint64(MaxStringLength)
	if half := iso.cfg.MemoryLimit / 2; iso.cfg.MemoryLimit > 0 && half < limit {
		limit = half
	}
	return float64(limit)
}

// guardBuiltins removes the eager allocators and wraps the builtins whose
// output size the caller controls.
func (iso *Isolate) guardBuiltins() error {
	vm := iso.vm
	global := vm.GlobalObject()
	for _, name := range hiddenGlobals {
		if err := global.Delete(name); err != nil {
			return err
		}
	}
	strs := vm.Get("String").ToObject(vm).Get("prototype").ToObject(vm)
	maxString := iso.maxStringLength()
	err := iso.wrapBuiltin(strs, "repeat", func(call goja.FunctionCall) (goja.Value, []goja.Value) {
		s := iso.thisString(call.This, "repeat")
		count := call.Argument(0).ToNumber()
		if n := math.Trunc(count.ToFloat()); n > 0 && !math.IsInf(n, 0) && float64(len(s.String()))*n > maxString {
			iso.throwRange("Invalid string length")
		}
		return s, []goja.Value{count}
	})
	if err != nil {
		return err
	}
	for _, name := range []string{"padStart", "padEnd"} {
		name := name
		err := iso.wrapBuiltin(strs, name, func(call goja.FunctionCall) (goja.Value, []goja.Value) {
			s := iso.thisString(call.This, name)
			target := call.Argument(0).ToNumber()
			if n := target.ToFloat(); n > maxString {
				iso.throwRange("Invalid string length")
			}
			args := []goja.Value{target}
			if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
				args = append(args, call.Arguments[1].ToString())
			}
			return s, args
		})
		if err != nil {
			return err
		}
	}

	arrays := vm.Get("Array").ToObject(vm)
	proto := arrays.Get("prototype").ToObject(vm)
	for _, name := range arrayMethods {
		if goja.IsUndefined(proto.Get(name)) {
			continue
		}
		concat := name == "concat"
		err := iso.wrapBuiltin(proto, name, func(call goja.FunctionCall) (goja.Value, []goja.Value) {
			this := call.This.ToObject(vm)
			iso.checkLength(this)
			if concat {
				for _, arg := range call.Arguments {
					if obj, ok := arg.(*goja.Object); ok && obj.ClassName() == "Array" {
						iso.checkLength(obj)
					}
				}
			}
			return this, call.Arguments
		})
		if err != nil {
			return err
		}
	}
	err = iso.wrapBuiltin(arrays, "from", func(call goja.FunctionCall) (goja.Value, []goja.Value) {
		if obj, ok := call.Argument(0).(*goja.Object); ok {
			iso.checkLength(obj)
		}
		return call.This, call.Arguments
	})
	if err != nil {
		return err
	}
	fn := vm.Get("Function").ToObject(vm).Get("prototype").ToObject(vm)
	err = iso.wrapBuiltin(fn, "apply", func(call goja.FunctionCall) (goja.Value, []goja.Value) {
		if obj, ok := call.Argument(1).(*goja.Object); ok {
			iso.checkLength(obj)
		}
		return call.This, call.Arguments
	})
	if err != nil {
		return err
	}
	reflect := vm.Get("Reflect").ToObject(vm)
	for _, name := range []string{"apply", "construct"} {
		at := 1
		if name == "apply" {
			at = 2
		}
		err := iso.wrapBuiltin(reflect, name, func(call goja.FunctionCall) (goja.Value, []goja.Value) {
			if obj, ok := call.Argument(at).(*goja.Object); ok {
				iso.checkLength(obj)
			}
			return call.This, call.Arguments
		})
		if err != nil {
			return err
		}
	}
	json := vm.Get("JSON").ToObject(vm)
	return iso.wrapBuiltin(json, "stringify", func(call goja.FunctionCall) (goja.Value, []goja.Value) {
		if msg := boundedValue(call.Argument(0)); msg != "" {
			iso.throwRange(msg)
		}
		return call.This, call.Arguments
	})
}

// wrapBuiltin replaces holder[name] with a function that runs check and
// then calls the original with the receiver and arguments check returns.
// check throws to reject the call.
func (iso *Isolate) wrapBuiltin(holder *goja.Object, name string, check func(goja.FunctionCall) (goja.Value, []goja.Value)) error {
	orig, ok := goja.AssertFunction(holder.Get(name))
	if !ok {
		return fmt.Errorf("%s is not callable", name)
	}
	wrapped := func(call goja.FunctionCall) goja.Value {
		this, args := check(call)
		ret, err := orig(this, args...)
		if err != nil {
			panic(err)
		}
		return ret
	}
	return holder.DefineDataProperty(name, iso.vm.ToValue(wrapped), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (iso *Isolate) thisString(this goja.Value, method string) goja.Value {
	if this == nil || goja.IsUndefined(this) || goja.IsNull(this) {
		panic(iso.vm.NewTypeError(fmt.Sprintf("String.prototype.%s called on null or undefined", method)))
	}
	return this.ToString()
}

func (iso *Isolate) checkLength(obj *goja.Object) {
	length := obj.Get("length")
	if length == nil {
		return
	}
	if n := length.ToFloat(); n > MaxArrayLength {
		iso.throwRange("Invalid array length")
	}
}

func (iso *Isolate) throwRange(msg string) {
	if obj, err := iso.vm.New(iso.rangeCtor, iso.vm.ToValue(msg)); err == nil {
		panic(obj)
	}
	panic(iso.NewError("RangeError: " + msg))
}

// boundedValue reports why v is too large or too deep to serialize, or ""
// if it is not. Each object is visited once.
func boundedValue(v goja.Value) string {
	seen := make(map[*goja.Object]bool)
	var walk func(v goja.Value, depth int) string
	walk = func(v goja.Value, depth int) string {
		obj, ok := v.(*goja.Object)
		if !ok || seen[obj] {
			return ""
		}
		if _, ok := goja.AssertFunction(obj); ok {
			return ""
		}
		if depth > maxNesting {
			return "Maximum call stack size exceeded"
		}
		seen[obj] = true
		if obj.ClassName() == "Array" {
			n := obj.Get("length").ToInteger()
			if n > MaxArrayLength {
				return "Invalid array length"
			}
			for i := int64(0); i < n; i++ {
				if msg := walk(obj.Get(strconv.FormatInt(i, 10)), depth+1); msg != "" {
					return msg
				}
			}
			return ""
		}
		for _, k := range obj.Keys() {
			if msg := walk(obj.Get(k), depth+1); msg != "" {
				return msg
			}
		}
		return ""
	}
	return walk(v, 0)
}
