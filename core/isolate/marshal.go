package isolate

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/cockroachdb/apd/v3"
	"github.com/dop251/goja"
	"github.com/tos-network/ssc/core/decimal"
	"github.com/tos-network/ssc/core/types"
)

// MaxDepth bounds the nesting of values crossing the sandbox boundary.
const MaxDepth = 64

func serializationError(format string, args ...interface{}) error {
	return types.NewEngineError(types.SerializationError, format, args...)
}

// ToSandbox copies a JSON-like host value into fresh sandbox values. Maps
// are populated in sorted key order and decimals become handles. Values
// that have no JSON form are rejected.
func (iso *Isolate) ToSandbox(v interface{}) (goja.Value, error) {
	return iso.toSandbox(v, 0)
}

func (iso *Isolate) toSandbox(v interface{}, depth int) (goja.Value, error) {
	if depth > MaxDepth {
		return nil, serializationError("value nested deeper than %d levels", MaxDepth)
	}
	vm := iso.vm
	switch x := v.(type) {
	case nil:
		return goja.Null(), nil
	case goja.Value:
		// Already a sandbox value; copy it through the host form.
		host, err := iso.FromSandbox(x)
		if err != nil {
			return nil, err
		}
		return iso.toSandbox(host, depth)
	case bool, string, int, int32, int64, uint32, uint64:
		return vm.ToValue(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, serializationError("cannot pass non-finite number %v", x)
		}
		return vm.ToValue(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return vm.ToValue(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, serializationError("invalid number %q", string(x))
		}
		return vm.ToValue(f), nil
	case *apd.Decimal:
		return iso.bridge.Wrap(x), nil
	case []interface{}:
		items := make([]interface{}, len(x))
		for i, item := range x {
			val, err := iso.toSandbox(item, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = val
		}
		return vm.NewArray(items...), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := vm.NewObject()
		for _, k := range keys {
			val, err := iso.toSandbox(x[k], depth+1)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, val); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	// Structs and typed containers go through their JSON form.
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, serializationError("cannot pass %T: %v", v, err)
	}
	var generic interface{}
	if err := json.Unmarshal(blob, &generic); err != nil {
		return nil, serializationError("cannot pass %T: %v", v, err)
	}
	return iso.toSandbox(generic, depth)
}

// FromSandbox copies a sandbox value out as a JSON-like host value:
// map[string]interface{}, []interface{}, string, int64, float64, bool or nil.
// Decimal handles resolve to their string form and dates to ISO strings.
// Functions, symbols, non-finite numbers, cycles and over-deep values are
// rejected.
func (iso *Isolate) FromSandbox(v goja.Value) (interface{}, error) {
	return iso.fromSandbox(v, 0, make(map[*goja.Object]bool))
}

func (iso *Isolate) fromSandbox(v goja.Value, depth int, path map[*goja.Object]bool) (interface{}, error) {
	if depth > MaxDepth {
		return nil, serializationError("value nested deeper than %d levels", MaxDepth)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		switch x := v.Export().(type) {
		case bool, string, int64:
			return x, nil
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, serializationError("cannot serialize non-finite number %v", x)
			}
			return x, nil
		}
		return nil, serializationError("cannot serialize %s", v.String())
	}
	if d, ok := iso.bridge.Lookup(obj); ok {
		return decimal.ValueOf(d), nil
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return nil, serializationError("cannot serialize a function")
	}
	if path[obj] {
		return nil, serializationError("cannot serialize a cyclic value")
	}
	path[obj] = true
	defer delete(path, obj)

	switch obj.ClassName() {
	case "Array":
		length := obj.Get("length").ToInteger()
		if length > MaxArrayLength {
			return nil, serializationError("cannot serialize an array of %d elements", length)
		}
		n := int(length)
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			item, err := iso.fromSandbox(obj.Get(strconv.Itoa(i)), depth+1, path)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case "Date":
		iso8601, ok := goja.AssertFunction(obj.Get("toISOString"))
		if !ok {
			return nil, serializationError("cannot serialize a date")
		}
		s, err := iso8601(obj)
		if err != nil {
			return nil, serializationError("cannot serialize an invalid date")
		}
		return s.String(), nil
	case "Number":
		return iso.fromSandbox(iso.vm.ToValue(obj.ToFloat()), depth, path)
	case "String":
		return obj.String(), nil
	case "Boolean":
		b, _ := obj.Export().(bool)
		return b, nil
	}
	out := make(map[string]interface{})
	for _, k := range obj.Keys() {
		field := obj.Get(k)
		if field == nil || goja.IsUndefined(field) {
			continue
		}
		val, err := iso.fromSandbox(field, depth+1, path)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

// Stringify serializes v with the sandbox's own JSON.stringify, so key
// order and number formatting are what contract code observes.
func (iso *Isolate) Stringify(v goja.Value) (string, error) {
	if msg := boundedValue(v); msg != "" {
		return "", serializationError("RangeError: %s", msg)
	}
	out, err := iso.stringify(goja.Undefined(), v)
	if err != nil {
		return "", serializationError("%v", err)
	}
	if out == nil || goja.IsUndefined(out) {
		return "", nil
	}
	return out.String(), nil
}
