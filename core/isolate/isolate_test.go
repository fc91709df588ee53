package isolate

import (
	"errors"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/tos-network/ssc/core/decimal"
	"github.com/tos-network/ssc/core/types"
	"github.com/tos-network/ssc/params"
)

const dispatch = `
async function execute(action, payload) {
	try {
		if (actions[action] && typeof actions[action] === 'function') {
			await actions[action](payload);
			done(null);
		} else {
			done('invalid action');
		}
	} catch (e) {
		done(e);
	}
}
`

func wrap(body string) string {
	return "const actions = {};\n" + body + "\n" + dispatch
}

func testConfig() Config {
	return Config{
		Timeout:          2 * time.Second,
		MaxCallStackSize: 256,
		MaxHandles:       1000,
		Policy:           decimal.NewPolicy(params.TestChainConfig.Rules(0)),
		Seed:             "prevblock" + "block" + "tx",
		Now:              time.Date(2018, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// recorder is a surface exposing record(v), which stores the host form of v.
type recorder struct {
	values []interface{}
}

func (r *recorder) Install(iso *Isolate) error {
	return iso.Runtime().Set("record", func(call goja.FunctionCall) goja.Value {
		v, err := iso.FromSandbox(call.Argument(0))
		if err != nil {
			iso.Throw(err.Error())
		}
		r.values = append(r.values, v)
		return goja.Undefined()
	})
}

func runBody(t *testing.T, cfg Config, body, action string, payload interface{}) (*recorder, error) {
	t.Helper()
	rec := new(recorder)
	err := Run(cfg, rec, wrap(body), Call{Action: action, Payload: payload})
	return rec, err
}

func requireEngineError(t *testing.T, err error, kind types.ErrorKind, msg string) {
	t.Helper()
	ee, ok := types.AsEngineError(err)
	if !ok {
		t.Fatalf("expected engine error, have %v", err)
	}
	if ee.Kind != kind || ee.Message != msg {
		t.Fatalf("have %v %q, want %v %q", ee.Kind, ee.Message, kind, msg)
	}
}

func TestRunSuccess(t *testing.T) {
	rec, err := runBody(t, testConfig(), `actions.go = async (p) => { record(p.n + 1); }`, "go", map[string]interface{}{"n": 41})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.values) != 1 || rec.values[0] != int64(42) {
		t.Fatalf("recorded %v", rec.values)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind types.ErrorKind
		msg  string
	}{
		{"error", `actions.go = async () => { throw new Error('boom'); }`, types.RuntimeError, "Error: boom"},
		{"type error", `actions.go = async () => { null.x; }`, types.RuntimeError, ""},
		{"string", `actions.go = async () => { throw 'plain'; }`, types.RuntimeError, "plain"},
		{"object", `actions.go = async () => { throw { a: 1 }; }`, types.RuntimeError, UnknownMessage},
		{"custom name", `actions.go = async () => { const e = new Error('x'); e.name = 'Oops'; throw e; }`, types.RuntimeError, "Oops: x"},
	}
	for _, tc := range tests {
		_, err := runBody(t, testConfig(), tc.body, "go", nil)
		ee, ok := types.AsEngineError(err)
		if !ok || ee.Kind != tc.kind {
			t.Fatalf("%s: have %v", tc.name, err)
		}
		if tc.msg != "" && ee.Message != tc.msg {
			t.Fatalf("%s: message have %q want %q", tc.name, ee.Message, tc.msg)
		}
		if tc.msg == "" && !strings.HasPrefix(ee.Message, "TypeError: ") {
			t.Fatalf("%s: message have %q", tc.name, ee.Message)
		}
	}
}

func TestInvalidAction(t *testing.T) {
	_, err := runBody(t, testConfig(), `actions.go = async () => {};`, "missing", nil)
	requireEngineError(t, err, types.RuntimeError, "invalid action")
}

func TestCompileError(t *testing.T) {
	err := Run(testConfig(), nil, "const actions = {; "+dispatch, Call{Action: "go"})
	ee, ok := types.AsEngineError(err)
	if !ok || ee.Kind != types.RuntimeError || !strings.HasPrefix(ee.Message, "SyntaxError: ") {
		t.Fatalf("have %v", err)
	}
}

func TestCompletionSignals(t *testing.T) {
	none := `async function execute() {}`
	err := Run(testConfig(), nil, none, Call{Action: "go"})
	if ee, ok := types.AsEngineError(err); !ok || ee.Kind != types.InternalError {
		t.Fatalf("no signal: have %v", err)
	}
	twice := `async function execute() { done(null); done(null); }`
	err = Run(testConfig(), nil, twice, Call{Action: "go"})
	if ee, ok := types.AsEngineError(err); !ok || ee.Kind != types.InternalError {
		t.Fatalf("two signals: have %v", err)
	}
	pending := `function execute() { return new Promise(() => {}); }`
	err = Run(testConfig(), nil, pending, Call{Action: "go"})
	if ee, ok := types.AsEngineError(err); !ok || ee.Kind != types.InternalError {
		t.Fatalf("pending promise: have %v", err)
	}
}

func TestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	start := time.Now()
	_, err := runBody(t, cfg, `actions.go = async () => { while (true) {} }`, "go", nil)
	requireEngineError(t, err, types.TimeoutError, TimeoutMessage)
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestTimeoutNotCatchable(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	body := `actions.go = async () => { try { while (true) {} } catch (e) { record('caught'); } }`
	rec, err := runBody(t, cfg, body, "go", nil)
	requireEngineError(t, err, types.TimeoutError, TimeoutMessage)
	if len(rec.values) != 0 {
		t.Fatalf("timeout was caught by contract code")
	}
}

func TestMemoryLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Second
	cfg.MemoryLimit = 16 << 20
	body := `actions.go = async () => { const a = []; while (true) { a.push(new Array(4096).fill('xxxxxxxx')); } }`
	_, err := runBody(t, cfg, body, "go", nil)
	requireEngineError(t, err, types.MemoryLimitError, MemoryLimitMessage)
}

func TestMemoryLimitIgnoresGarbage(t *testing.T) {
	ballast := make([]byte, 128<<20)
	for i := range ballast {
		ballast[i] = byte(i)
	}
	cfg := testConfig()
	cfg.Timeout = 20 * time.Second
	cfg.MemoryLimit = 16 << 20
	body := `actions.go = async () => {
		let n = 0;
		for (let i = 0; i < 1000; i++) { n += new Array(4096).fill('xxxxxxxx').length; }
		record(n);
	}`
	rec, err := runBody(t, cfg, body, "go", nil)
	runtime.KeepAlive(ballast)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.values) != 1 || rec.values[0] != int64(1000*4096) {
		t.Fatalf("recorded %v", rec.values)
	}
}

func TestTimeoutAtCompletion(t *testing.T) {
	cfg := testConfig()
	body := `actions.go = async () => { let s = 0; for (let i = 0; i < 50; i++) { s += i; } }`
	for i := 0; i < 2000; i++ {
		cfg.Timeout = time.Duration(1+i%300) * time.Microsecond
		if _, err := runBody(t, cfg, body, "go", nil); err != nil {
			requireEngineError(t, err, types.TimeoutError, TimeoutMessage)
		}
	}
}

func TestStackLimit(t *testing.T) {
	_, err := runBody(t, testConfig(), `function f() { return f() + 1; } actions.go = async () => { f(); }`, "go", nil)
	requireEngineError(t, err, types.RuntimeError, "RangeError: Maximum call stack size exceeded")
}

func TestIsolateReuse(t *testing.T) {
	iso := New(testConfig())
	src := wrap(`actions.go = async () => {};`)
	if err := iso.Run(nil, src, Call{Action: "go"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := iso.Run(nil, src, Call{Action: "go"}); !errors.Is(err, ErrIsolateReused) {
		t.Fatalf("second run: have %v", err)
	}
}

func TestAbortReturnsHostFault(t *testing.T) {
	fault := errors.New("store unavailable")
	surface := SurfaceFunc(func(iso *Isolate) error {
		return iso.Runtime().Set("explode", func(goja.FunctionCall) goja.Value {
			iso.Abort(fault)
			return goja.Undefined()
		})
	})
	src := wrap(`actions.go = async () => { try { explode(); while (true) {} } catch (e) {} };`)
	err := Run(testConfig(), surface, src, Call{Action: "go"})
	if !errors.Is(err, fault) {
		t.Fatalf("have %v want %v", err, fault)
	}
	if _, ok := types.AsEngineError(err); ok {
		t.Fatalf("host fault must not be an engine error")
	}
}

func TestDeterministicEnvironment(t *testing.T) {
	body := `actions.go = async () => { record([Math.random(), Math.random(), Date.now(), new Date().toISOString()]); }`
	a, err := runBody(t, testConfig(), body, "go", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := runBody(t, testConfig(), body, "go", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(a.values, b.values) {
		t.Fatalf("runs differ: %v vs %v", a.values, b.values)
	}
	got := a.values[0].([]interface{})
	if got[2] != testConfig().Now.UnixMilli() || got[3] != "2018-06-01T12:00:00.000Z" {
		t.Fatalf("clock not bound to block time: %v", got)
	}
	cfg := testConfig()
	cfg.Seed = "other"
	c, err := runBody(t, cfg, body, "go", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reflect.DeepEqual(a.values, c.values) {
		t.Fatalf("different seeds produced identical randomness")
	}
}

func TestMarshaling(t *testing.T) {
	payload := map[string]interface{}{
		"b": []interface{}{int64(1), "two", true, nil},
		"a": map[string]interface{}{"x": 1.5},
	}
	body := `actions.go = async (p) => {
		record(Object.keys(p));
		p.a.x = 99;
		record(p);
		record(BigNumber('1.5').plus(1));
		record({ d: new Date(0), u: undefined, n: null });
	}`
	rec, err := runBody(t, testConfig(), body, "go", payload)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(rec.values[0], []interface{}{"a", "b"}) {
		t.Fatalf("keys not sorted: %v", rec.values[0])
	}
	if payload["a"].(map[string]interface{})["x"] != 1.5 {
		t.Fatalf("sandbox mutated the host payload")
	}
	if rec.values[2] != "2.5" {
		t.Fatalf("decimal handle resolved to %v", rec.values[2])
	}
	want := map[string]interface{}{"d": "1970-01-01T00:00:00.000Z", "n": nil}
	if !reflect.DeepEqual(rec.values[3], want) {
		t.Fatalf("have %v want %v", rec.values[3], want)
	}
}

func TestMarshalingRejects(t *testing.T) {
	tests := map[string]string{
		"function": `record({ f: function () {} })`,
		"cycle":    `const o = {}; o.self = o; record(o)`,
		"nan":      `record(NaN)`,
		"deep":     `let o = {}; for (let i = 0; i < 100; i++) o = { o }; record(o)`,
	}
	for name, stmt := range tests {
		body := "actions.go = async () => { " + stmt + " };"
		_, err := runBody(t, testConfig(), body, "go", nil)
		ee, ok := types.AsEngineError(err)
		if !ok || !strings.HasPrefix(ee.Message, "Error: cannot serialize") && !strings.HasPrefix(ee.Message, "Error: value nested") {
			t.Fatalf("%s: have %v", name, err)
		}
	}
	// Shared, acyclic references are fine.
	body := `actions.go = async () => { const s = { v: 1 }; record({ a: s, b: s }); };`
	if _, err := runBody(t, testConfig(), body, "go", nil); err != nil {
		t.Fatalf("shared reference: %v", err)
	}
}

func TestAllocationGuards(t *testing.T) {
	tests := map[string]string{
		"repeat":         `'x'.repeat(2 ** 33)`,
		"repeat wide":    `'abcdefgh'.repeat(2 ** 25)`,
		"padStart":       `'x'.padStart(2 ** 32)`,
		"padEnd":         `'x'.padEnd(2 ** 30, 'yz')`,
		"join":           `new Array(2 ** 32 - 1).join('x')`,
		"fill":           `new Array(2 ** 30).fill(0)`,
		"toString":       `String(new Array(2 ** 30))`,
		"indexOf":        `new Array(2 ** 32 - 1).indexOf(1)`,
		"concat":         `[].concat(new Array(2 ** 30))`,
		"from":           `Array.from({ length: 2 ** 32 })`,
		"apply":          `Math.max.apply(null, { length: 2 ** 30 })`,
		"reflect":        `Reflect.apply(Math.max, null, new Array(2 ** 30))`,
		"stringify":      `JSON.stringify({ a: new Array(2 ** 32 - 1) })`,
		"stringify deep": `let o = []; for (let i = 0; i < 5000; i++) o = [o]; JSON.stringify(o)`,
	}
	for name, expr := range tests {
		body := "actions.go = async () => { " + expr + "; };"
		_, err := runBody(t, testConfig(), body, "go", nil)
		ee, ok := types.AsEngineError(err)
		if !ok || ee.Kind != types.RuntimeError || !strings.HasPrefix(ee.Message, "RangeError: ") {
			t.Fatalf("%s: have %v", name, err)
		}
	}
	// The bound follows the heap budget when one is set.
	cfg := testConfig()
	cfg.MemoryLimit = 1 << 20
	_, err := runBody(t, cfg, `actions.go = async () => { 'x'.repeat(1 << 20); };`, "go", nil)
	requireEngineError(t, err, types.RuntimeError, "RangeError: Invalid string length")
}

func TestAllocationGuardsCatchable(t *testing.T) {
	body := `actions.go = async () => {
		try { 'x'.repeat(2 ** 33); } catch (e) { record(e instanceof RangeError); }
	};`
	rec, err := runBody(t, testConfig(), body, "go", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(rec.values, []interface{}{true}) {
		t.Fatalf("recorded %v", rec.values)
	}
}

func TestGuardedBuiltinsBehave(t *testing.T) {
	body := `actions.go = async () => {
		record([
			'ab'.repeat(3), '7'.padStart(3, '0'), 'x'.padEnd(3), [1, 2, 3].join('-'),
			[3, 1, 2].sort().concat([4]), Array.from('ab'), Math.max.apply(null, [1, 5, 2]),
			JSON.stringify({ a: [1, { b: 2 }] }), [1, 2, 3].map((x) => x * 2).filter((x) => x > 2),
			String([1, 2]), Object.keys(String.prototype).length,
		]);
	};`
	rec, err := runBody(t, testConfig(), body, "go", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []interface{}{
		"ababab", "007", "x  ", "1-2-3",
		[]interface{}{int64(1), int64(2), int64(3), int64(4)}, []interface{}{"a", "b"}, int64(5),
		`{"a":[1,{"b":2}]}`, []interface{}{int64(4), int64(6)},
		"1,2", int64(0),
	}
	if !reflect.DeepEqual(rec.values[0], want) {
		t.Fatalf("have %v want %v", rec.values[0], want)
	}
}

func TestHiddenGlobals(t *testing.T) {
	body := `actions.go = async () => {
		record([typeof ArrayBuffer, typeof SharedArrayBuffer, typeof DataView, typeof Uint8Array, typeof Float64Array]);
	};`
	rec, err := runBody(t, testConfig(), body, "go", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []interface{}{"undefined", "undefined", "undefined", "undefined", "undefined"}
	if !reflect.DeepEqual(rec.values[0], want) {
		t.Fatalf("have %v", rec.values[0])
	}
}

func TestMarshalingRejectsLongArrays(t *testing.T) {
	_, err := runBody(t, testConfig(), `actions.go = async () => { record(new Array(2 ** 32 - 1)); };`, "go", nil)
	ee, ok := types.AsEngineError(err)
	if !ok || !strings.HasPrefix(ee.Message, "Error: cannot serialize an array of") {
		t.Fatalf("have %v", err)
	}
	iso := New(testConfig())
	if err := iso.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer iso.release()
	long, err := iso.Runtime().RunString(`new Array(2 ** 30)`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if _, err := iso.Stringify(long); err == nil {
		t.Fatalf("oversized array stringified")
	}
	if _, err := iso.FromSandbox(long); err == nil {
		t.Fatalf("oversized array copied out")
	}
}
