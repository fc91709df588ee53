// Package isolate runs one contract invocation inside a fresh JavaScript
// runtime. An Isolate is created per transaction, bounded in time, heap and
// call depth, made deterministic (random source and clock come from the
// block), and discarded after a single Run.
package isolate

import (
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
	log "github.com/inconshreveable/log15"
	"github.com/tos-network/ssc/core/decimal"
	"github.com/tos-network/ssc/core/rng"
	"github.com/tos-network/ssc/core/types"
)

// DoneFunc is the global the dispatch wrapper calls exactly once.
const DoneFunc = "done"

// EntryPoint is the function the wrapped source must define.
const EntryPoint = "execute"

var (
	// ErrIsolateReused is returned by a second Run on the same Isolate.
	ErrIsolateReused = errors.New("isolate already used")

	errTimeout     = errors.New("timeout")
	errMemoryLimit = errors.New("memory limit")
)

// Messages logged for limit breaches.
const (
	TimeoutMessage     = "Error: Script execution timed out."
	MemoryLimitMessage = "Error: memory limit exceeded"
	UnknownMessage     = "unknown error"
)

// Config fixes the limits and deterministic inputs of one Isolate.
type Config struct {
	Timeout          time.Duration  // wall-clock budget, zero disables
	MemoryLimit      uint64         // heap growth ceiling in bytes, zero disables
	MaxCallStackSize int            // JS call depth ceiling, zero keeps the runtime default
	MaxHandles       int            // decimal handles per execution, zero is unbounded
	Policy           decimal.Policy // decimal precision in force
	Seed             string         // PRNG seed
	Now              time.Time      // value of Date.now() and new Date()
}

// Surface installs the capability functions of one invocation.
type Surface interface {
	Install(iso *Isolate) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(iso *Isolate) error

// Install implements Surface.
func (f SurfaceFunc) Install(iso *Isolate) error { return f(iso) }

// Call is the single entry-point invocation performed by Run.
type Call struct {
	Action  string
	Payload interface{}
}

// abort carries a host fault through vm.Interrupt.
type abort struct{ err error }

// Isolate is a single-use sandbox.
type Isolate struct {
	cfg    Config
	used   bool
	vm     *goja.Runtime
	bridge *decimal.Bridge
	random *rng.Source

	stringify goja.Callable
	errorCtor goja.Value
	rangeCtor goja.Value

	signals int
	result  goja.Value
	fault   error
	log     log.Logger
}

// New creates an unused Isolate.
func New(cfg Config) *Isolate {
	return &Isolate{
		cfg: cfg,
		log: log.New("module", "isolate"),
	}
}

// Run executes source and calls its entry point with call. It returns nil
// on success, a *types.EngineError for a failure attributable to the
// contract, and any other error for a host fault raised through Abort.
func Run(cfg Config, surface Surface, source string, call Call) error {
	return New(cfg).Run(surface, source, call)
}

// Runtime exposes the underlying runtime to capability implementations.
func (iso *Isolate) Runtime() *goja.Runtime { return iso.vm }

// Decimals returns the decimal bridge of this execution.
func (iso *Isolate) Decimals() *decimal.Bridge { return iso.bridge }

// Random returns the next value of the deterministic random source.
func (iso *Isolate) Random() float64 { return iso.random.Float64() }

// Abort stops the running script and makes Run return err unchanged. Only
// the first fault is kept.
func (iso *Isolate) Abort(err error) {
	if iso.fault == nil {
		iso.fault = err
	}
	iso.vm.Interrupt(&abort{err: err})
}

// Throw raises a JavaScript Error carrying msg in the sandbox. It must be
// called from a capability function.
func (iso *Isolate) Throw(msg string) {
	panic(iso.NewError(msg))
}

// NewError builds a JavaScript Error with msg.
func (iso *Isolate) NewError(msg string) *goja.Object {
	if obj, err := iso.vm.New(iso.errorCtor, iso.vm.ToValue(msg)); err == nil {
		return obj
	}
	return iso.vm.NewTypeError(msg)
}

func (iso *Isolate) setup() error {
	vm := goja.New()
	iso.vm = vm
	iso.random = rng.New(iso.cfg.Seed)

	if iso.cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(iso.cfg.MaxCallStackSize)
	}
	vm.SetRandSource(iso.random.Float64)
	now := iso.cfg.Now
	vm.SetTimeSource(func() time.Time { return now })

	// Capture the pristine builtins before any contract code runs.
	iso.errorCtor = vm.Get("Error")
	json := vm.Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(json.Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not callable")
	}
	iso.stringify = stringify
	iso.rangeCtor = vm.Get("RangeError")
	if err := iso.guardBuiltins(); err != nil {
		return err
	}

	bridge, err := decimal.NewBridge(vm, iso.cfg.Policy, iso.cfg.MaxHandles)
	if err != nil {
		return err
	}
	iso.bridge = bridge
	if err := vm.Set(decimal.ConstructorName, bridge.Constructor()); err != nil {
		return err
	}
	return vm.Set(DoneFunc, func(call goja.FunctionCall) goja.Value {
		iso.signals++
		if iso.signals == 1 {
			iso.result = call.Argument(0)
		}
		return goja.Undefined()
	})
}

// Run executes source once. See the package-level Run.
func (iso *Isolate) Run(surface Surface, source string, call Call) error {
	if iso.used {
		return ErrIsolateReused
	}
	iso.used = true
	defer iso.release()

	if err := iso.setup(); err != nil {
		return err
	}
	if surface != nil {
		if err := surface.Install(iso); err != nil {
			return err
		}
	}
	prog, err := goja.Compile("contract", source, false)
	if err != nil {
		return compileError(err)
	}
	payload, err := iso.ToSandbox(call.Payload)
	if err != nil {
		return err
	}

	stop := iso.arm()
	err = iso.invoke(prog, call.Action, payload)
	stop()

	if iso.fault != nil {
		return iso.fault
	}
	if err != nil {
		return iso.classify(err)
	}
	switch iso.signals {
	case 0:
		return types.NewEngineError(types.InternalError, "execution finished without a completion signal")
	case 1:
	default:
		return types.NewEngineError(types.InternalError, "execution signalled completion %d times", iso.signals)
	}
	if iso.result == nil || goja.IsUndefined(iso.result) || goja.IsNull(iso.result) {
		return nil
	}
	return types.NewEngineError(types.RuntimeError, "%s", iso.ErrorMessage(iso.result))
}

func (iso *Isolate) invoke(prog *goja.Program, action string, payload goja.Value) error {
	if _, err := iso.vm.RunProgram(prog); err != nil {
		return err
	}
	entry, ok := goja.AssertFunction(iso.vm.Get(EntryPoint))
	if !ok {
		return types.NewEngineError(types.InternalError, "%s is not defined", EntryPoint)
	}
	// Promise jobs queued by the async entry point run before the call
	// returns, so every done signal has been observed afterwards.
	_, err := entry(goja.Undefined(), iso.vm.ToValue(action), payload)
	return err
}

// arm starts the timeout and heap watchdogs and returns their stop function.
// Once stop returns neither watchdog touches the runtime again.
func (iso *Isolate) arm() func() {
	var (
		vm      = iso.vm
		mu      sync.Mutex
		stopped bool
	)
	interrupt := func(reason error) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			vm.Interrupt(reason)
		}
	}
	var timer *time.Timer
	if iso.cfg.Timeout > 0 {
		timer = time.AfterFunc(iso.cfg.Timeout, func() { interrupt(errTimeout) })
	}
	var dog *watchdog
	if iso.cfg.MemoryLimit > 0 {
		dog = startWatchdog(iso.cfg.MemoryLimit, func() { interrupt(errMemoryLimit) })
	}
	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		if dog != nil {
			dog.stop()
		}
	}
}

func (iso *Isolate) release() {
	if iso.bridge != nil {
		iso.bridge.Release()
	}
	if iso.vm != nil {
		iso.vm.ClearInterrupt()
	}
	iso.vm = nil
	iso.result = nil
}

func (iso *Isolate) classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case *abort:
			return v.err
		case error:
			if errors.Is(v, errTimeout) {
				iso.log.Debug("Execution timed out", "timeout", iso.cfg.Timeout)
				return types.NewEngineError(types.TimeoutError, TimeoutMessage)
			}
			if errors.Is(v, errMemoryLimit) {
				iso.log.Debug("Execution exceeded memory limit", "limit", iso.cfg.MemoryLimit)
				return types.NewEngineError(types.MemoryLimitError, MemoryLimitMessage)
			}
		}
		return types.NewEngineError(types.InternalError, "interrupted: %v", interrupted.Value())
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return types.NewEngineError(types.RuntimeError, "RangeError: Maximum call stack size exceeded")
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return types.NewEngineError(types.RuntimeError, "%s", iso.ErrorMessage(exception.Value()))
	}
	if _, ok := types.AsEngineError(err); ok {
		return err
	}
	return types.NewEngineError(types.InternalError, "%v", err)
}

// ErrorMessage renders a thrown or signalled value the way it is logged:
// strings verbatim, Error objects as "Name: message", anything else as
// UnknownMessage.
func (iso *Isolate) ErrorMessage(v goja.Value) string {
	if v == nil {
		return UnknownMessage
	}
	if s, ok := v.Export().(string); ok {
		return s
	}
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Error" {
		return UnknownMessage
	}
	name, message := "Error", ""
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
		message = m.String()
	}
	if message == "" {
		return name
	}
	return name + ": " + message
}

func compileError(err error) error {
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return types.NewEngineError(types.RuntimeError, "SyntaxError: %s", syntax.Message)
	}
	var reference *goja.CompilerReferenceError
	if errors.As(err, &reference) {
		return types.NewEngineError(types.RuntimeError, "ReferenceError: %s", reference.Message)
	}
	return types.NewEngineError(types.RuntimeError, "%v", err)
}
