package vm

import (
	"errors"
	"io"
	"os"
	goruntime "runtime"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/abcvm/abc"
)

// Options configures a Runtime.
type Options struct {
	// MinVersion is the oldest module version accepted.
	MinVersion abc.Version
	// Strict makes binding a native method without a registered
	// implementation an error instead of a deferred Error 1001.
	Strict bool
	// MaxCallDepth bounds nested invocations (Error 1023 beyond it).
	MaxCallDepth int

	Compiler    MethodCompiler
	Interpreter Interpreter
	// JITThreshold is the number of invocations after which a method is
	// compiled. Zero compiles on first call.
	JITThreshold uint64
	// Profile enables recording of scope resolution depths for compiled
	// code fast paths.
	Profile bool

	// Output receives trace() output. Defaults to os.Stdout.
	Output io.Writer
	// Markup handles + when an operand is a Markup value.
	Markup func(rt *Runtime, a, b Value) Value
}

// DefaultMaxCallDepth is used when Options.MaxCallDepth is zero.
const DefaultMaxCallDepth = 1000

// Runtime is the host context shared by all domains and executing code.
// A Runtime executes on one goroutine at a time.
type Runtime struct {
	opts     Options
	interner *abc.Interner
	system   *Domain
	natives  *Natives
	profiler *Profiler
	builtins *builtins
	log      commonlog.Logger

	depth int

	activations sync.Map // *abc.MethodBody -> *ResolvedTraits
	catches     sync.Map // *abc.ExceptionInfo -> *ResolvedTraits
	statics     sync.Map // staticKey -> *Method
}

// New creates a runtime with its system domain and builtins.
func New(opts Options) *Runtime {
	if opts.MinVersion == (abc.Version{}) {
		opts.MinVersion = abc.MinVersion
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	rt := &Runtime{
		opts:     opts,
		interner: abc.NewInterner(),
		natives:  NewNatives(),
		log:      commonlog.GetLogger("abcvm.vm"),
	}
	rt.profiler = NewProfiler()
	rt.profiler.MethodHotThreshold = opts.JITThreshold
	rt.system = rt.NewDomain(nil)
	rt.builtins = newBuiltins(rt)
	return rt
}

// Options returns the runtime's configuration.
func (rt *Runtime) Options() Options { return rt.opts }

// Interner returns the interner shared by every domain of the runtime.
func (rt *Runtime) Interner() *abc.Interner { return rt.interner }

// SystemDomain returns the root domain.
func (rt *Runtime) SystemDomain() *Domain { return rt.system }

// Natives returns the native method registry.
func (rt *Runtime) Natives() *Natives { return rt.natives }

// Profiler returns the invocation profiler.
func (rt *Runtime) Profiler() *Profiler { return rt.profiler }

// Output returns the trace() writer.
func (rt *Runtime) Output() io.Writer { return rt.opts.Output }

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() commonlog.Logger { return rt.log }

// ---------------------------------------------------------------------------
// Invocation and linking
// ---------------------------------------------------------------------------

// Invoke runs m with the given receiver and arguments. Runtime errors
// propagate as panics carrying *Throw; use InvokeSafe at API boundaries.
func (rt *Runtime) Invoke(m *Method, self Value, args []Value) Value {
	if m.Native != nil {
		return m.Native(rt, self, args)
	}
	code := rt.link(m)
	rt.depth++
	defer func() { rt.depth-- }()
	if rt.depth > rt.opts.MaxCallDepth {
		rt.ThrowError(CodeStackOverflow)
	}
	return code(m.Scope, self, args)
}

// InvokeSafe is Invoke with thrown values converted to errors.
func (rt *Runtime) InvokeSafe(m *Method, self Value, args []Value) (result Value, err error) {
	defer rt.recoverTo(&err)
	return rt.Invoke(m, self, args), nil
}

// link returns the executable form of m: compiled code once the method is
// hot and compiles, the interpreter otherwise.
func (rt *Runtime) link(m *Method) Code {
	if c := m.code.Load(); c != nil {
		return *c
	}
	if m.Body == nil {
		return func(*Scope, Value, []Value) Value {
			rt.ThrowError(CodeNotImplemented, m)
			return nil
		}
	}
	if rt.opts.Compiler != nil && !m.jitFailed.Load() && rt.profiler.RecordMethodInvocation(m) {
		code, err := rt.opts.Compiler.Compile(rt, m)
		if err == nil {
			m.code.Store(&code)
			return code
		}
		m.jitFailed.Store(true)
		rt.log.Warningf("%s: interpreting: %s", m, err)
	}
	if c := m.fallback.Load(); c != nil {
		return *c
	}
	if rt.opts.Interpreter == nil {
		return func(*Scope, Value, []Value) Value {
			rt.ThrowError(CodeNotImplemented, m)
			return nil
		}
	}
	code := rt.opts.Interpreter.Prepare(rt, m)
	m.fallback.CompareAndSwap(nil, &code)
	return *m.fallback.Load()
}

// ---------------------------------------------------------------------------
// Throwing and catching
// ---------------------------------------------------------------------------

// ThrowError raises the runtime error code as a language exception.
func (rt *Runtime) ThrowError(code int, args ...any) {
	e := NewError(code, args...)
	panic(&Throw{Value: rt.ErrorValue(e)})
}

// ErrorValue builds the error object for e, an instance of the builtin
// class named by e.Kind.
func (rt *Runtime) ErrorValue(e *Error) Value {
	if e.Value != nil {
		return e.Value
	}
	c := rt.builtins.errorClasses[e.Kind]
	if c == nil {
		c = rt.builtins.errorClasses[KindError]
	}
	o := c.Allocate(rt)
	o.SetPublic("message", e.Message)
	o.SetPublic("errorID", int32(e.Code))
	e.Value = o
	return o
}

// ThrownValue extracts the language value from a recovered panic payload.
// Go runtime faults are not language values and report false.
func (rt *Runtime) ThrownValue(r any) (Value, bool) {
	switch x := r.(type) {
	case *Throw:
		return x.Value, true
	case *Error:
		return rt.ErrorValue(x), true
	case goruntime.Error:
		return nil, false
	case error:
		var e *Error
		if errors.As(x, &e) {
			return rt.ErrorValue(e), true
		}
		return rt.ErrorValue(&Error{Kind: KindError, Message: x.Error()}), true
	}
	return nil, false
}

func (rt *Runtime) errorKindOf(o *ScriptObject) (ErrorKind, bool) {
	for c := o.class; c != nil; c = c.Super {
		if k, ok := rt.builtins.errorKinds[c]; ok {
			return k, true
		}
	}
	return "", false
}
