package vm

import (
	"sync/atomic"

	"github.com/chazu/abcvm/abc"
)

// Code is an executable method body. Arguments arrive unprepared; the
// code is responsible for building its locals with PrepareLocals.
type Code func(scope *Scope, self Value, args []Value) Value

// NativeFunc is a host implementation of a method.
type NativeFunc func(rt *Runtime, self Value, args []Value) Value

// MethodCompiler turns a method into native code. A non-nil error makes
// the runtime fall back to its Interpreter for that method permanently.
type MethodCompiler interface {
	Compile(rt *Runtime, m *Method) (Code, error)
}

// Interpreter executes bytecode directly. Prepare must not fail; errors in
// the bytecode surface as VerifyErrors when the code runs.
type Interpreter interface {
	Prepare(rt *Runtime, m *Method) Code
}

// Method is a method bound to its defining scope. The executable form is
// linked on first call and cached.
type Method struct {
	Info  *abc.MethodInfo
	Body  *abc.MethodBody
	Scope *Scope
	// Home is the class whose traits declared the method. Super operations
	// start from Home.Super.
	Home   *Class
	Name   string
	Native NativeFunc

	code      atomic.Pointer[Code]
	fallback  atomic.Pointer[Code]
	jitFailed atomic.Bool
}

// NewNativeMethod wraps a host function.
func NewNativeMethod(name string, fn NativeFunc) *Method {
	return &Method{Name: name, Native: fn}
}

// Module returns the defining module, or nil for host methods.
func (m *Method) Module() *abc.Module {
	if m.Info == nil {
		return nil
	}
	return m.Info.Module()
}

// Domain returns the domain the method's scope chain belongs to.
func (m *Method) Domain() *Domain {
	if m.Scope == nil {
		return nil
	}
	return m.Scope.Domain()
}

// Compiled reports whether the method has been linked to compiled code.
func (m *Method) Compiled() bool { return m.code.Load() != nil }

// SetCode installs executable code directly, bypassing the link policy.
func (m *Method) SetCode(c Code) { m.code.Store(&c) }

func (m *Method) String() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Info != nil {
		return m.Info.DebugName()
	}
	return "<method>"
}

// Function is a callable object: a closure created by newfunction, a
// method extracted from an object (bound), or a host function.
type Function struct {
	*ScriptObject
	Method *Method
	// Bound is the fixed receiver of an extracted method; nil for closures.
	Bound Value
}

func (f *Function) String() string { return "function " + f.Method.String() + "() {}" }
