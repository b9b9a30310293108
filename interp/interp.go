// Package interp executes method bodies directly from their bytecode. It is
// the runtime's fallback for methods the compiler rejects or has not yet
// compiled, and shares every operator and host operation with compiled
// code through package vm.
package interp

import (
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/vm"
)

// Interpreter implements vm.Interpreter.
type Interpreter struct {
	log commonlog.Logger

	prepared     uint64
	instructions uint64
}

// New creates an interpreter.
func New() *Interpreter {
	return &Interpreter{log: commonlog.GetLogger("abcvm.interp")}
}

// Stats holds interpreter counters.
type Stats struct {
	Prepared     uint64
	Instructions uint64
}

// Stats returns the number of methods prepared and instructions executed.
func (ip *Interpreter) Stats() Stats {
	return Stats{
		Prepared:     atomic.LoadUint64(&ip.prepared),
		Instructions: atomic.LoadUint64(&ip.instructions),
	}
}

// Prepare implements vm.Interpreter. Nothing is checked ahead of time;
// malformed bytecode raises a VerifyError when it is reached.
func (ip *Interpreter) Prepare(rt *vm.Runtime, m *vm.Method) vm.Code {
	atomic.AddUint64(&ip.prepared, 1)
	ip.log.Debugf("interpreting %s", m)
	return func(scope *vm.Scope, self vm.Value, args []vm.Value) vm.Value {
		if scope == nil {
			scope = vm.NewScope(rt.SystemDomain(), rt.NewPlainObject())
		}
		f := &frame{
			ip:     ip,
			rt:     rt,
			m:      m,
			mod:    m.Module(),
			domain: scope.Domain(),
			code:   m.Body.Code,
			stack:  make([]vm.Value, 0, max(m.Body.MaxStack, 1)),
			locals: rt.PrepareLocals(m, self, args),
			scopes: append(make([]*vm.Scope, 0, max(m.Body.MaxScopeDepth-m.Body.InitScopeDepth, 0)+1), scope),
		}
		for f.run() {
		}
		return f.result
	}
}

// frame is the execution state of one call.
type frame struct {
	ip     *Interpreter
	rt     *vm.Runtime
	m      *vm.Method
	mod    *abc.Module
	domain *vm.Domain
	code   []byte

	pc     int // offset of the next instruction
	at     int // offset of the executing instruction
	stack  []vm.Value
	locals []vm.Value
	// scopes[0] is the scope the method closed over; the rest are the
	// frames pushed by the method.
	scopes []*vm.Scope
	result vm.Value
	count  uint64
}

// verifyError aborts execution of malformed bytecode.
func verifyError(format string, args ...any) {
	panic(&vm.Error{Kind: vm.KindVerifyError, Message: fmt.Sprintf(format, args...)})
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (f *frame) push(v vm.Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() vm.Value {
	n := len(f.stack)
	if n == 0 {
		verifyError("operand stack underflow at %d", f.at)
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v
}

func (f *frame) top() vm.Value {
	if len(f.stack) == 0 {
		verifyError("operand stack underflow at %d", f.at)
	}
	return f.stack[len(f.stack)-1]
}

func (f *frame) setTop(v vm.Value) {
	if len(f.stack) == 0 {
		verifyError("operand stack underflow at %d", f.at)
	}
	f.stack[len(f.stack)-1] = v
}

// popN removes the top n values, returning them in push order.
func (f *frame) popN(n int) []vm.Value {
	if len(f.stack) < n {
		verifyError("operand stack underflow at %d", f.at)
	}
	if n == 0 {
		return nil
	}
	out := make([]vm.Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

func (f *frame) local(i int) int {
	if i < 0 || i >= len(f.locals) {
		verifyError("local %d out of range at %d", i, f.at)
	}
	return i
}

func (f *frame) scope() *vm.Scope { return f.scopes[len(f.scopes)-1] }

// ---------------------------------------------------------------------------
// Execution loop
// ---------------------------------------------------------------------------

// run executes until the method returns (false) or a handler takes over
// after a throw (true).
func (f *frame) run() (resume bool) {
	defer func() {
		atomic.AddUint64(&f.ip.instructions, f.count)
		f.count = 0
	}()
	if len(f.m.Body.Exceptions) > 0 {
		defer func() {
			if r := recover(); r != nil {
				if !f.catch(r) {
					panic(r)
				}
				resume = true
			}
		}()
	}
	for {
		if f.pc >= len(f.code) {
			verifyError("fell off the end of %s", f.m)
		}
		in, err := abc.ReadInstr(f.code, f.pc)
		if err != nil {
			verifyError("%s", err)
		}
		f.at, f.pc = in.Pos, in.Next
		f.count++
		if f.step(&in) {
			return false
		}
	}
}

// catch transfers control to the first handler covering the executing
// instruction whose type accepts the thrown value.
func (f *frame) catch(r any) bool {
	v, ok := f.rt.ThrownValue(r)
	if !ok {
		return false
	}
	for _, ex := range f.m.Body.Exceptions {
		if !ex.Covers(f.at) {
			continue
		}
		if ex.TypeIndex != 0 {
			t, err := ex.TypeName()
			if err != nil || !f.rt.IsType(f.domain, v, t) {
				continue
			}
		}
		f.stack = append(f.stack[:0], v)
		f.scopes = f.scopes[:1]
		f.pc = ex.Target
		return true
	}
	return false
}

// name returns the multiname operand of in, popping its runtime parts.
func (f *frame) name(index int) *abc.Name {
	n, err := f.mod.Name(index)
	if err != nil {
		verifyError("%s", err)
	}
	if !n.IsRuntime() {
		return n
	}
	var ns, local vm.Value
	if n.NeedsRuntimeName() {
		local = f.pop()
	}
	if n.NeedsRuntimeNamespace() {
		ns = f.pop()
	}
	return f.rt.RuntimeName(n, ns, local)
}

// find resolves name on the scope chain, recording the resolution depth
// for the compiler when profiling.
func (f *frame) find(name *abc.Name, strict bool) vm.Value {
	s := f.scope()
	v := s.FindScopeProperty(f.rt, name, strict, false)
	if f.rt.Options().Profile && name.IsFixed() {
		if d := s.FrameDepth(v); d >= 0 {
			f.rt.Profiler().RecordResolution(f.m, f.at, d)
		}
	}
	return v
}

func (f *frame) memory() []byte {
	if f.domain == nil {
		return nil
	}
	return f.domain.Memory()
}
