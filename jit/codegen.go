package jit

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/vm"
)

// ErrBadLocal reports a local register index outside the method's frame.
var ErrBadLocal = errors.New("jit: local register out of range")

// frame is the register file of one activation. Operand stack slots are
// addressed by the static depth computed by Analyze, so the generated
// operations never track a stack pointer.
type frame struct {
	rt     *vm.Runtime
	m      *vm.Method
	domain *vm.Domain
	regs   []vm.Value
	locals []vm.Value
	// scopes[d] is the scope chain after the method pushed d frames.
	scopes []*vm.Scope
	result vm.Value
}

// op executes one instruction and returns the index of the next one.
type op func(f *frame) int

const done = -1

// Program is the generated form of one method.
type Program struct {
	Method   *vm.Method
	Instrs   []*Instruction
	Analysis *Analysis
	// Names is the side table of multinames referenced by the body, one
	// entry per distinct module index.
	Names []*abc.Name
	// FastSites counts lookups compiled against a profiled scope depth.
	FastSites int

	rt       *vm.Runtime
	ops      []op
	names    map[int]int
	base     *vm.Scope
	retType  *abc.Name
	catchTo  []*abc.Name
	nlocals  int
	profiled bool
}

// Generate emits one operation per reachable instruction of m.
func Generate(rt *vm.Runtime, m *vm.Method, instrs []*Instruction, a *Analysis) (*Program, error) {
	p := &Program{
		Method:   m,
		Instrs:   instrs,
		Analysis: a,
		rt:       rt,
		ops:      make([]op, len(instrs)),
		names:    make(map[int]int),
		base:     m.Scope,
		profiled: rt.Options().Profile,
	}
	if p.base == nil {
		p.base = vm.NewScope(rt.SystemDomain(), rt.NewPlainObject())
	}
	mod := m.Module()
	p.nlocals = max(m.Body.LocalCount, m.Info.ParamCount()+2)
	if m.Info.ReturnType != 0 {
		n, err := mod.Name(m.Info.ReturnType)
		if err != nil {
			return nil, err
		}
		if !(n.IsQName() && n.IsPublic() && n.LocalName() == "void") {
			p.retType = n
		}
	}
	for _, h := range a.Handlers {
		var t *abc.Name
		if h.Info.TypeIndex != 0 {
			n, err := h.Info.TypeName()
			if err != nil {
				return nil, err
			}
			t = n
		}
		p.catchTo = append(p.catchTo, t)
	}

	for i, in := range instrs {
		if !a.Reachable(i) {
			p.ops[i] = unreachable(in)
			continue
		}
		o, err := p.gen(i, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in, err)
		}
		p.ops[i] = o
	}
	return p, nil
}

func unreachable(in *Instruction) op {
	return func(*frame) int { panic(fmt.Sprintf("jit: executed unreachable instruction %s", in)) }
}

// name registers in's multiname in the side table.
func (p *Program) name(in *Instruction) *abc.Name {
	if k, ok := p.names[in.NameIndex]; ok {
		return p.Names[k]
	}
	p.names[in.NameIndex] = len(p.Names)
	p.Names = append(p.Names, in.Name)
	return in.Name
}

// nameAt returns the multiname of in, completed with the runtime parts
// found at register at and above.
func (p *Program) nameAt(in *Instruction, at int) func(f *frame) *abc.Name {
	tmpl := p.name(in)
	if !in.Op.IsDynamic() {
		return func(*frame) *abc.Name { return tmpl }
	}
	nsAt, localAt := -1, -1
	if in.RuntimeNS {
		nsAt, at = at, at+1
	}
	if in.RuntimeLocal {
		localAt = at
	}
	return func(f *frame) *abc.Name {
		var ns, local vm.Value
		if nsAt >= 0 {
			ns = f.regs[nsAt]
		}
		if localAt >= 0 {
			local = f.regs[localAt]
		}
		return f.rt.RuntimeName(tmpl, ns, local)
	}
}

func nameParts(in *Instruction) int {
	n := 0
	if in.RuntimeNS {
		n++
	}
	if in.RuntimeLocal {
		n++
	}
	return n
}

func (p *Program) local(i int) (int, error) {
	if i < 0 || i >= p.nlocals {
		return 0, fmt.Errorf("%w: %d of %d", ErrBadLocal, i, p.nlocals)
	}
	return i, nil
}

// collect copies registers [from, to) into a fresh argument slice.
func collect(f *frame, from, to int) []vm.Value {
	if from == to {
		return nil
	}
	out := make([]vm.Value, to-from)
	copy(out, f.regs[from:to])
	return out
}

// ---------------------------------------------------------------------------
// Numeric helpers
// ---------------------------------------------------------------------------

func prim(rt *vm.Runtime, v vm.Value) vm.Value {
	if _, ok := v.(vm.Object); ok {
		return rt.ToPrimitive(v, false)
	}
	return v
}

func toInt32(rt *vm.Runtime, v vm.Value) int32 { return vm.ToInt32(prim(rt, v)) }

func toUint32(rt *vm.Runtime, v vm.Value) uint32 { return vm.ToUint32(prim(rt, v)) }

func toNumber(rt *vm.Runtime, v vm.Value) vm.Value { return vm.NumberValue(rt.ToNumber(v)) }

func coerceString(rt *vm.Runtime, v vm.Value) vm.Value {
	if vm.IsNullish(v) {
		return vm.Null
	}
	return rt.ToString(v)
}

func coerceObject(rt *vm.Runtime, v vm.Value) vm.Value {
	if vm.IsNullish(v) {
		return vm.Null
	}
	return v
}

func arith(fn func(a, b vm.Value) vm.Value) func(rt *vm.Runtime, a, b vm.Value) vm.Value {
	return func(rt *vm.Runtime, a, b vm.Value) vm.Value { return fn(prim(rt, a), prim(rt, b)) }
}

func compare(want ...int) func(rt *vm.Runtime, a, b vm.Value) bool {
	return func(rt *vm.Runtime, a, b vm.Value) bool {
		c := rt.Compare(a, b)
		for _, w := range want {
			if c == w {
				return true
			}
		}
		return false
	}
}

func not(fn func(rt *vm.Runtime, a, b vm.Value) bool) func(rt *vm.Runtime, a, b vm.Value) bool {
	return func(rt *vm.Runtime, a, b vm.Value) bool { return !fn(rt, a, b) }
}

var (
	lessThan      = compare(-1)
	lessEquals    = compare(-1, 0)
	greaterThan   = compare(1)
	greaterEquals = compare(1, 0)
)

func memory(f *frame) []byte {
	if d := f.domain; d != nil {
		return d.Memory()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instruction selection
// ---------------------------------------------------------------------------

func (p *Program) gen(i int, in *Instruction) (op, error) {
	sp, sd := p.Analysis.Stack[i], p.Analysis.Scope[i]
	next := i + 1
	m := p.Method
	mod := m.Module()
	base := sp - in.Pops

	jump := func(to int) op { return func(*frame) int { return to } }
	push := func(v vm.Value) op {
		return func(f *frame) int { f.regs[sp] = v; return next }
	}
	unary := func(fn func(rt *vm.Runtime, v vm.Value) vm.Value) op {
		r := sp - 1
		return func(f *frame) int { f.regs[r] = fn(f.rt, f.regs[r]); return next }
	}
	binary := func(fn func(rt *vm.Runtime, a, b vm.Value) vm.Value) op {
		a, b := sp-2, sp-1
		return func(f *frame) int { f.regs[a] = fn(f.rt, f.regs[a], f.regs[b]); return next }
	}
	test := func(fn func(rt *vm.Runtime, a, b vm.Value) bool) func(rt *vm.Runtime, a, b vm.Value) vm.Value {
		return func(rt *vm.Runtime, a, b vm.Value) vm.Value { return fn(rt, a, b) }
	}
	branch2 := func(fn func(rt *vm.Runtime, a, b vm.Value) bool) op {
		a, b, t := sp-2, sp-1, in.Targets[0]
		return func(f *frame) int {
			if fn(f.rt, f.regs[a], f.regs[b]) {
				return t
			}
			return next
		}
	}
	localInc := func(delta int, integer bool) (op, error) {
		r, err := p.local(in.A)
		if err != nil {
			return nil, err
		}
		if integer {
			d := int32(delta)
			return func(f *frame) int { f.locals[r] = toInt32(f.rt, f.locals[r]) + d; return next }, nil
		}
		d := float64(delta)
		return func(f *frame) int { f.locals[r] = vm.NumberValue(f.rt.ToNumber(f.locals[r]) + d); return next }, nil
	}

	switch code := in.Op.Base(); code {
	case abc.OpNop, abc.OpBkpt, abc.OpLabel, abc.OpDebug, abc.OpDebugLine, abc.OpDebugFile,
		abc.OpBkptLine, abc.OpTimestamp, abc.OpDxns, abc.OpDxnsLate, abc.OpPop, abc.OpPopScope:
		return jump(next), nil

	// Control flow
	case abc.OpThrow:
		r := sp - 1
		return func(f *frame) int { panic(&vm.Throw{Value: f.regs[r]}) }, nil
	case abc.OpJump:
		return jump(in.Targets[0]), nil
	case abc.OpIfTrue, abc.OpIfFalse:
		r, t, want := sp-1, in.Targets[0], code == abc.OpIfTrue
		return func(f *frame) int {
			if vm.ToBoolean(f.regs[r]) == want {
				return t
			}
			return next
		}, nil
	case abc.OpIfEq:
		return branch2(func(rt *vm.Runtime, a, b vm.Value) bool { return rt.Equals(a, b) }), nil
	case abc.OpIfNe:
		return branch2(func(rt *vm.Runtime, a, b vm.Value) bool { return !rt.Equals(a, b) }), nil
	case abc.OpIfStrictEq:
		return branch2(func(_ *vm.Runtime, a, b vm.Value) bool { return vm.StrictEquals(a, b) }), nil
	case abc.OpIfStrictNe:
		return branch2(func(_ *vm.Runtime, a, b vm.Value) bool { return !vm.StrictEquals(a, b) }), nil
	case abc.OpIfLt:
		return branch2(lessThan), nil
	case abc.OpIfLe:
		return branch2(lessEquals), nil
	case abc.OpIfGt:
		return branch2(greaterThan), nil
	case abc.OpIfGe:
		return branch2(greaterEquals), nil
	case abc.OpIfNlt:
		return branch2(not(lessThan)), nil
	case abc.OpIfNle:
		return branch2(not(lessEquals)), nil
	case abc.OpIfNgt:
		return branch2(not(greaterThan)), nil
	case abc.OpIfNge:
		return branch2(not(greaterEquals)), nil
	case abc.OpLookupSwitch:
		r, def, cases := sp-1, in.Targets[0], in.Targets[1:]
		return func(f *frame) int {
			k := vm.ToNumber(f.regs[r])
			if k >= 0 && k < float64(len(cases)) && k == math.Trunc(k) {
				return cases[int(k)]
			}
			return def
		}, nil
	case abc.OpReturnVoid:
		return func(f *frame) int { f.result = vm.Undefined; return done }, nil
	case abc.OpReturnValue:
		r, ret := sp-1, p.retType
		if ret == nil {
			return func(f *frame) int { f.result = f.regs[r]; return done }, nil
		}
		return func(f *frame) int {
			f.result = f.rt.Coerce(f.domain, f.regs[r], ret)
			return done
		}, nil

	// Stack
	case abc.OpPushNull:
		return push(vm.Null), nil
	case abc.OpPushUndefined:
		return push(vm.Undefined), nil
	case abc.OpPushTrue:
		return push(true), nil
	case abc.OpPushFalse:
		return push(false), nil
	case abc.OpPushNaN:
		return push(math.NaN()), nil
	case abc.OpPushByte, abc.OpPushShort:
		return push(int32(in.A)), nil
	case abc.OpPushInt:
		v, err := mod.Int(in.A)
		if err != nil {
			return nil, err
		}
		return push(v), nil
	case abc.OpPushUint:
		v, err := mod.Uint(in.A)
		if err != nil {
			return nil, err
		}
		return push(v), nil
	case abc.OpPushDouble:
		v, err := mod.Double(in.A)
		if err != nil {
			return nil, err
		}
		return push(vm.NumberValue(v)), nil
	case abc.OpPushString:
		v, err := mod.String(in.A)
		if err != nil {
			return nil, err
		}
		return push(v), nil
	case abc.OpPushNamespace:
		v, err := mod.Namespace(in.A)
		if err != nil {
			return nil, err
		}
		return push(v), nil
	case abc.OpDup:
		return func(f *frame) int { f.regs[sp] = f.regs[sp-1]; return next }, nil
	case abc.OpSwap:
		a, b := sp-2, sp-1
		return func(f *frame) int { f.regs[a], f.regs[b] = f.regs[b], f.regs[a]; return next }, nil

	// Scopes
	case abc.OpPushScope, abc.OpPushWith:
		r, with := sp-1, code == abc.OpPushWith
		return func(f *frame) int {
			v := f.regs[r]
			f.rt.CheckNullish(v)
			f.scopes[sd+1] = f.scopes[sd].Push(v, with)
			return next
		}, nil
	case abc.OpGetGlobalScope:
		return func(f *frame) int { f.regs[sp] = f.scopes[sd].Global(); return next }, nil
	case abc.OpGetScopeObject:
		k := in.A + 1
		return func(f *frame) int { f.regs[sp] = f.scopes[k].Object(); return next }, nil
	case abc.OpGetOuterScope:
		if in.A >= p.base.Depth() {
			return nil, fmt.Errorf("%w: outer scope %d of %d", ErrScopeUnderrun, in.A, p.base.Depth())
		}
		k := in.A
		return func(f *frame) int { f.regs[sp] = f.scopes[0].At(k); return next }, nil

	// Locals
	case abc.OpGetLocal, abc.OpGetLocal0, abc.OpGetLocal1, abc.OpGetLocal2, abc.OpGetLocal3:
		idx := in.A
		if code != abc.OpGetLocal {
			idx = int(code - abc.OpGetLocal0)
		}
		r, err := p.local(idx)
		if err != nil {
			return nil, err
		}
		return func(f *frame) int { f.regs[sp] = f.locals[r]; return next }, nil
	case abc.OpSetLocal, abc.OpSetLocal0, abc.OpSetLocal1, abc.OpSetLocal2, abc.OpSetLocal3:
		idx := in.A
		if code != abc.OpSetLocal {
			idx = int(code - abc.OpSetLocal0)
		}
		r, err := p.local(idx)
		if err != nil {
			return nil, err
		}
		return func(f *frame) int { f.locals[r] = f.regs[sp-1]; return next }, nil
	case abc.OpKill:
		r, err := p.local(in.A)
		if err != nil {
			return nil, err
		}
		return func(f *frame) int { f.locals[r] = vm.Undefined; return next }, nil
	case abc.OpIncLocal:
		return localInc(1, false)
	case abc.OpDecLocal:
		return localInc(-1, false)
	case abc.OpIncLocalI:
		return localInc(1, true)
	case abc.OpDecLocalI:
		return localInc(-1, true)

	// Enumeration
	case abc.OpHasNext:
		return binary(func(rt *vm.Runtime, o, k vm.Value) vm.Value { return rt.HasNext(o, vm.ToInt32(k)) }), nil
	case abc.OpNextName:
		return binary(func(rt *vm.Runtime, o, k vm.Value) vm.Value { return rt.NextName(o, vm.ToInt32(k)) }), nil
	case abc.OpNextValue:
		return binary(func(rt *vm.Runtime, o, k vm.Value) vm.Value { return rt.NextValue(o, vm.ToInt32(k)) }), nil
	case abc.OpHasNext2:
		obj, err := p.local(in.A)
		if err != nil {
			return nil, err
		}
		idx, err := p.local(in.B)
		if err != nil {
			return nil, err
		}
		return func(f *frame) int {
			o, k, ok := f.rt.HasNext2(f.locals[obj], vm.ToInt32(f.locals[idx]))
			f.locals[obj], f.locals[idx] = o, k
			f.regs[sp] = ok
			return next
		}, nil

	// Domain memory
	case abc.OpLi8, abc.OpLi16, abc.OpLi32, abc.OpLf32, abc.OpLf64:
		r := sp - 1
		return func(f *frame) int { f.regs[r] = f.rt.MemLoad(memory(f), code, f.regs[r]); return next }, nil
	case abc.OpSi8, abc.OpSi16, abc.OpSi32, abc.OpSf32, abc.OpSf64:
		v, addr := sp-2, sp-1
		return func(f *frame) int { f.rt.MemStore(memory(f), code, f.regs[v], f.regs[addr]); return next }, nil
	case abc.OpSxi1, abc.OpSxi8, abc.OpSxi16:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return vm.SignExtend(code, prim(rt, v)) }), nil

	// Conversions
	case abc.OpConvertS:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return rt.ToString(v) }), nil
	case abc.OpCoerceS:
		return unary(coerceString), nil
	case abc.OpConvertI, abc.OpCoerceI:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return toInt32(rt, v) }), nil
	case abc.OpConvertU, abc.OpCoerceU:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return toUint32(rt, v) }), nil
	case abc.OpConvertD, abc.OpCoerceD:
		return unary(toNumber), nil
	case abc.OpConvertB, abc.OpCoerceB:
		return unary(func(_ *vm.Runtime, v vm.Value) vm.Value { return vm.ToBoolean(v) }), nil
	case abc.OpConvertO:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { rt.CheckNullish(v); return v }), nil
	case abc.OpCoerceO:
		return unary(coerceObject), nil
	case abc.OpCoerceA:
		return jump(next), nil
	case abc.OpEscXElem, abc.OpEscXAttr:
		attr := code == abc.OpEscXAttr
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return rt.EscapeMarkup(v, attr) }), nil
	case abc.OpCheckFilter:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return rt.CheckFilter(v) }), nil
	case abc.OpCoerce, abc.OpAsType, abc.OpIsType:
		t := p.name(in)
		r := sp - 1
		switch code {
		case abc.OpCoerce:
			return func(f *frame) int { f.regs[r] = f.rt.Coerce(f.domain, f.regs[r], t); return next }, nil
		case abc.OpAsType:
			return func(f *frame) int { f.regs[r] = f.rt.AsType(f.domain, f.regs[r], t); return next }, nil
		}
		return func(f *frame) int { f.regs[r] = f.rt.IsType(f.domain, f.regs[r], t); return next }, nil
	case abc.OpAsTypeLate:
		return binary(func(rt *vm.Runtime, v, c vm.Value) vm.Value { return rt.AsTypeLate(v, c) }), nil
	case abc.OpIsTypeLate:
		return binary(test(func(rt *vm.Runtime, v, c vm.Value) bool { return rt.IsTypeLate(v, c) })), nil
	case abc.OpInstanceOf:
		return binary(test(func(rt *vm.Runtime, v, c vm.Value) bool { return rt.InstanceOf(v, c) })), nil
	case abc.OpIn:
		return binary(test(func(rt *vm.Runtime, k, o vm.Value) bool { return rt.In(k, o) })), nil
	case abc.OpTypeOf:
		return unary(func(_ *vm.Runtime, v vm.Value) vm.Value { return vm.TypeOf(v) }), nil

	// Arithmetic
	case abc.OpNegate:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return vm.Negate(prim(rt, v)) }), nil
	case abc.OpIncrement:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return vm.Increment(prim(rt, v)) }), nil
	case abc.OpDecrement:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return vm.Decrement(prim(rt, v)) }), nil
	case abc.OpIncrementI:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return toInt32(rt, v) + 1 }), nil
	case abc.OpDecrementI:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return toInt32(rt, v) - 1 }), nil
	case abc.OpNegateI:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return -toInt32(rt, v) }), nil
	case abc.OpNot:
		return unary(func(_ *vm.Runtime, v vm.Value) vm.Value { return !vm.ToBoolean(v) }), nil
	case abc.OpBitNot:
		return unary(func(rt *vm.Runtime, v vm.Value) vm.Value { return ^toInt32(rt, v) }), nil
	case abc.OpAdd:
		return binary(func(rt *vm.Runtime, a, b vm.Value) vm.Value { return rt.Add(a, b) }), nil
	case abc.OpSubtract:
		return binary(arith(vm.Subtract)), nil
	case abc.OpMultiply:
		return binary(arith(vm.Multiply)), nil
	case abc.OpDivide:
		return binary(arith(vm.Divide)), nil
	case abc.OpModulo:
		return binary(arith(vm.Modulo)), nil
	case abc.OpLShift:
		return binary(arith(vm.LShift)), nil
	case abc.OpRShift:
		return binary(arith(vm.RShift)), nil
	case abc.OpURShift:
		return binary(arith(vm.URShift)), nil
	case abc.OpBitAnd:
		return binary(arith(vm.BitAnd)), nil
	case abc.OpBitOr:
		return binary(arith(vm.BitOr)), nil
	case abc.OpBitXor:
		return binary(arith(vm.BitXor)), nil
	case abc.OpAddI:
		return binary(func(rt *vm.Runtime, a, b vm.Value) vm.Value { return toInt32(rt, a) + toInt32(rt, b) }), nil
	case abc.OpSubtractI:
		return binary(func(rt *vm.Runtime, a, b vm.Value) vm.Value { return toInt32(rt, a) - toInt32(rt, b) }), nil
	case abc.OpMultiplyI:
		return binary(func(rt *vm.Runtime, a, b vm.Value) vm.Value { return toInt32(rt, a) * toInt32(rt, b) }), nil
	case abc.OpEquals:
		return binary(test(func(rt *vm.Runtime, a, b vm.Value) bool { return rt.Equals(a, b) })), nil
	case abc.OpStrictEquals:
		return binary(test(func(_ *vm.Runtime, a, b vm.Value) bool { return vm.StrictEquals(a, b) })), nil
	case abc.OpLessThan:
		return binary(test(lessThan)), nil
	case abc.OpLessEquals:
		return binary(test(lessEquals)), nil
	case abc.OpGreaterThan:
		return binary(test(greaterThan)), nil
	case abc.OpGreaterEquals:
		return binary(test(greaterEquals)), nil

	// Slots
	case abc.OpGetSlot:
		id := in.A
		return unary(func(rt *vm.Runtime, o vm.Value) vm.Value { return rt.GetSlot(o, id) }), nil
	case abc.OpSetSlot:
		id, o, v := in.A, sp-2, sp-1
		return func(f *frame) int { f.rt.SetSlot(f.regs[o], id, f.regs[v]); return next }, nil
	case abc.OpGetGlobalSlot:
		id := in.A
		return func(f *frame) int { f.regs[sp] = f.rt.GetSlot(f.scopes[sd].Global(), id); return next }, nil
	case abc.OpSetGlobalSlot:
		id, v := in.A, sp-1
		return func(f *frame) int { f.rt.SetSlot(f.scopes[sd].Global(), id, f.regs[v]); return next }, nil

	// Object creation
	case abc.OpNewObject:
		return func(f *frame) int { f.regs[base] = f.rt.NewObject(collect(f, base, sp)); return next }, nil
	case abc.OpNewArray:
		return func(f *frame) int { f.regs[base] = f.rt.NewArray(collect(f, base, sp)); return next }, nil
	case abc.OpNewActivation:
		return func(f *frame) int { f.regs[sp] = f.rt.NewActivation(f.m); return next }, nil
	case abc.OpNewCatch:
		if in.A >= len(m.Body.Exceptions) {
			return nil, fmt.Errorf("%w: handler %d", abc.ErrIndexOutOfRange, in.A)
		}
		k := in.A
		return func(f *frame) int { f.regs[sp] = f.rt.NewCatch(f.m, k); return next }, nil
	case abc.OpNewFunction:
		if in.A >= mod.MethodCount() {
			return nil, fmt.Errorf("%w: method %d", abc.ErrIndexOutOfRange, in.A)
		}
		k := in.A
		return func(f *frame) int { f.regs[sp] = f.rt.NewFunction(mod, k, f.scopes[sd]); return next }, nil
	case abc.OpNewClass:
		if in.A >= len(mod.Classes) {
			return nil, fmt.Errorf("%w: class %d", abc.ErrIndexOutOfRange, in.A)
		}
		ci, r := mod.Classes[in.A], sp-1
		return func(f *frame) int {
			var super *vm.Class
			if c, ok := f.regs[r].(*vm.Class); ok {
				super = c
			} else if !vm.IsNullish(f.regs[r]) {
				f.rt.ThrowError(vm.CodeNotAClass)
			}
			f.regs[r] = f.rt.NewClass(f.scopes[sd], ci, super)
			return next
		}, nil
	case abc.OpApplyType:
		return func(f *frame) int {
			f.regs[base] = f.rt.ApplyType(f.regs[base], collect(f, base+1, sp))
			return next
		}, nil

	// Calls
	case abc.OpCall:
		return func(f *frame) int {
			f.regs[base] = f.rt.Call(f.regs[base], f.regs[base+1], collect(f, base+2, sp))
			return next
		}, nil
	case abc.OpConstruct:
		return func(f *frame) int {
			f.regs[base] = f.rt.Construct(f.regs[base], collect(f, base+1, sp))
			return next
		}, nil
	case abc.OpCallMethod:
		id := in.A
		return func(f *frame) int {
			f.regs[base] = f.rt.CallMethod(f.regs[base], id, collect(f, base+1, sp))
			return next
		}, nil
	case abc.OpCallStatic:
		if in.A >= mod.MethodCount() {
			return nil, fmt.Errorf("%w: method %d", abc.ErrIndexOutOfRange, in.A)
		}
		k := in.A
		return func(f *frame) int {
			f.regs[base] = f.rt.CallStatic(f.m, k, f.regs[base], collect(f, base+1, sp))
			return next
		}, nil
	case abc.OpConstructSuper:
		return func(f *frame) int {
			f.rt.ConstructSuper(f.m, f.regs[base], collect(f, base+1, sp))
			return next
		}, nil
	}

	if in.Name != nil {
		return p.genNamed(in, sp, sd, next)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, in.Op)
}

// genNamed handles the opcodes that take a multiname operand. Their
// operands are laid out as receiver (except the find family), runtime name
// parts, then value or arguments.
func (p *Program) genNamed(in *Instruction, sp, sd, next int) (op, error) {
	code := in.Op.Base()
	base := sp - in.Pops
	parts := nameParts(in)

	switch code {
	case abc.OpFindPropStrict, abc.OpFindProperty:
		name := p.nameAt(in, base)
		strict := code == abc.OpFindPropStrict
		if !in.Op.IsDynamic() {
			find := p.lookup(in, sd, strict)
			return func(f *frame) int { f.regs[base] = find(f); return next }, nil
		}
		return func(f *frame) int {
			f.regs[base] = f.scopes[sd].FindScopeProperty(f.rt, name(f), strict, false)
			return next
		}, nil
	case abc.OpGetLex:
		if in.Op.IsDynamic() {
			return nil, fmt.Errorf("%w: getlex with runtime name %s", abc.ErrBadNameKind, in.Name)
		}
		name := p.name(in)
		find := p.lookup(in, sd, true)
		return func(f *frame) int {
			f.regs[sp] = f.rt.GetProperty(find(f), name)
			return next
		}, nil
	case abc.OpFindDef:
		if in.Op.IsDynamic() {
			return nil, fmt.Errorf("%w: finddef with runtime name %s", abc.ErrBadNameKind, in.Name)
		}
		name := p.name(in)
		return func(f *frame) int {
			v, err := f.domain.FindProperty(name, true)
			if err != nil {
				panic(err)
			}
			f.regs[sp] = v
			return next
		}, nil
	}

	name := p.nameAt(in, base+1)
	val := base + 1 + parts

	switch code {
	case abc.OpGetProperty:
		return func(f *frame) int {
			f.regs[base] = f.rt.GetProperty(f.regs[base], name(f))
			return next
		}, nil
	case abc.OpSetProperty:
		return func(f *frame) int {
			f.rt.SetProperty(f.regs[base], name(f), f.regs[val])
			return next
		}, nil
	case abc.OpInitProperty:
		return func(f *frame) int {
			f.rt.InitProperty(f.regs[base], name(f), f.regs[val])
			return next
		}, nil
	case abc.OpDeleteProperty:
		return func(f *frame) int {
			f.regs[base] = f.rt.DeleteProperty(f.regs[base], name(f))
			return next
		}, nil
	case abc.OpGetDescendants:
		return func(f *frame) int {
			f.regs[base] = f.rt.GetDescendants(f.regs[base], name(f))
			return next
		}, nil
	case abc.OpGetSuper:
		return func(f *frame) int {
			f.regs[base] = f.rt.GetSuper(f.m, f.regs[base], name(f))
			return next
		}, nil
	case abc.OpSetSuper:
		return func(f *frame) int {
			f.rt.SetSuper(f.m, f.regs[base], name(f), f.regs[val])
			return next
		}, nil
	case abc.OpCallProperty, abc.OpCallPropVoid:
		void := code == abc.OpCallPropVoid
		return func(f *frame) int {
			r := f.rt.CallProperty(f.regs[base], name(f), collect(f, val, sp))
			if !void {
				f.regs[base] = r
			}
			return next
		}, nil
	case abc.OpCallPropLex:
		return func(f *frame) int {
			f.regs[base] = f.rt.CallPropLex(f.regs[base], name(f), collect(f, val, sp))
			return next
		}, nil
	case abc.OpConstructProp:
		return func(f *frame) int {
			f.regs[base] = f.rt.ConstructProperty(f.regs[base], name(f), collect(f, val, sp))
			return next
		}, nil
	case abc.OpCallSuper, abc.OpCallSuperVoid:
		void := code == abc.OpCallSuperVoid
		return func(f *frame) int {
			r := f.rt.CallSuper(f.m, f.regs[base], name(f), collect(f, val, sp))
			if !void {
				f.regs[base] = r
			}
			return next
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, in.Op)
}

// lookup compiles the scope search for a fixed name. With profiling on, a
// site that has always resolved at the same frame reads that frame
// directly and falls back to the full search when the frame no longer
// holds the name or a nearer frame has gained it.
func (p *Program) lookup(in *Instruction, sd int, strict bool) func(f *frame) vm.Value {
	name, pos := p.name(in), in.Pos
	search := func(f *frame) vm.Value {
		return f.scopes[sd].FindScopeProperty(f.rt, name, strict, false)
	}
	if !p.profiled {
		return search
	}
	record := func(f *frame) vm.Value {
		v := search(f)
		if d := f.scopes[sd].FrameDepth(v); d >= 0 {
			f.rt.Profiler().RecordResolution(f.m, pos, d)
		}
		return v
	}
	depth, ok := p.rt.Profiler().StableDepth(p.Method, pos)
	if !ok {
		return record
	}
	p.FastSites++
	return func(f *frame) vm.Value {
		s := f.scopes[sd]
		// A nearer frame that now declares the name wins.
		for k := 0; k < depth && s != nil; k++ {
			if s.IsWith() {
				return record(f)
			}
			if o, ok := s.Object().(vm.Object); ok && o.HasTrait(name) {
				return record(f)
			}
			s = s.Parent()
		}
		if s != nil && !s.IsWith() {
			if o, ok := s.Object().(vm.Object); ok && o.HasTrait(name) {
				return s.Object()
			}
		}
		return record(f)
	}
}
