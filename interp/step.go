package interp

import (
	"math"

	"github.com/chazu/abcvm/abc"
	"github.com/chazu/abcvm/vm"
)

func (f *frame) prim(v vm.Value) vm.Value {
	if _, ok := v.(vm.Object); ok {
		return f.rt.ToPrimitive(v, false)
	}
	return v
}

func (f *frame) toInt32(v vm.Value) int32 { return vm.ToInt32(f.prim(v)) }

func (f *frame) unary(fn func(v vm.Value) vm.Value) { f.setTop(fn(f.prim(f.top()))) }

func (f *frame) binary(fn func(a, b vm.Value) vm.Value) {
	b := f.pop()
	f.setTop(fn(f.prim(f.top()), f.prim(b)))
}

func (f *frame) compare(want ...int) bool {
	b := f.pop()
	a := f.pop()
	c := f.rt.Compare(a, b)
	for _, w := range want {
		if c == w {
			return true
		}
	}
	return false
}

func (f *frame) branch(in *abc.Instr, taken bool) {
	if taken {
		f.pc = in.Targets[0]
	}
}

func (f *frame) constant(v vm.Value, err error) vm.Value {
	if err != nil {
		verifyError("%s", err)
	}
	return v
}

func (f *frame) localIndex(code abc.Opcode, in *abc.Instr, first abc.Opcode, general abc.Opcode) int {
	if code == general {
		return f.local(in.A)
	}
	return f.local(int(code - first))
}

// step executes one instruction and reports whether the method returned.
func (f *frame) step(in *abc.Instr) bool {
	rt := f.rt
	switch code := in.Op; code {
	case abc.OpNop, abc.OpBkpt, abc.OpLabel, abc.OpDebug, abc.OpDebugLine, abc.OpDebugFile,
		abc.OpBkptLine, abc.OpTimestamp, abc.OpCoerceA:
	case abc.OpDxns:
	case abc.OpDxnsLate:
		f.pop()

	// Control flow
	case abc.OpThrow:
		panic(&vm.Throw{Value: f.pop()})
	case abc.OpJump:
		f.pc = in.Targets[0]
	case abc.OpIfTrue:
		f.branch(in, vm.ToBoolean(f.pop()))
	case abc.OpIfFalse:
		f.branch(in, !vm.ToBoolean(f.pop()))
	case abc.OpIfEq, abc.OpIfNe, abc.OpIfStrictEq, abc.OpIfStrictNe:
		b := f.pop()
		a := f.pop()
		var eq bool
		if code == abc.OpIfEq || code == abc.OpIfNe {
			eq = rt.Equals(a, b)
		} else {
			eq = vm.StrictEquals(a, b)
		}
		f.branch(in, eq == (code == abc.OpIfEq || code == abc.OpIfStrictEq))
	case abc.OpIfLt:
		f.branch(in, f.compare(-1))
	case abc.OpIfLe:
		f.branch(in, f.compare(-1, 0))
	case abc.OpIfGt:
		f.branch(in, f.compare(1))
	case abc.OpIfGe:
		f.branch(in, f.compare(1, 0))
	case abc.OpIfNlt:
		f.branch(in, !f.compare(-1))
	case abc.OpIfNle:
		f.branch(in, !f.compare(-1, 0))
	case abc.OpIfNgt:
		f.branch(in, !f.compare(1))
	case abc.OpIfNge:
		f.branch(in, !f.compare(1, 0))
	case abc.OpLookupSwitch:
		k := vm.ToNumber(f.pop())
		cases := in.Targets[1:]
		if k >= 0 && k < float64(len(cases)) && k == math.Trunc(k) {
			f.pc = cases[int(k)]
		} else {
			f.pc = in.Targets[0]
		}
	case abc.OpReturnVoid:
		f.result = vm.Undefined
		return true
	case abc.OpReturnValue:
		v := f.pop()
		if t := f.m.Info.ReturnType; t != 0 {
			n := f.constantName(t)
			if !(n.IsQName() && n.IsPublic() && n.LocalName() == "void") {
				v = rt.Coerce(f.domain, v, n)
			}
		}
		f.result = v
		return true

	// Stack
	case abc.OpPushNull:
		f.push(vm.Null)
	case abc.OpPushUndefined:
		f.push(vm.Undefined)
	case abc.OpPushTrue:
		f.push(true)
	case abc.OpPushFalse:
		f.push(false)
	case abc.OpPushNaN:
		f.push(math.NaN())
	case abc.OpPushByte, abc.OpPushShort:
		f.push(int32(in.A))
	case abc.OpPushInt:
		v, err := f.mod.Int(in.A)
		f.push(f.constant(v, err))
	case abc.OpPushUint:
		v, err := f.mod.Uint(in.A)
		f.push(f.constant(v, err))
	case abc.OpPushDouble:
		v, err := f.mod.Double(in.A)
		f.constant(nil, err)
		f.push(vm.NumberValue(v))
	case abc.OpPushString:
		v, err := f.mod.String(in.A)
		f.push(f.constant(v, err))
	case abc.OpPushNamespace:
		v, err := f.mod.Namespace(in.A)
		f.push(f.constant(v, err))
	case abc.OpPop:
		f.pop()
	case abc.OpDup:
		f.push(f.top())
	case abc.OpSwap:
		b := f.pop()
		a := f.pop()
		f.push(b)
		f.push(a)

	// Scopes
	case abc.OpPushScope, abc.OpPushWith:
		v := f.pop()
		rt.CheckNullish(v)
		f.scopes = append(f.scopes, f.scope().Push(v, code == abc.OpPushWith))
	case abc.OpPopScope:
		if len(f.scopes) == 1 {
			verifyError("scope stack underflow at %d", f.at)
		}
		f.scopes = f.scopes[:len(f.scopes)-1]
	case abc.OpGetGlobalScope:
		f.push(f.scope().Global())
	case abc.OpGetScopeObject:
		if in.A+1 >= len(f.scopes) {
			verifyError("scope index %d out of range at %d", in.A, f.at)
		}
		f.push(f.scopes[in.A+1].Object())
	case abc.OpGetOuterScope:
		if in.A >= f.scopes[0].Depth() {
			verifyError("outer scope index %d out of range at %d", in.A, f.at)
		}
		f.push(f.scopes[0].At(in.A))

	// Locals
	case abc.OpGetLocal, abc.OpGetLocal0, abc.OpGetLocal1, abc.OpGetLocal2, abc.OpGetLocal3:
		f.push(f.locals[f.localIndex(code, in, abc.OpGetLocal0, abc.OpGetLocal)])
	case abc.OpSetLocal, abc.OpSetLocal0, abc.OpSetLocal1, abc.OpSetLocal2, abc.OpSetLocal3:
		f.locals[f.localIndex(code, in, abc.OpSetLocal0, abc.OpSetLocal)] = f.pop()
	case abc.OpKill:
		f.locals[f.local(in.A)] = vm.Undefined
	case abc.OpIncLocal, abc.OpDecLocal:
		r := f.local(in.A)
		d := 1.0
		if code == abc.OpDecLocal {
			d = -1
		}
		f.locals[r] = vm.NumberValue(rt.ToNumber(f.locals[r]) + d)
	case abc.OpIncLocalI, abc.OpDecLocalI:
		r := f.local(in.A)
		d := int32(1)
		if code == abc.OpDecLocalI {
			d = -1
		}
		f.locals[r] = f.toInt32(f.locals[r]) + d

	// Enumeration
	case abc.OpHasNext:
		k := vm.ToInt32(f.pop())
		f.setTop(rt.HasNext(f.top(), k))
	case abc.OpNextName:
		k := vm.ToInt32(f.pop())
		f.setTop(rt.NextName(f.top(), k))
	case abc.OpNextValue:
		k := vm.ToInt32(f.pop())
		f.setTop(rt.NextValue(f.top(), k))
	case abc.OpHasNext2:
		obj, idx := f.local(in.A), f.local(in.B)
		o, k, ok := rt.HasNext2(f.locals[obj], vm.ToInt32(f.locals[idx]))
		f.locals[obj], f.locals[idx] = o, k
		f.push(ok)

	// Domain memory
	case abc.OpLi8, abc.OpLi16, abc.OpLi32, abc.OpLf32, abc.OpLf64:
		f.setTop(rt.MemLoad(f.memory(), code, f.top()))
	case abc.OpSi8, abc.OpSi16, abc.OpSi32, abc.OpSf32, abc.OpSf64:
		addr := f.pop()
		rt.MemStore(f.memory(), code, f.pop(), addr)
	case abc.OpSxi1, abc.OpSxi8, abc.OpSxi16:
		f.unary(func(v vm.Value) vm.Value { return vm.SignExtend(code, v) })

	// Conversions
	case abc.OpConvertS:
		f.setTop(rt.ToString(f.top()))
	case abc.OpCoerceS:
		if v := f.top(); vm.IsNullish(v) {
			f.setTop(vm.Null)
		} else {
			f.setTop(rt.ToString(v))
		}
	case abc.OpConvertI, abc.OpCoerceI:
		f.setTop(f.toInt32(f.top()))
	case abc.OpConvertU, abc.OpCoerceU:
		f.setTop(vm.ToUint32(f.prim(f.top())))
	case abc.OpConvertD, abc.OpCoerceD:
		f.setTop(vm.NumberValue(rt.ToNumber(f.top())))
	case abc.OpConvertB, abc.OpCoerceB:
		f.setTop(vm.ToBoolean(f.top()))
	case abc.OpConvertO:
		rt.CheckNullish(f.top())
	case abc.OpCoerceO:
		if vm.IsNullish(f.top()) {
			f.setTop(vm.Null)
		}
	case abc.OpEscXElem, abc.OpEscXAttr:
		f.setTop(rt.EscapeMarkup(f.top(), code == abc.OpEscXAttr))
	case abc.OpCheckFilter:
		f.setTop(rt.CheckFilter(f.top()))
	case abc.OpCoerce:
		f.setTop(rt.Coerce(f.domain, f.top(), f.constantName(in.A)))
	case abc.OpAsType:
		f.setTop(rt.AsType(f.domain, f.top(), f.constantName(in.A)))
	case abc.OpIsType:
		f.setTop(rt.IsType(f.domain, f.top(), f.constantName(in.A)))
	case abc.OpAsTypeLate:
		c := f.pop()
		f.setTop(rt.AsTypeLate(f.top(), c))
	case abc.OpIsTypeLate:
		c := f.pop()
		f.setTop(rt.IsTypeLate(f.top(), c))
	case abc.OpInstanceOf:
		c := f.pop()
		f.setTop(rt.InstanceOf(f.top(), c))
	case abc.OpIn:
		o := f.pop()
		f.setTop(rt.In(f.top(), o))
	case abc.OpTypeOf:
		f.setTop(vm.TypeOf(f.top()))

	// Arithmetic
	case abc.OpNegate:
		f.unary(vm.Negate)
	case abc.OpIncrement:
		f.unary(vm.Increment)
	case abc.OpDecrement:
		f.unary(vm.Decrement)
	case abc.OpIncrementI:
		f.setTop(f.toInt32(f.top()) + 1)
	case abc.OpDecrementI:
		f.setTop(f.toInt32(f.top()) - 1)
	case abc.OpNegateI:
		f.setTop(-f.toInt32(f.top()))
	case abc.OpNot:
		f.setTop(!vm.ToBoolean(f.top()))
	case abc.OpBitNot:
		f.unary(vm.BitNot)
	case abc.OpAdd:
		b := f.pop()
		f.setTop(rt.Add(f.top(), b))
	case abc.OpSubtract:
		f.binary(vm.Subtract)
	case abc.OpMultiply:
		f.binary(vm.Multiply)
	case abc.OpDivide:
		f.binary(vm.Divide)
	case abc.OpModulo:
		f.binary(vm.Modulo)
	case abc.OpLShift:
		f.binary(vm.LShift)
	case abc.OpRShift:
		f.binary(vm.RShift)
	case abc.OpURShift:
		f.binary(vm.URShift)
	case abc.OpBitAnd:
		f.binary(vm.BitAnd)
	case abc.OpBitOr:
		f.binary(vm.BitOr)
	case abc.OpBitXor:
		f.binary(vm.BitXor)
	case abc.OpAddI:
		b := f.toInt32(f.pop())
		f.setTop(f.toInt32(f.top()) + b)
	case abc.OpSubtractI:
		b := f.toInt32(f.pop())
		f.setTop(f.toInt32(f.top()) - b)
	case abc.OpMultiplyI:
		b := f.toInt32(f.pop())
		f.setTop(f.toInt32(f.top()) * b)
	case abc.OpEquals:
		b := f.pop()
		f.setTop(rt.Equals(f.top(), b))
	case abc.OpStrictEquals:
		b := f.pop()
		f.setTop(vm.StrictEquals(f.top(), b))
	case abc.OpLessThan:
		f.push(f.compare(-1))
	case abc.OpLessEquals:
		f.push(f.compare(-1, 0))
	case abc.OpGreaterThan:
		f.push(f.compare(1))
	case abc.OpGreaterEquals:
		f.push(f.compare(1, 0))

	// Slots
	case abc.OpGetSlot:
		f.setTop(rt.GetSlot(f.top(), in.A))
	case abc.OpSetSlot:
		v := f.pop()
		rt.SetSlot(f.pop(), in.A, v)
	case abc.OpGetGlobalSlot:
		f.push(rt.GetSlot(f.scope().Global(), in.A))
	case abc.OpSetGlobalSlot:
		rt.SetSlot(f.scope().Global(), in.A, f.pop())

	// Object creation
	case abc.OpNewObject:
		f.push(rt.NewObject(f.popN(2 * in.A)))
	case abc.OpNewArray:
		f.push(rt.NewArray(f.popN(in.A)))
	case abc.OpNewActivation:
		f.push(rt.NewActivation(f.m))
	case abc.OpNewCatch:
		if in.A >= len(f.m.Body.Exceptions) {
			verifyError("handler %d out of range at %d", in.A, f.at)
		}
		f.push(rt.NewCatch(f.m, in.A))
	case abc.OpNewFunction:
		if in.A >= f.mod.MethodCount() {
			verifyError("method %d out of range at %d", in.A, f.at)
		}
		f.push(rt.NewFunction(f.mod, in.A, f.scope()))
	case abc.OpNewClass:
		if in.A >= len(f.mod.Classes) {
			verifyError("class %d out of range at %d", in.A, f.at)
		}
		var super *vm.Class
		switch s := f.pop().(type) {
		case *vm.Class:
			super = s
		default:
			if !vm.IsNullish(s) {
				rt.ThrowError(vm.CodeNotAClass)
			}
		}
		f.push(rt.NewClass(f.scope(), f.mod.Classes[in.A], super))
	case abc.OpApplyType:
		params := f.popN(in.A)
		f.setTop(rt.ApplyType(f.top(), params))

	// Calls
	case abc.OpCall:
		args := f.popN(in.A)
		self := f.pop()
		f.setTop(rt.Call(f.top(), self, args))
	case abc.OpConstruct:
		args := f.popN(in.A)
		f.setTop(rt.Construct(f.top(), args))
	case abc.OpCallMethod:
		args := f.popN(in.B)
		f.setTop(rt.CallMethod(f.top(), in.A, args))
	case abc.OpCallStatic:
		if in.A >= f.mod.MethodCount() {
			verifyError("method %d out of range at %d", in.A, f.at)
		}
		args := f.popN(in.B)
		f.setTop(rt.CallStatic(f.m, in.A, f.top(), args))
	case abc.OpConstructSuper:
		args := f.popN(in.A)
		rt.ConstructSuper(f.m, f.pop(), args)

	default:
		if !f.named(in) {
			verifyError("unknown opcode %s at %d", code, f.at)
		}
	}
	return false
}

func (f *frame) constantName(index int) *abc.Name {
	n, err := f.mod.Name(index)
	if err != nil {
		verifyError("%s", err)
	}
	return n
}

// named executes the multiname-taking opcodes. Arguments are popped
// first, then runtime name parts, then the receiver.
func (f *frame) named(in *abc.Instr) bool {
	rt := f.rt
	switch in.Op {
	case abc.OpFindPropStrict, abc.OpFindProperty:
		name := f.name(in.A)
		strict := in.Op == abc.OpFindPropStrict
		if name.IsFixed() {
			f.push(f.find(name, strict))
		} else {
			f.push(f.scope().FindScopeProperty(rt, name, strict, false))
		}
	case abc.OpGetLex:
		name := f.constantName(in.A)
		if name.IsRuntime() {
			verifyError("getlex with runtime name %s at %d", name, f.at)
		}
		f.push(rt.GetProperty(f.find(name, true), name))
	case abc.OpFindDef:
		name := f.constantName(in.A)
		v, err := f.domain.FindProperty(name, true)
		if err != nil {
			panic(err)
		}
		f.push(v)
	case abc.OpGetProperty:
		name := f.name(in.A)
		f.setTop(rt.GetProperty(f.top(), name))
	case abc.OpSetProperty, abc.OpInitProperty, abc.OpSetSuper:
		v := f.pop()
		name := f.name(in.A)
		obj := f.pop()
		switch in.Op {
		case abc.OpSetProperty:
			rt.SetProperty(obj, name, v)
		case abc.OpInitProperty:
			rt.InitProperty(obj, name, v)
		default:
			rt.SetSuper(f.m, obj, name, v)
		}
	case abc.OpDeleteProperty:
		name := f.name(in.A)
		f.setTop(rt.DeleteProperty(f.top(), name))
	case abc.OpGetDescendants:
		name := f.name(in.A)
		f.setTop(rt.GetDescendants(f.top(), name))
	case abc.OpGetSuper:
		name := f.name(in.A)
		f.setTop(rt.GetSuper(f.m, f.top(), name))
	case abc.OpCallProperty, abc.OpCallPropVoid, abc.OpCallPropLex, abc.OpConstructProp,
		abc.OpCallSuper, abc.OpCallSuperVoid:
		args := f.popN(in.B)
		name := f.name(in.A)
		recv := f.pop()
		var r vm.Value
		switch in.Op {
		case abc.OpCallProperty, abc.OpCallPropVoid:
			r = rt.CallProperty(recv, name, args)
		case abc.OpCallPropLex:
			r = rt.CallPropLex(recv, name, args)
		case abc.OpConstructProp:
			r = rt.ConstructProperty(recv, name, args)
		default:
			r = rt.CallSuper(f.m, recv, name, args)
		}
		if in.Op != abc.OpCallPropVoid && in.Op != abc.OpCallSuperVoid {
			f.push(r)
		}
	default:
		return false
	}
	return true
}
