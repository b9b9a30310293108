package vm

import (
	"encoding/binary"
	"math"

	"github.com/chazu/abcvm/abc"
)

// PrepareLocals builds the local register file of a call to m: the
// receiver in local 0, coerced parameters (defaults filled in for missing
// optional ones), then the rest array or arguments object when the method
// asks for one. Remaining locals are Undefined.
func (rt *Runtime) PrepareLocals(m *Method, self Value, args []Value) []Value {
	info := m.Info
	n := info.ParamCount()
	required := info.RequiredCount()
	variadic := info.Has(abc.NeedRest) || info.Has(abc.NeedArguments)
	if len(args) < required || (len(args) > n && !variadic) {
		rt.ThrowError(CodeWrongArgumentCount, m, n, len(args))
	}

	size := n + 2
	if m.Body != nil && m.Body.LocalCount > size {
		size = m.Body.LocalCount
	}
	locals := make([]Value, size)
	for i := range locals {
		locals[i] = Undefined
	}
	locals[0] = self

	d := m.Domain()
	for i := 0; i < n; i++ {
		var v Value
		if i < len(args) {
			v = args[i]
		} else {
			c, err := info.OptionalValue(i - required)
			if err != nil {
				panic(err)
			}
			v = ConstantValue(c)
		}
		if i < len(info.ParamTypes) && info.ParamTypes[i] != 0 {
			t, err := info.ParamType(i)
			if err != nil {
				panic(err)
			}
			v = rt.Coerce(d, v, t)
		}
		locals[i+1] = v
	}

	switch {
	case info.Has(abc.NeedRest):
		var rest []Value
		if len(args) > n {
			rest = args[n:]
		}
		locals[n+1] = rt.NewArray(rest)
	case info.Has(abc.NeedArguments):
		locals[n+1] = rt.NewArray(args)
	}
	return locals
}

// ---------------------------------------------------------------------------
// Domain memory
// ---------------------------------------------------------------------------

func (rt *Runtime) memRange(mem []byte, addr Value, width int) int {
	a := int(ToInt32(addr))
	if a < 0 || a+width > len(mem) {
		rt.ThrowError(CodeMemoryRange)
	}
	return a
}

// MemLoad implements the li8/li16/li32/lf32/lf64 opcodes on mem.
func (rt *Runtime) MemLoad(mem []byte, op abc.Opcode, addr Value) Value {
	switch op {
	case abc.OpLi8:
		return int32(mem[rt.memRange(mem, addr, 1)])
	case abc.OpLi16:
		a := rt.memRange(mem, addr, 2)
		return int32(binary.LittleEndian.Uint16(mem[a:]))
	case abc.OpLi32:
		a := rt.memRange(mem, addr, 4)
		return int32(binary.LittleEndian.Uint32(mem[a:]))
	case abc.OpLf32:
		a := rt.memRange(mem, addr, 4)
		return NumberValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(mem[a:]))))
	case abc.OpLf64:
		a := rt.memRange(mem, addr, 8)
		return NumberValue(math.Float64frombits(binary.LittleEndian.Uint64(mem[a:])))
	}
	panic("vm: MemLoad of " + op.String())
}

// MemStore implements the si8/si16/si32/sf32/sf64 opcodes on mem.
func (rt *Runtime) MemStore(mem []byte, op abc.Opcode, v, addr Value) {
	switch op {
	case abc.OpSi8:
		mem[rt.memRange(mem, addr, 1)] = byte(ToInt32(v))
	case abc.OpSi16:
		a := rt.memRange(mem, addr, 2)
		binary.LittleEndian.PutUint16(mem[a:], uint16(ToInt32(v)))
	case abc.OpSi32:
		a := rt.memRange(mem, addr, 4)
		binary.LittleEndian.PutUint32(mem[a:], uint32(ToInt32(v)))
	case abc.OpSf32:
		a := rt.memRange(mem, addr, 4)
		binary.LittleEndian.PutUint32(mem[a:], math.Float32bits(float32(ToNumber(v))))
	case abc.OpSf64:
		a := rt.memRange(mem, addr, 8)
		binary.LittleEndian.PutUint64(mem[a:], math.Float64bits(ToNumber(v)))
	default:
		panic("vm: MemStore of " + op.String())
	}
}

// SignExtend implements sxi1/sxi8/sxi16.
func SignExtend(op abc.Opcode, v Value) Value {
	x := ToInt32(v)
	switch op {
	case abc.OpSxi1:
		return -(x & 1)
	case abc.OpSxi8:
		return int32(int8(x))
	case abc.OpSxi16:
		return int32(int16(x))
	}
	return x
}
