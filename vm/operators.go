package vm

import (
	"math"

	"github.com/chazu/abcvm/abc"
)

// Markup is implemented by structured-markup values (XML-like host
// objects). Addition involving a Markup operand is delegated to the
// runtime's markup hook.
type Markup interface {
	MarkupString() string
}

// Add implements the type-sensitive + operator without the markup case:
// string concatenation if either primitive operand is a string, numeric
// addition otherwise.
func Add(a, b Value) Value {
	if x, ok := a.(int32); ok {
		if y, ok := b.(int32); ok {
			s := int64(x) + int64(y)
			if s >= math.MinInt32 && s <= math.MaxInt32 {
				return int32(s)
			}
			return float64(s)
		}
	}
	if IsNumber(a) && IsNumber(b) {
		return NumberValue(ToNumber(a) + ToNumber(b))
	}
	pa, pb := ToPrimitive(a), ToPrimitive(b)
	_, sa := pa.(string)
	_, sb := pb.(string)
	if sa || sb {
		return ToString(pa) + ToString(pb)
	}
	return NumberValue(ToNumber(pa) + ToNumber(pb))
}

// Subtract implements -.
func Subtract(a, b Value) Value { return NumberValue(ToNumber(a) - ToNumber(b)) }

// Multiply implements *.
func Multiply(a, b Value) Value { return NumberValue(ToNumber(a) * ToNumber(b)) }

// Divide implements /.
func Divide(a, b Value) Value { return NumberValue(ToNumber(a) / ToNumber(b)) }

// Modulo implements %.
func Modulo(a, b Value) Value { return NumberValue(math.Mod(ToNumber(a), ToNumber(b))) }

// Negate implements unary -.
func Negate(a Value) Value {
	if x, ok := a.(int32); ok && x != 0 && x != math.MinInt32 {
		return -x
	}
	return NumberValue(-ToNumber(a))
}

// Increment implements the increment opcode (numeric +1).
func Increment(a Value) Value { return NumberValue(ToNumber(a) + 1) }

// Decrement implements the decrement opcode (numeric -1).
func Decrement(a Value) Value { return NumberValue(ToNumber(a) - 1) }

// Shifts mask the count to five bits.

// LShift implements <<.
func LShift(a, b Value) Value { return ToInt32(a) << (ToUint32(b) & 31) }

// RShift implements >>.
func RShift(a, b Value) Value { return ToInt32(a) >> (ToUint32(b) & 31) }

// URShift implements >>>.
func URShift(a, b Value) Value {
	return NumberValue(float64(ToUint32(a) >> (ToUint32(b) & 31)))
}

// BitAnd implements &.
func BitAnd(a, b Value) Value { return ToInt32(a) & ToInt32(b) }

// BitOr implements |.
func BitOr(a, b Value) Value { return ToInt32(a) | ToInt32(b) }

// BitXor implements ^.
func BitXor(a, b Value) Value { return ToInt32(a) ^ ToInt32(b) }

// BitNot implements ~.
func BitNot(a Value) Value { return ^ToInt32(a) }

// ---------------------------------------------------------------------------
// Equality and relational operators
// ---------------------------------------------------------------------------

// StrictEquals implements ===. Numbers compare by value regardless of
// representation.
func StrictEquals(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		return ToNumber(a) == ToNumber(b)
	}
	switch x := a.(type) {
	case nil, undefinedType:
		switch b.(type) {
		case nil, undefinedType:
			return true
		}
		return false
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case *abc.Namespace:
		y, ok := b.(*abc.Namespace)
		return ok && x.URI == y.URI
	}
	return a == b
}

// Equals implements == with the language's loose conversions.
func Equals(a, b Value) bool {
	if IsNullish(a) || IsNullish(b) {
		return IsNullish(a) && IsNullish(b)
	}
	if IsNumber(a) && IsNumber(b) {
		return ToNumber(a) == ToNumber(b)
	}
	switch x := a.(type) {
	case string:
		switch y := b.(type) {
		case string:
			return x == y
		case int32, uint32, float64, bool:
			return ToNumber(x) == ToNumber(y)
		}
	case bool:
		return ToNumber(x) == ToNumber(b)
	case int32, uint32, float64:
		switch b.(type) {
		case string, bool:
			return ToNumber(a) == ToNumber(b)
		}
	}
	if _, ok := b.(bool); ok {
		return ToNumber(a) == ToNumber(b)
	}
	if isPrimitive(a) != isPrimitive(b) {
		return Equals(ToPrimitive(a), ToPrimitive(b))
	}
	return StrictEquals(a, b)
}

func isPrimitive(v Value) bool {
	switch v.(type) {
	case nil, undefinedType, nullType, bool, int32, uint32, float64, string:
		return true
	}
	return false
}

// compare returns -1, 0, 1, or 2 when the comparison is undefined (NaN).
func compare(a, b Value) int {
	pa, pb := ToPrimitive(a), ToPrimitive(b)
	if sa, ok := pa.(string); ok {
		if sb, ok := pb.(string); ok {
			switch {
			case sa < sb:
				return -1
			case sa > sb:
				return 1
			}
			return 0
		}
	}
	x, y := ToNumber(pa), ToNumber(pb)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return 2
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// LessThan implements <.
func LessThan(a, b Value) bool { return compare(a, b) == -1 }

// LessEquals implements <=.
func LessEquals(a, b Value) bool { c := compare(a, b); return c == -1 || c == 0 }

// GreaterThan implements >.
func GreaterThan(a, b Value) bool { return compare(a, b) == 1 }

// GreaterEquals implements >=.
func GreaterEquals(a, b Value) bool { c := compare(a, b); return c == 1 || c == 0 }
