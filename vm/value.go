package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/chazu/abcvm/abc"
)

// Value is any runtime value: Undefined, Null, bool, int32, uint32,
// float64, string, *abc.Namespace or an Object.
type Value = any

type undefinedType struct{}

type nullType struct{}

func (undefinedType) String() string { return "undefined" }
func (nullType) String() string      { return "null" }

var (
	// Undefined is the value of missing properties and uninitialized locals.
	Undefined Value = undefinedType{}
	// Null is the null object reference.
	Null Value = nullType{}

	nan Value = math.NaN()
)

// IsNullish reports whether v is null or undefined.
func IsNullish(v Value) bool {
	switch v.(type) {
	case nil, undefinedType, nullType:
		return true
	}
	return false
}

// IsNumber reports whether v is one of the numeric representations.
func IsNumber(v Value) bool {
	switch v.(type) {
	case int32, uint32, float64:
		return true
	}
	return false
}

// NumberValue returns the canonical representation of f: int32 if f is an
// integer in range (and not negative zero), float64 otherwise.
func NumberValue(f float64) Value {
	if i := int32(f); float64(i) == f && !(f == 0 && math.Signbit(f)) {
		return i
	}
	return f
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// ToNumber converts v to a double.
func ToNumber(v Value) float64 {
	switch x := v.(type) {
	case int32:
		return float64(x)
	case uint32:
		return float64(x)
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		return stringToNumber(x)
	case nullType:
		return 0
	case nil, undefinedType:
		return math.NaN()
	case *abc.Namespace:
		return stringToNumber(x.URI)
	}
	if p, ok := v.(primitiveValuer); ok {
		return ToNumber(p.PrimitiveValue())
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	// ParseFloat also takes inf and nan spellings.
	if strings.ContainsFunc(s, notDecimal) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func notDecimal(r rune) bool {
	return !(r >= '0' && r <= '9' || r == '.' || r == 'e' || r == 'E' || r == '+' || r == '-')
}

// ToInt32 converts v with 32-bit signed wraparound.
func ToInt32(v Value) int32 {
	switch x := v.(type) {
	case int32:
		return x
	case uint32:
		return int32(x)
	}
	return doubleToInt32(ToNumber(v))
}

func doubleToInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	if f >= -2147483648 && f <= 2147483647 {
		return int32(f)
	}
	m := math.Mod(f, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return int32(uint32(m))
}

// ToUint32 converts v with 32-bit unsigned wraparound.
func ToUint32(v Value) uint32 {
	switch x := v.(type) {
	case uint32:
		return x
	case int32:
		return uint32(x)
	}
	return uint32(doubleToInt32(ToNumber(v)))
}

// ToBoolean converts v to a boolean.
func ToBoolean(v Value) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int32:
		return x != 0
	case uint32:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	case nil, undefinedType, nullType:
		return false
	}
	return true
}

// ToString converts v to its string form.
func ToString(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case float64:
		return FormatNumber(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case nil, undefinedType:
		return "undefined"
	case nullType:
		return "null"
	case *abc.Namespace:
		return x.URI
	case *Class:
		return "[class " + x.Name.LocalName() + "]"
	case *Function:
		return "function Function() {}"
	}
	if p, ok := v.(primitiveValuer); ok {
		return ToString(p.PrimitiveValue())
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "[object Object]"
}

// FormatNumber renders a double the way the language's Number.toString does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Go writes e+07 / e-07; the language writes e+7 / e-7.
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mant, exp := s[:i+2], strings.TrimLeft(s[i+2:], "0")
		if exp == "" {
			exp = "0"
		}
		s = mant + exp
	}
	return s
}

// primitiveValuer is implemented by wrapper objects with a primitive value.
type primitiveValuer interface {
	PrimitiveValue() Value
}

// ToPrimitive returns v unchanged if it is primitive; objects are converted
// through their primitive value, or to their string form.
func ToPrimitive(v Value) Value {
	switch v.(type) {
	case nil, undefinedType, nullType, bool, int32, uint32, float64, string:
		return v
	}
	if p, ok := v.(primitiveValuer); ok {
		return p.PrimitiveValue()
	}
	return ToString(v)
}

// TypeOf implements the typeof operator.
func TypeOf(v Value) string {
	switch v.(type) {
	case nil, undefinedType:
		return "undefined"
	case nullType:
		return "object"
	case bool:
		return "boolean"
	case int32, uint32, float64:
		return "number"
	case string:
		return "string"
	case *Function, *Class:
		return "function"
	}
	if _, ok := v.(Markup); ok {
		return "xml"
	}
	return "object"
}
