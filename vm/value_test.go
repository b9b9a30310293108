package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func TestNumberValue(t *testing.T) {
	tests := []struct {
		in   float64
		want Value
	}{
		{3, int32(3)},
		{-7, int32(-7)},
		{2.5, 2.5},
		{3e10, 3e10},
		{math.Copysign(0, -1), math.Copysign(0, -1)},
	}
	for _, tt := range tests {
		got := NumberValue(tt.in)
		if got != tt.want && !(math.Signbit(ToNumber(got)) && math.Signbit(ToNumber(tt.want))) {
			t.Errorf("NumberValue(%v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
	if _, ok := NumberValue(math.Copysign(0, -1)).(float64); !ok {
		t.Error("NumberValue(-0) is not a float64")
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in   Value
		want float64
	}{
		{int32(-4), -4},
		{uint32(4000000000), 4000000000},
		{true, 1},
		{Null, 0},
		{"  12.5 ", 12.5},
		{"0x1F", 31},
		{"", 0},
		{"-Infinity", math.Inf(-1)},
		{"Infinity", math.Inf(1)},
		{"1e3", 1000},
		{"-.5", -0.5},
	}
	for _, tt := range tests {
		if got := ToNumber(tt.in); got != tt.want {
			t.Errorf("ToNumber(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, v := range []Value{Undefined, "12px", nil, "inf", "-inf", "Inf", "infinity", "+INFINITY", "nan", "NaN", "1_000"} {
		if got := ToNumber(v); !math.IsNaN(got) {
			t.Errorf("ToNumber(%#v) = %v, want NaN", v, got)
		}
	}
}

func TestToInt32Wraparound(t *testing.T) {
	tests := []struct {
		in   Value
		want int32
	}{
		{4294967296.0 + 5, 5},
		{2147483648.0, -2147483648},
		{-1.9, -1},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{uint32(0xFFFFFFFF), -1},
	}
	for _, tt := range tests {
		if got := ToInt32(tt.in); got != tt.want {
			t.Errorf("ToInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := ToUint32(int32(-1)); got != 0xFFFFFFFF {
		t.Errorf("ToUint32(-1) = %d, want 4294967295", got)
	}
}

func TestToBooleanAndString(t *testing.T) {
	falsy := []Value{false, int32(0), uint32(0), 0.0, math.NaN(), "", Null, Undefined}
	for _, v := range falsy {
		if ToBoolean(v) {
			t.Errorf("ToBoolean(%#v) = true, want false", v)
		}
	}
	strs := []struct {
		in   Value
		want string
	}{
		{int32(-3), "-3"},
		{1.5, "1.5"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{math.NaN(), "NaN"},
		{math.Inf(-1), "-Infinity"},
		{true, "true"},
		{Null, "null"},
		{Undefined, "undefined"},
	}
	for _, tt := range strs {
		if got := ToString(tt.in); got != tt.want {
			t.Errorf("ToString(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{int32(1), "number"},
		{"s", "string"},
		{false, "boolean"},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.in); got != tt.want {
			t.Errorf("TypeOf(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Value
		want Value
	}{
		{"1+2", Add(int32(1), int32(2)), int32(3)},
		{"1+'2'", Add(int32(1), "2"), "12"},
		{"'a'+null", Add("a", Null), "anull"},
		{"7-2.5", Subtract(int32(7), 2.5), 4.5},
		{"6*7", Multiply(int32(6), int32(7)), int32(42)},
		{"7/2", Divide(int32(7), int32(2)), 3.5},
		{"-7%3", Modulo(int32(-7), int32(3)), int32(-1)},
		{"-0", Negate(int32(0)), math.Copysign(0, -1)},
		{"1<<33", LShift(int32(1), int32(33)), int32(2)},
		{"-8>>1", RShift(int32(-8), int32(1)), int32(-4)},
		{"-1>>>28", URShift(int32(-1), int32(28)), uint32(15)},
		{"~5", BitNot(int32(5)), int32(-6)},
	}
	for _, tt := range tests {
		if !StrictEquals(tt.got, tt.want) || TypeOf(tt.got) != TypeOf(tt.want) {
			t.Errorf("%s = %#v, want %#v", tt.name, tt.got, tt.want)
		}
	}
}

func TestEquality(t *testing.T) {
	if !Equals(Null, Undefined) {
		t.Error("null == undefined is false")
	}
	if StrictEquals(Null, Undefined) {
		t.Error("null === undefined is true")
	}
	if !Equals("1", int32(1)) || !Equals(true, "1") {
		t.Error("loose equality with conversions failed")
	}
	if !StrictEquals(int32(2), 2.0) || !StrictEquals(uint32(2), int32(2)) {
		t.Error("numbers of different representations are not strictly equal")
	}
	if Equals(math.NaN(), math.NaN()) {
		t.Error("NaN == NaN is true")
	}
}

func TestRelational(t *testing.T) {
	if !LessThan(int32(1), 1.5) || LessThan("b", "a") || !LessThan("a", "b") {
		t.Error("basic ordering failed")
	}
	if LessThan(math.NaN(), int32(1)) || GreaterEquals(math.NaN(), int32(1)) {
		t.Error("NaN compares as ordered")
	}
	if !LessEquals(int32(2), int32(2)) || !GreaterThan("10", int32(9)) {
		t.Error("mixed comparisons failed")
	}
}
